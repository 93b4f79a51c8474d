package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"betslip/domain"
	"betslip/domain/entities"
	"betslip/infrastructure/observability"
)

// HTTPWagerGateway talks to the book's wagering service over HTTP/JSON.
// Implements domain.WagerGateway. Rejection text passes through verbatim;
// bettors see the book's words, not a paraphrase.
type HTTPWagerGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPWagerGateway creates a gateway against the given base URL.
func NewHTTPWagerGateway(baseURL, apiKey string) *HTTPWagerGateway {
	return &HTTPWagerGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Wire types. The wagering API's shapes are owned here, not by the entities.

type ticketContextDTO struct {
	SessionID    string `json:"session_id"`
	AccountID    string `json:"account_id"`
	TicketNumber *int64 `json:"ticket_number,omitempty"`
	WagerType    string `json:"wager_type"`
	TeaserName   string `json:"teaser_name,omitempty"`
	FreePlay     bool   `json:"free_play,omitempty"`
}

type legDTO struct {
	GameID           int64   `json:"game_id"`
	PeriodNumber     int32   `json:"period_number"`
	SubMarket        string  `json:"sub_market"`
	Side             int32   `json:"side"`
	Line             float64 `json:"line"`
	Price            int32   `json:"price"`
	BoughtHalfPoints int32   `json:"bought_half_points,omitempty"`
}

type addLegRequestDTO struct {
	Ticket ticketContextDTO `json:"ticket"`
	Leg    legDTO           `json:"leg"`
}

type legConfirmationDTO struct {
	Description   string  `json:"description"`
	Line          float64 `json:"line"`
	Price         int32   `json:"price"`
	MaxWagerLimit int64   `json:"max_wager_limit"`
}

type postLegDTO struct {
	legDTO
	Risk  int64 `json:"risk"`
	ToWin int64 `json:"to_win"`
}

type roundRobinDTO struct {
	GroupSize int   `json:"group_size"`
	Combos    int64 `json:"combos"`
}

type postRequestDTO struct {
	Ticket     ticketContextDTO `json:"ticket"`
	Legs       []postLegDTO     `json:"legs"`
	OpenSpots  int              `json:"open_spots,omitempty"`
	RoundRobin *roundRobinDTO   `json:"round_robin,omitempty"`
	TotalRisk  int64            `json:"total_risk"`
	TotalToWin int64            `json:"total_to_win"`
	FreePlay   bool             `json:"free_play,omitempty"`
}

type postLegStatusDTO struct {
	Index   int     `json:"index"`
	OK      bool    `json:"ok"`
	Message string  `json:"message,omitempty"`
	Line    float64 `json:"line,omitempty"`
	Price   int32   `json:"price,omitempty"`
}

type postOutcomeDTO struct {
	Code         string             `json:"code"`
	TicketNumber *int64             `json:"ticket_number,omitempty"`
	Message      string             `json:"message,omitempty"`
	Legs         []postLegStatusDTO `json:"legs,omitempty"`
}

type parlayLimitDTO struct {
	Teams         int  `json:"teams"`
	MaxDogs       *int `json:"max_dogs,omitempty"`
	MaxTotals     *int `json:"max_totals,omitempty"`
	MaxMoneyLines *int `json:"max_money_lines,omitempty"`
}

type parlayInfoDTO struct {
	Name      string          `json:"name"`
	Picks     int             `json:"picks"`
	MaxPayout int64           `json:"max_payout"`
	Limit     *parlayLimitDTO `json:"limit,omitempty"`
}

type teaserPayRowDTO struct {
	Picks     int   `json:"picks"`
	RiskUnits int64 `json:"risk_units"`
	WinUnits  int64 `json:"win_units"`
}

type teaserInfoDTO struct {
	Name     string            `json:"name"`
	Points   float64           `json:"points"`
	MinPicks int               `json:"min_picks"`
	MaxPicks int               `json:"max_picks"`
	PayCard  []teaserPayRowDTO `json:"pay_card"`
}

type errorResponseDTO struct {
	Message string `json:"message"`
}

func ticketContextToDTO(tc domain.TicketContext) ticketContextDTO {
	return ticketContextDTO{
		SessionID:    tc.SessionID,
		AccountID:    tc.AccountID,
		TicketNumber: tc.TicketNumber,
		WagerType:    string(tc.WagerType),
		TeaserName:   tc.TeaserName,
		FreePlay:     tc.FreePlay,
	}
}

func legToDTO(leg domain.LegRequest) legDTO {
	return legDTO{
		GameID:           leg.Ref.GameID,
		PeriodNumber:     leg.Ref.PeriodNumber,
		SubMarket:        string(leg.SubMarket),
		Side:             int32(leg.Side),
		Line:             float64(leg.Line),
		Price:            int32(leg.Price),
		BoughtHalfPoints: leg.BoughtHalfPoints,
	}
}

// AddLeg registers a selection against the remote ticket.
func (g *HTTPWagerGateway) AddLeg(ctx context.Context, tc domain.TicketContext, leg domain.LegRequest) (*domain.LegConfirmation, error) {
	body := addLegRequestDTO{Ticket: ticketContextToDTO(tc), Leg: legToDTO(leg)}

	var out legConfirmationDTO
	if err := g.do(ctx, "AddLeg", http.MethodPost, "/v1/legs", tc.CorrelationID, body, &out); err != nil {
		return nil, err
	}

	return &domain.LegConfirmation{
		Description:   out.Description,
		Line:          entities.Line(out.Line),
		Price:         entities.Price(out.Price),
		MaxWagerLimit: entities.Money(out.MaxWagerLimit),
	}, nil
}

// RemoveLeg withdraws a selection from the remote ticket.
func (g *HTTPWagerGateway) RemoveLeg(ctx context.Context, tc domain.TicketContext, leg domain.LegRequest) error {
	body := addLegRequestDTO{Ticket: ticketContextToDTO(tc), Leg: legToDTO(leg)}
	return g.do(ctx, "RemoveLeg", http.MethodPost, "/v1/legs/remove", tc.CorrelationID, body, nil)
}

// PostTicket submits the whole slip. Business rejections come back inside
// the outcome body, not as transport errors.
func (g *HTTPWagerGateway) PostTicket(ctx context.Context, tc domain.TicketContext, req domain.PostRequest) (*domain.PostOutcome, error) {
	body := postRequestDTO{
		Ticket:     ticketContextToDTO(tc),
		OpenSpots:  req.OpenSpots,
		TotalRisk:  int64(req.TotalRisk),
		TotalToWin: int64(req.TotalToWin),
		FreePlay:   req.FreePlay,
	}
	for _, leg := range req.Legs {
		body.Legs = append(body.Legs, postLegDTO{
			legDTO: legToDTO(leg.LegRequest),
			Risk:   int64(leg.Risk),
			ToWin:  int64(leg.ToWin),
		})
	}
	if req.RoundRobin != nil {
		body.RoundRobin = &roundRobinDTO{
			GroupSize: req.RoundRobin.GroupSize,
			Combos:    req.RoundRobin.Combos,
		}
	}

	var out postOutcomeDTO
	if err := g.do(ctx, "PostTicket", http.MethodPost, "/v1/tickets", tc.CorrelationID, body, &out); err != nil {
		return nil, err
	}

	outcome := &domain.PostOutcome{
		Code:         entities.PostResultCode(out.Code),
		TicketNumber: out.TicketNumber,
		Message:      out.Message,
	}
	for _, st := range out.Legs {
		outcome.Legs = append(outcome.Legs, domain.PostLegStatus{
			Index:   st.Index,
			OK:      st.OK,
			Message: st.Message,
			Line:    entities.Line(st.Line),
			Price:   entities.Price(st.Price),
		})
	}
	return outcome, nil
}

// ParlayInfo fetches the current parlay card for a pick count.
func (g *HTTPWagerGateway) ParlayInfo(ctx context.Context, name string, picks int) (*domain.ParlayInfo, error) {
	q := url.Values{}
	q.Set("picks", strconv.Itoa(picks))
	if name != "" {
		q.Set("name", name)
	}

	var out parlayInfoDTO
	if err := g.do(ctx, "ParlayInfo", http.MethodGet, "/v1/reference/parlay?"+q.Encode(), "", nil, &out); err != nil {
		return nil, err
	}

	info := &domain.ParlayInfo{
		Name:      out.Name,
		Picks:     out.Picks,
		MaxPayout: entities.Money(out.MaxPayout),
	}
	if out.Limit != nil {
		info.Limit = &entities.ParlayLimit{
			Teams:         out.Limit.Teams,
			MaxDogs:       out.Limit.MaxDogs,
			MaxTotals:     out.Limit.MaxTotals,
			MaxMoneyLines: out.Limit.MaxMoneyLines,
		}
	}
	return info, nil
}

// TeaserInfo fetches the current spec for a named teaser.
func (g *HTTPWagerGateway) TeaserInfo(ctx context.Context, name string) (*domain.TeaserInfo, error) {
	var out teaserInfoDTO
	if err := g.do(ctx, "TeaserInfo", http.MethodGet, "/v1/reference/teasers/"+url.PathEscape(name), "", nil, &out); err != nil {
		return nil, err
	}

	spec := entities.TeaserSpec{
		Name:     out.Name,
		Points:   entities.Line(out.Points),
		MinPicks: out.MinPicks,
		MaxPicks: out.MaxPicks,
	}
	for _, row := range out.PayCard {
		spec.PayCard = append(spec.PayCard, entities.TeaserPayRow{
			Picks:     row.Picks,
			RiskUnits: row.RiskUnits,
			WinUnits:  row.WinUnits,
		})
	}
	return &domain.TeaserInfo{Spec: spec}, nil
}

// do runs one HTTP exchange. 2xx decodes into out; 400, 409 and 422 are
// business rejections carrying the book's verbatim message; anything else is
// a transport failure.
func (g *HTTPWagerGateway) do(ctx context.Context, op, method, path, correlationID string, body, out any) error {
	done := observability.GetMetrics().MeasureGatewayCall(op)
	result := observability.CallResultError
	defer func() { done(result) }()

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("X-API-Key", g.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call wagering service: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	log.WithFields(log.Fields{
		"op":     op,
		"status": resp.StatusCode,
	}).Debug("Wagering service call completed")

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result = observability.CallResultOK
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("failed to decode %s response: %w", op, err)
			}
		}
		return nil

	case resp.StatusCode == http.StatusBadRequest ||
		resp.StatusCode == http.StatusConflict ||
		resp.StatusCode == http.StatusUnprocessableEntity:
		result = observability.CallResultRejected
		return &domain.RemoteRejectionError{Op: op, Message: rejectionMessage(data, resp.StatusCode)}

	default:
		return fmt.Errorf("wagering service returned status %d for %s", resp.StatusCode, op)
	}
}

// rejectionMessage extracts the book's message from a rejection body,
// falling back to the raw body so nothing the book said is lost.
func rejectionMessage(data []byte, status int) string {
	var er errorResponseDTO
	if err := json.Unmarshal(data, &er); err == nil && er.Message != "" {
		return er.Message
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return http.StatusText(status)
}
