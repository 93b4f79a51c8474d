package repository

import (
	"context"
	"fmt"

	"betslip/database"
	"betslip/domain/entities"
	"betslip/infrastructure/observability"

	"github.com/jackc/pgx/v5"
)

// TicketArchive implements posted ticket persistence on Postgres.
// Tickets and their legs are written atomically; a ticket with half its
// legs missing would be useless for dispute resolution.
type TicketArchive struct {
	q  Queryable
	db *database.DB
}

// NewTicketArchive creates a new ticket archive backed by the pool.
func NewTicketArchive(db *database.DB) *TicketArchive {
	return &TicketArchive{q: db.Pool, db: db}
}

// Archive stores a posted ticket with its legs in a single transaction.
func (a *TicketArchive) Archive(ctx context.Context, t *entities.PostedTicket) error {
	defer observability.GetMetrics().MeasureDatabaseQuery("ticketArchive", "Archive")()

	return a.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := insertPostedTicket(ctx, tx, t); err != nil {
			return err
		}
		for i, it := range t.Legs {
			if err := insertPostedLeg(ctx, tx, t.TicketNumber, i, it); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertPostedTicket(ctx context.Context, tx Queryable, t *entities.PostedTicket) error {
	query := `
		INSERT INTO posted_tickets (
			ticket_number, account_id, wager_type, teaser_name, open_spots,
			round_robin_group_size, round_robin_combos, total_risk, total_to_win,
			free_play, result, posted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	var rrGroupSize *int32
	var rrCombos *int64
	if t.RoundRobin != nil {
		size := int32(t.RoundRobin.GroupSize)
		rrGroupSize = &size
		rrCombos = &t.RoundRobin.Combos
	}

	_, err := tx.Exec(ctx, query,
		t.TicketNumber,
		t.AccountID,
		t.WagerType,
		t.TeaserName,
		t.OpenSpots,
		rrGroupSize,
		rrCombos,
		t.TotalRisk,
		t.TotalToWin,
		t.FreePlay,
		t.Result,
		t.PostedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert posted ticket %d: %w", t.TicketNumber, err)
	}

	return nil
}

func insertPostedLeg(ctx context.Context, tx Queryable, ticketNumber int64, index int, it *entities.WagerItem) error {
	query := `
		INSERT INTO posted_legs (
			ticket_number, leg_index, game_id, period_number, sub_market, side,
			description, final_line, final_price, risk_amount, to_win_amount,
			accepted, status_reason, bought_half_points, bought_from_line, bought_from_price
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	var boughtHalfPoints *int32
	var boughtFromLine *float64
	var boughtFromPrice *int32
	if it.Bought != nil {
		half := it.Bought.HalfPoints
		line := float64(it.Bought.FromLine)
		price := int32(it.Bought.FromPrice)
		boughtHalfPoints = &half
		boughtFromLine = &line
		boughtFromPrice = &price
	}

	_, err := tx.Exec(ctx, query,
		ticketNumber,
		index,
		it.Ref.GameID,
		it.Ref.PeriodNumber,
		it.SubMarket,
		it.Side,
		it.Description,
		it.FinalLine,
		it.FinalPrice,
		it.RiskAmount,
		it.ToWinAmount,
		it.IsOK,
		it.StatusReason,
		boughtHalfPoints,
		boughtFromLine,
		boughtFromPrice,
	)
	if err != nil {
		return fmt.Errorf("failed to insert leg %d of ticket %d: %w", index, ticketNumber, err)
	}

	return nil
}

// GetByTicketNumber retrieves an archived post, nil when absent.
func (a *TicketArchive) GetByTicketNumber(ctx context.Context, ticketNumber int64) (*entities.PostedTicket, error) {
	defer observability.GetMetrics().MeasureDatabaseQuery("ticketArchive", "GetByTicketNumber")()

	query := `
		SELECT ticket_number, account_id, wager_type, teaser_name, open_spots,
			round_robin_group_size, round_robin_combos, total_risk, total_to_win,
			free_play, result, posted_at
		FROM posted_tickets
		WHERE ticket_number = $1
	`

	t, err := scanPostedTicket(a.q.QueryRow(ctx, query, ticketNumber))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get posted ticket %d: %w", ticketNumber, err)
	}

	legs, err := a.loadLegs(ctx, []int64{t.TicketNumber})
	if err != nil {
		return nil, err
	}
	t.Legs = legs[t.TicketNumber]

	return t, nil
}

// ListRecent returns the most recent posts, newest first.
func (a *TicketArchive) ListRecent(ctx context.Context, limit int) ([]*entities.PostedTicket, error) {
	defer observability.GetMetrics().MeasureDatabaseQuery("ticketArchive", "ListRecent")()

	query := `
		SELECT ticket_number, account_id, wager_type, teaser_name, open_spots,
			round_robin_group_size, round_robin_combos, total_risk, total_to_win,
			free_play, result, posted_at
		FROM posted_tickets
		ORDER BY posted_at DESC, ticket_number DESC
		LIMIT $1
	`

	rows, err := a.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent posted tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*entities.PostedTicket
	var numbers []int64
	for rows.Next() {
		t, err := scanPostedTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan posted ticket: %w", err)
		}
		tickets = append(tickets, t)
		numbers = append(numbers, t.TicketNumber)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list recent posted tickets: %w", err)
	}

	if len(tickets) == 0 {
		return tickets, nil
	}

	legs, err := a.loadLegs(ctx, numbers)
	if err != nil {
		return nil, err
	}
	for _, t := range tickets {
		t.Legs = legs[t.TicketNumber]
	}

	return tickets, nil
}

// scanPostedTicket reads one posted_tickets row without its legs.
func scanPostedTicket(row pgx.Row) (*entities.PostedTicket, error) {
	var t entities.PostedTicket
	var rrGroupSize *int32
	var rrCombos *int64

	err := row.Scan(
		&t.TicketNumber,
		&t.AccountID,
		&t.WagerType,
		&t.TeaserName,
		&t.OpenSpots,
		&rrGroupSize,
		&rrCombos,
		&t.TotalRisk,
		&t.TotalToWin,
		&t.FreePlay,
		&t.Result,
		&t.PostedAt,
	)
	if err != nil {
		return nil, err
	}

	if rrGroupSize != nil && rrCombos != nil {
		t.RoundRobin = &entities.RoundRobinSelection{
			GroupSize: int(*rrGroupSize),
			Combos:    *rrCombos,
		}
	}

	return &t, nil
}

// loadLegs fetches legs for the given tickets, keyed by ticket number and
// ordered by their original position on the slip.
func (a *TicketArchive) loadLegs(ctx context.Context, ticketNumbers []int64) (map[int64][]*entities.WagerItem, error) {
	query := `
		SELECT ticket_number, game_id, period_number, sub_market, side,
			description, final_line, final_price, risk_amount, to_win_amount,
			accepted, status_reason, bought_half_points, bought_from_line, bought_from_price
		FROM posted_legs
		WHERE ticket_number = ANY($1)
		ORDER BY ticket_number, leg_index
	`

	rows, err := a.q.Query(ctx, query, ticketNumbers)
	if err != nil {
		return nil, fmt.Errorf("failed to load posted legs: %w", err)
	}
	defer rows.Close()

	legs := make(map[int64][]*entities.WagerItem)
	for rows.Next() {
		var ticketNumber int64
		var it entities.WagerItem
		var boughtHalfPoints *int32
		var boughtFromLine *float64
		var boughtFromPrice *int32

		err := rows.Scan(
			&ticketNumber,
			&it.Ref.GameID,
			&it.Ref.PeriodNumber,
			&it.SubMarket,
			&it.Side,
			&it.Description,
			&it.FinalLine,
			&it.FinalPrice,
			&it.RiskAmount,
			&it.ToWinAmount,
			&it.IsOK,
			&it.StatusReason,
			&boughtHalfPoints,
			&boughtFromLine,
			&boughtFromPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan posted leg: %w", err)
		}

		if boughtHalfPoints != nil && boughtFromLine != nil && boughtFromPrice != nil {
			it.Bought = &entities.BoughtPoints{
				HalfPoints: *boughtHalfPoints,
				FromLine:   entities.Line(*boughtFromLine),
				FromPrice:  entities.Price(*boughtFromPrice),
			}
		}

		legs[ticketNumber] = append(legs[ticketNumber], &it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load posted legs: %w", err)
	}

	return legs, nil
}
