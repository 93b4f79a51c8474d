package testutil

import (
	"time"

	"betslip/domain/entities"
)

// CreateTestPostedTicket creates an archived ticket with default values
func CreateTestPostedTicket(ticketNumber int64) *entities.PostedTicket {
	return &entities.PostedTicket{
		TicketNumber: ticketNumber,
		AccountID:    "ACC-TEST",
		WagerType:    entities.WagerTypeStraight,
		Legs:         []*entities.WagerItem{CreateTestPostedLeg(1001)},
		TotalRisk:    11000,
		TotalToWin:   10000,
		Result:       entities.PostResultSuccess,
		PostedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

// CreateTestPostedLeg creates an accepted spread leg for the given game
func CreateTestPostedLeg(gameID int64) *entities.WagerItem {
	risk := entities.Money(11000)
	toWin := entities.Money(10000)
	return &entities.WagerItem{
		Ref:         entities.MarketRef{GameID: gameID, PeriodNumber: 0},
		SubMarket:   entities.SubMarketSpread,
		Side:        1,
		Description: "HOME -3.5",
		FinalLine:   -3.5,
		FinalPrice:  -110,
		RiskAmount:  &risk,
		ToWinAmount: &toWin,
		IsOK:        true,
	}
}

// CreateTestParlayTicket creates an archived parlay across the given games
func CreateTestParlayTicket(ticketNumber int64, gameIDs ...int64) *entities.PostedTicket {
	legs := make([]*entities.WagerItem, 0, len(gameIDs))
	for _, gameID := range gameIDs {
		leg := CreateTestPostedLeg(gameID)
		leg.RiskAmount = nil
		leg.ToWinAmount = nil
		legs = append(legs, leg)
	}
	return &entities.PostedTicket{
		TicketNumber: ticketNumber,
		AccountID:    "ACC-TEST",
		WagerType:    entities.WagerTypeParlay,
		Legs:         legs,
		TotalRisk:    10000,
		TotalToWin:   60000,
		Result:       entities.PostResultSuccess,
		PostedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}
