package services

import "betslip/domain/entities"

// ClassifyQuoteChange grades a quote move from the holder's perspective. Any
// worsening component makes the whole move unfavorable; mixed moves count
// against the holder.
func ClassifyQuoteChange(sub entities.SubMarket, side entities.Side, old, new entities.Quote) entities.ChangeDirection {
	lineDir := classifyLineMove(sub, side, old.Line, new.Line)
	priceDir := classifyPriceMove(old.Price, new.Price)

	if lineDir == entities.ChangeUnfavorable || priceDir == entities.ChangeUnfavorable {
		return entities.ChangeUnfavorable
	}
	if lineDir == entities.ChangeFavorable || priceDir == entities.ChangeFavorable {
		return entities.ChangeFavorable
	}
	return entities.ChangeNeutral
}

func classifyLineMove(sub entities.SubMarket, side entities.Side, old, new entities.Line) entities.ChangeDirection {
	if new == old {
		return entities.ChangeNeutral
	}
	switch sub {
	case entities.SubMarketSpread:
		// Lines are side-relative; more points is always better for the
		// holder.
		if new > old {
			return entities.ChangeFavorable
		}
		return entities.ChangeUnfavorable
	case entities.SubMarketTotal, entities.SubMarketTeamTotal:
		if overSide(sub, side) {
			// Over clears a lower total more easily.
			if new < old {
				return entities.ChangeFavorable
			}
			return entities.ChangeUnfavorable
		}
		if new > old {
			return entities.ChangeFavorable
		}
		return entities.ChangeUnfavorable
	default:
		// Money lines and contests carry no line.
		return entities.ChangeNeutral
	}
}

func overSide(sub entities.SubMarket, side entities.Side) bool {
	if sub == entities.SubMarketTotal {
		return side == entities.SideOver
	}
	return side == entities.TeamTotalHomeOver || side == entities.TeamTotalAwayOver
}

func classifyPriceMove(old, new entities.Price) entities.ChangeDirection {
	if new == old {
		return entities.ChangeNeutral
	}
	oldFactor := old.DecimalFactor()
	newFactor := new.DecimalFactor()
	switch {
	case newFactor > oldFactor:
		return entities.ChangeFavorable
	case newFactor < oldFactor:
		return entities.ChangeUnfavorable
	default:
		return entities.ChangeNeutral
	}
}
