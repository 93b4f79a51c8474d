package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"betslip/domain/entities"
)

func TestClassifyQuoteChange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sub  entities.SubMarket
		side entities.Side
		old  entities.Quote
		new  entities.Quote
		want entities.ChangeDirection
	}{
		{
			name: "spread gains points",
			sub:  entities.SubMarketSpread,
			side: entities.SideTeam1,
			old:  entities.Quote{Line: -3.5, Price: -110},
			new:  entities.Quote{Line: -2.5, Price: -110},
			want: entities.ChangeFavorable,
		},
		{
			name: "spread loses points",
			sub:  entities.SubMarketSpread,
			side: entities.SideTeam2,
			old:  entities.Quote{Line: 3.5, Price: -110},
			new:  entities.Quote{Line: 2.5, Price: -110},
			want: entities.ChangeUnfavorable,
		},
		{
			name: "over clears a lower total",
			sub:  entities.SubMarketTotal,
			side: entities.SideOver,
			old:  entities.Quote{Line: 42.5, Price: -110},
			new:  entities.Quote{Line: 41.5, Price: -110},
			want: entities.ChangeFavorable,
		},
		{
			name: "under clears a higher total",
			sub:  entities.SubMarketTotal,
			side: entities.SideUnder,
			old:  entities.Quote{Line: 42.5, Price: -110},
			new:  entities.Quote{Line: 43.5, Price: -110},
			want: entities.ChangeFavorable,
		},
		{
			name: "under squeezed by a lower total",
			sub:  entities.SubMarketTotal,
			side: entities.SideUnder,
			old:  entities.Quote{Line: 42.5, Price: -110},
			new:  entities.Quote{Line: 41.5, Price: -110},
			want: entities.ChangeUnfavorable,
		},
		{
			name: "cheaper juice",
			sub:  entities.SubMarketSpread,
			side: entities.SideTeam1,
			old:  entities.Quote{Line: -3.5, Price: -110},
			new:  entities.Quote{Line: -3.5, Price: -105},
			want: entities.ChangeFavorable,
		},
		{
			name: "steeper juice",
			sub:  entities.SubMarketSpread,
			side: entities.SideTeam1,
			old:  entities.Quote{Line: -3.5, Price: -110},
			new:  entities.Quote{Line: -3.5, Price: -120},
			want: entities.ChangeUnfavorable,
		},
		{
			name: "dog pays more",
			sub:  entities.SubMarketMoneyLine,
			side: entities.SideTeam2,
			old:  entities.Quote{Price: 150},
			new:  entities.Quote{Price: 160},
			want: entities.ChangeFavorable,
		},
		{
			name: "favorite crosses to plus money",
			sub:  entities.SubMarketMoneyLine,
			side: entities.SideTeam1,
			old:  entities.Quote{Price: -105},
			new:  entities.Quote{Price: 105},
			want: entities.ChangeFavorable,
		},
		{
			name: "line gain cannot buy off worse juice",
			sub:  entities.SubMarketSpread,
			side: entities.SideTeam1,
			old:  entities.Quote{Line: -3.5, Price: -110},
			new:  entities.Quote{Line: -2.5, Price: -130},
			want: entities.ChangeUnfavorable,
		},
		{
			name: "identical quote",
			sub:  entities.SubMarketSpread,
			side: entities.SideTeam1,
			old:  entities.Quote{Line: -3.5, Price: -110},
			new:  entities.Quote{Line: -3.5, Price: -110},
			want: entities.ChangeNeutral,
		},
		{
			name: "team total over gains",
			sub:  entities.SubMarketTeamTotal,
			side: entities.TeamTotalHomeOver,
			old:  entities.Quote{Line: 24.5, Price: -115},
			new:  entities.Quote{Line: 23.5, Price: -115},
			want: entities.ChangeFavorable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ClassifyQuoteChange(tt.sub, tt.side, tt.old, tt.new)
			assert.Equal(t, tt.want, got)
		})
	}
}
