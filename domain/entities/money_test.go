package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrice_ToWin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		price Price
		risk  Money
		want  Money
	}{
		{
			name:  "favorite -110 risks 110 to win 100",
			price: -110,
			risk:  11000,
			want:  10000,
		},
		{
			name:  "underdog +145 risks 100 to win 145",
			price: 145,
			risk:  10000,
			want:  14500,
		},
		{
			name:  "even +100",
			price: 100,
			risk:  5000,
			want:  5000,
		},
		{
			name:  "favorite -120 on 190 wins 158.33",
			price: -120,
			risk:  19000,
			want:  15833,
		},
		{
			name:  "no quote",
			price: 0,
			risk:  10000,
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.price.ToWin(tt.risk))
		})
	}
}

func TestPrice_RiskToWin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		price Price
		win   Money
		want  Money
	}{
		{
			name:  "favorite -150 needs 150 to win 100",
			price: -150,
			win:   10000,
			want:  15000,
		},
		{
			name:  "underdog +200 needs 50 to win 100",
			price: 200,
			win:   10000,
			want:  5000,
		},
		{
			name:  "even -100",
			price: -100,
			win:   2500,
			want:  2500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.price.RiskToWin(tt.win))
		})
	}
}

func TestPrice_DecimalFactor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		price Price
		want  float64
	}{
		{
			name:  "underdog +150 pays 2.5",
			price: 150,
			want:  2.5,
		},
		{
			name:  "favorite -200 pays 1.5",
			price: -200,
			want:  1.5,
		},
		{
			name:  "even money pays 2.0",
			price: 100,
			want:  2.0,
		},
		{
			name:  "invalid gap value",
			price: 50,
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.InDelta(t, tt.want, tt.price.DecimalFactor(), 1e-9)
		})
	}
}

func TestPrice_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, Price(-110).Valid())
	assert.True(t, Price(100).Valid())
	assert.True(t, Price(-100).Valid())
	assert.False(t, Price(0).Valid())
	assert.False(t, Price(99).Valid())
	assert.False(t, Price(-99).Valid())
}

func TestConvertAtPrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		budget Money
		price  Price
		want   Money
	}{
		{
			name:   "favorite -120 converts 190 into 158.33 to-win units",
			budget: 19000,
			price:  -120,
			want:   15833,
		},
		{
			name:   "underdog budget passes through",
			budget: 19000,
			price:  155,
			want:   19000,
		},
		{
			name:   "even -100 passes through",
			budget: 10000,
			price:  -100,
			want:   10000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, ConvertAtPrice(tt.budget, tt.price))
		})
	}
}

func TestMoney_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "$190.00", Money(19000).String())
	assert.Equal(t, "$158.33", Money(15833).String())
	assert.Equal(t, "-$0.05", Money(-5).String())
	assert.Equal(t, "$0.00", Money(0).String())
}

func TestPrice_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "+145", Price(145).String())
	assert.Equal(t, "-110", Price(-110).String())
}
