package services

import (
	"math"
	"slices"

	"betslip/domain/entities"
)

// Combinations returns C(n, k), saturating at math.MaxInt64 rather than
// overflowing. Zero for out-of-range arguments.
func Combinations(n, k int) int64 {
	if n < 0 || k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	result := int64(1)
	for i := 1; i <= k; i++ {
		factor := int64(n - k + i)
		if result > math.MaxInt64/factor {
			return math.MaxInt64
		}
		// Multiply before dividing; the running product of i consecutive
		// binomial steps is always integral.
		result = result * factor / int64(i)
	}
	return result
}

// KSubsets enumerates every k-element index subset of {0..n-1} in
// lexicographic order. Used to expand round-robin sub-parlays.
func KSubsets(n, k int) [][]int {
	if k <= 0 || k > n {
		return nil
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	out := make([][]int, 0, Combinations(n, k))
	for {
		out = append(out, slices.Clone(idx))
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return out
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

// ParlayFactor multiplies the legs' decimal odds into the combined factor.
// Zero if any leg has no valid price.
func ParlayFactor(prices []entities.Price) float64 {
	factor := 1.0
	for _, p := range prices {
		f := p.DecimalFactor()
		if f == 0 {
			return 0
		}
		factor *= f
	}
	return factor
}

// ParlayToWin prices a combined stake across the legs, capped by the house
// maximum payout when one is configured.
func ParlayToWin(risk entities.Money, prices []entities.Price, maxPayout entities.Money) entities.Money {
	factor := ParlayFactor(prices)
	if factor <= 1 {
		return 0
	}
	win := entities.Money(float64(risk) * (factor - 1))
	if maxPayout > 0 && win > maxPayout {
		win = maxPayout
	}
	return win
}
