package processor

import (
	"sort"
	"strconv"
	"strings"

	"optionsflow/models"
)

// BuildLegs derives the option attributes of every trade in the group from
// its symbol. The trailing token is C or P for options, the token before it
// the strike and the one before that the expiry code. Symbols without that
// shape (futures, perpetuals) yield a leg with no option attributes.
func BuildLegs(trades []models.Trade) []models.Leg {
	legs := make([]models.Leg, 0, len(trades))
	for _, trade := range trades {
		leg := models.Leg{Trade: trade}
		parts := strings.Split(trade.Symbol, "-")
		if n := len(parts); n >= 4 {
			last := parts[n-1]
			if last == models.ContractCall || last == models.ContractPut {
				strike, err := strconv.ParseFloat(parts[n-2], 64)
				if err == nil {
					if expiry, err := models.ParseExpiryCode(parts[n-3]); err == nil {
						leg.CallOrPut = last
						leg.Strike = &strike
						leg.Expiry = &expiry
					}
				}
			}
		}
		legs = append(legs, leg)
	}
	return legs
}

// CanonicalSort orders legs deterministically so any permutation of the same
// multiset produces the same sequence: strike-bearing legs first, ascending
// strike, Put before Call on equal strikes, then expiry ascending as a date.
// The resulting positions are the A, B, C, D labels the classifier relation
// strings refer to.
func CanonicalSort(legs []models.Leg) {
	sort.SliceStable(legs, func(i, j int) bool {
		a, b := &legs[i], &legs[j]

		if (a.Strike == nil) != (b.Strike == nil) {
			return a.Strike != nil
		}
		if a.Strike != nil && *a.Strike != *b.Strike {
			return *a.Strike < *b.Strike
		}

		if (a.CallOrPut == "") != (b.CallOrPut == "") {
			return a.CallOrPut != ""
		}
		if a.CallOrPut != b.CallOrPut {
			return a.CallOrPut == models.ContractPut
		}

		if (a.Expiry == nil) != (b.Expiry == nil) {
			return a.Expiry != nil
		}
		if a.Expiry != nil && !a.Expiry.Equal(*b.Expiry) {
			return a.Expiry.Before(*b.Expiry)
		}
		return false
	})
}
