package processor

import "optionsflow/models"

// NetPremium computes the per-unit net premium of a canonically sorted leg
// sequence: the sum of signed size times price over option legs, divided by
// the first canonical leg's size as the reference. Futures legs are priced
// in dollars and excluded.
func NetPremium(legs []models.Leg) float64 {
	if len(legs) == 0 {
		return 0
	}
	total := 0.0
	for i := range legs {
		if !legs[i].IsOption() {
			continue
		}
		total += legs[i].Trade.Price * legs[i].Trade.SignedSize()
	}
	ref := legs[0].Trade.Size
	if ref == 0 {
		return 0
	}
	return total / ref
}

// AggregateGreeks sums the venue-reported greeks across the group, each leg
// scaled by its signed size, sells negative. All five sensitivities use the
// same signed convention, rho included. The second return value reports
// whether any leg carried greeks at all.
func AggregateGreeks(legs []models.Leg) (models.Greeks, bool) {
	var total models.Greeks
	found := false
	for i := range legs {
		g := legs[i].Trade.Greeks
		if g == nil {
			continue
		}
		found = true
		size := legs[i].Trade.SignedSize()
		total.Delta += size * g.Delta
		total.Gamma += size * g.Gamma
		total.Vega += size * g.Vega
		total.Theta += size * g.Theta
		total.Rho += size * g.Rho
	}
	return total, found
}
