// Package router matches classified signals against subscriber tiers. Tiers
// are evaluated independently, so one signal can route to several chats.
package router

import (
	"optionsflow/config"
	"optionsflow/models"
)

// Router holds the tier table loaded at startup. The table is read-only
// after construction, so routing is safe to call from concurrent workers.
type Router struct {
	tiers []config.Tier
}

func New(tiers *config.Tiers) *Router {
	return &Router{tiers: tiers.Tiers}
}

// Route returns every tier whose threshold for the signal's currency is met
// by the group's total size. Tiers without a threshold for the currency are
// skipped. The result preserves the configured tier order.
func (r *Router) Route(signal *models.Signal) []config.Tier {
	var matched []config.Tier
	for _, tier := range r.tiers {
		min, ok := tier.Thresholds[signal.Group.Currency]
		if !ok {
			continue
		}
		if signal.TotalSize >= min {
			matched = append(matched, tier)
		}
	}
	return matched
}
