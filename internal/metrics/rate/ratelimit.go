// Package rate emits rate-limit telemetry for the venue readers: used
// request weight parsed from response headers and counters for throttle or
// ban responses detected in venue error messages.
package rate

import (
	"fmt"
	"strings"

	"optionsflow/logger"
)

// ReportRateLimitExceeded increments the rate limit exceeded counter for the
// given venue and emits the metric to CloudWatch. Venue, symbol and currency
// are attached to the log entry.
func ReportRateLimitExceeded(log *logger.Log, venue, currency, symbol string) {
	component := fmt.Sprintf("%s_reader", strings.ToLower(venue))
	l := log.WithComponent(component)
	fields := logger.Fields{
		"venue":    strings.ToLower(venue),
		"currency": currency,
		"symbol":   symbol,
	}
	l.LogMetric(component, "rate_limit_exceeded", int64(1), "counter", fields)
	l.WithFields(fields).Warn("rate limit exceeded")
}

// ReportIPBan increments the IP ban counter for the given venue and emits the
// metric to CloudWatch.
func ReportIPBan(log *logger.Log, venue, currency, symbol string) {
	component := fmt.Sprintf("%s_reader", strings.ToLower(venue))
	l := log.WithComponent(component)
	fields := logger.Fields{
		"venue":    strings.ToLower(venue),
		"currency": currency,
		"symbol":   symbol,
	}
	l.LogMetric(component, "ip_ban", int64(1), "counter", fields)
	l.WithFields(fields).Error("ip banned")
}

// detectLimit inspects the message returned from a venue and determines
// whether it signals a rate limit exceed or an IP ban. The detection logic is
// customised per venue as each one uses different wording.
func detectLimit(venue, msg string) (rateLimit bool, ipBan bool) {
	lowerMsg := strings.ToLower(msg)
	switch strings.ToLower(venue) {
	case "deribit":
		rateLimit = strings.Contains(lowerMsg, "too_many_requests") || strings.Contains(lowerMsg, "limit exceeded")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	case "bybit":
		ipBan = strings.Contains(lowerMsg, "ip rate limit") || (strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban"))
		rateLimit = !ipBan && (strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "too many visits"))
	case "okx":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "frequency limit")
		ipBan = strings.Contains(lowerMsg, "ip") && (strings.Contains(lowerMsg, "blocked") || strings.Contains(lowerMsg, "ban"))
	case "binance":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "rate limit")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	default:
		rateLimit = strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	}
	return
}

// ReportLimitFromMessage checks the provided message for rate limit or IP ban
// events based on venue-specific keywords and records the appropriate
// metrics. No action is taken if the message does not match any known
// patterns.
func ReportLimitFromMessage(log *logger.Log, venue, currency, symbol, msg string) {
	rateLimit, ipBan := detectLimit(venue, msg)
	if rateLimit {
		ReportRateLimitExceeded(log, venue, currency, symbol)
	}
	if ipBan {
		ReportIPBan(log, venue, currency, symbol)
	}
}
