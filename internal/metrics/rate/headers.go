package rate

import (
	"net/http"
	"strconv"

	"optionsflow/logger"
)

// ReportBybitUsedWeight parses Bybit rate-limit headers and emits a
// `used_weight` metric. Bybit has changed header names over time; try both
// the X-Bapi-* headers and the generic X-RateLimit-* variants so the metric
// stays populated regardless of which set is returned.
func ReportBybitUsedWeight(log *logger.Log, header http.Header, currency string) {
	limitStr := header.Get("X-Bapi-Limit")
	if limitStr == "" {
		limitStr = header.Get("X-RateLimit-Limit")
	}
	remainingStr := header.Get("X-Bapi-Limit-Status")
	if remainingStr == "" {
		remainingStr = header.Get("X-RateLimit-Remaining")
	}

	limit, _ := strconv.ParseInt(limitStr, 10, 64)
	remaining, _ := strconv.ParseInt(remainingStr, 10, 64)
	used := limit - remaining
	if used < 0 {
		used = 0
	}

	l := log.WithComponent("bybit_reader")
	l.LogMetric("bybit_reader", "used_weight", used, "gauge", logger.Fields{"currency": currency})
}

// ReportOkxUsedWeight parses rate-limit headers from OKX REST responses.
// Both the standard and "X-" prefixed variants are accepted.
func ReportOkxUsedWeight(log *logger.Log, header http.Header, currency string) {
	limit := firstHeaderInt(header, "Rate-Limit-Limit", "X-RateLimit-Limit")
	remaining := firstHeaderInt(header, "Rate-Limit-Remaining", "X-RateLimit-Remaining")
	used := firstHeaderInt(header, "Rate-Limit-Used", "X-RateLimit-Used")
	if used == 0 && limit > 0 {
		used = limit - remaining
		if used < 0 {
			used = 0
		}
	}

	l := log.WithComponent("okx_reader")
	l.LogMetric("okx_reader", "used_weight", used, "gauge", logger.Fields{"currency": currency})
}

// ReportBinanceUsedWeight reads the per-minute used weight header Binance
// attaches to every REST response.
func ReportBinanceUsedWeight(log *logger.Log, header http.Header, currency string) {
	used, _ := strconv.ParseInt(header.Get("X-MBX-USED-WEIGHT-1M"), 10, 64)
	l := log.WithComponent("binance_reader")
	l.LogMetric("binance_reader", "used_weight", used, "gauge", logger.Fields{"currency": currency})
}

func firstHeaderInt(header http.Header, names ...string) int64 {
	for _, name := range names {
		if v := header.Get(name); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}
