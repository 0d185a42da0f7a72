package rate

import (
	"net/http"
	"testing"

	"optionsflow/logger"
)

func TestDetectLimit(t *testing.T) {
	cases := []struct {
		venue string
		msg   string
		rate  bool
		ban   bool
	}{
		{"deribit", "too_many_requests", true, false},
		{"deribit", "request limit exceeded", true, false},
		{"bybit", "IP rate limit reached", false, true},
		{"bybit", "Too many visits", true, false},
		{"okx", "Requests too frequent, frequency limit", true, false},
		{"okx", "Your IP has been blocked for 60 seconds", false, true},
		{"binance", "Too many requests; current limit is 1200", true, false},
		{"unknown", "hello world", false, false},
	}
	for _, c := range cases {
		rl, ban := detectLimit(c.venue, c.msg)
		if rl != c.rate {
			t.Errorf("%s %q: rateLimit = %v, want %v", c.venue, c.msg, rl, c.rate)
		}
		if ban != c.ban {
			t.Errorf("%s %q: ipBan = %v, want %v", c.venue, c.msg, ban, c.ban)
		}
	}
}

func TestReportBybitUsedWeight(t *testing.T) {
	log := logger.GetLogger()
	header := http.Header{}
	header.Set("X-Bapi-Limit", "600")
	header.Set("X-Bapi-Limit-Status", "590")
	ReportBybitUsedWeight(log, header, "BTC")
}

func TestReportOkxUsedWeight(t *testing.T) {
	log := logger.GetLogger()
	header := http.Header{}
	header.Set("Rate-Limit-Limit", "20")
	header.Set("Rate-Limit-Remaining", "17")
	ReportOkxUsedWeight(log, header, "BTC")
}

func TestReportLimitFromMessage(t *testing.T) {
	log := logger.GetLogger()
	ReportLimitFromMessage(log, "deribit", "BTC", "", "too_many_requests")
	ReportLimitFromMessage(log, "okx", "ETH", "", "plain success message")
}

func TestFirstHeaderInt(t *testing.T) {
	header := http.Header{}
	header.Set("X-RateLimit-Limit", "42")
	if got := firstHeaderInt(header, "Rate-Limit-Limit", "X-RateLimit-Limit"); got != 42 {
		t.Fatalf("firstHeaderInt = %d, want 42", got)
	}
	if got := firstHeaderInt(header, "Missing"); got != 0 {
		t.Fatalf("firstHeaderInt missing = %d, want 0", got)
	}
}
