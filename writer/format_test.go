package writer

import (
	"strconv"
	"strings"
	"testing"

	appconfig "optionsflow/config"
	"optionsflow/models"
)

func testFormatter() *Formatter {
	return NewFormatter(appconfig.DispatchConfig{
		AlarmSizes: map[string]float64{"BTC": 1000, "ETH": 10000},
	})
}

func optionLeg(t *testing.T, venue, symbol, direction string, price, size, iv, index float64) models.Leg {
	t.Helper()
	parts := strings.Split(symbol, "-")
	if len(parts) != 4 {
		t.Fatalf("bad option symbol %q", symbol)
	}
	expiry, err := models.ParseExpiryCode(parts[1])
	if err != nil {
		t.Fatalf("ParseExpiryCode(%q): %v", parts[1], err)
	}
	strike, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		t.Fatalf("bad strike in %q", symbol)
	}
	return models.Leg{
		CallOrPut: parts[3],
		Strike:    &strike,
		Expiry:    &expiry,
		Trade: models.Trade{
			ID: venue + "_" + symbol, Venue: venue, Symbol: symbol,
			Currency: parts[0], Direction: direction, Price: price, Size: size,
			IV: &iv, IndexPrice: &index, Timestamp: 1684982400000,
		},
	}
}

func futuresLeg(venue, symbol, direction string, price, size, index float64) models.Leg {
	return models.Leg{
		Trade: models.Trade{
			ID: venue + "_" + symbol, Venue: venue, Symbol: symbol,
			Currency: "BTC", Direction: direction, Price: price, Size: size,
			IndexPrice: &index, Timestamp: 1684982400000,
		},
	}
}

func signalOf(legs []models.Leg, class models.Classification, block bool) *models.Signal {
	trades := make([]models.Trade, len(legs))
	total := 0.0
	for i := range legs {
		trades[i] = legs[i].Trade
		total += legs[i].Trade.Size
	}
	index := 0.0
	if len(legs) > 0 && legs[0].Trade.IndexPrice != nil {
		index = *legs[0].Trade.IndexPrice
	}
	return &models.Signal{
		AlertID: "alert-1",
		Group: models.BlockGroup{
			ID: "grp-1", Currency: legs[0].Trade.Currency, Block: block, Trades: trades,
		},
		Legs:       legs,
		Class:      class,
		TotalSize:  total,
		IndexPrice: index,
	}
}

func TestFormatSinglePrint(t *testing.T) {
	leg := optionLeg(t, models.VenueDeribit, "BTC-26MAY23-27000-C", models.DirectionBuy, 0.05, 10, 55.1, 26900)
	sig := signalOf([]models.Leg{leg}, models.Classification{Name: "LONG BTC CALL", ShortName: "Call"}, false)

	got := testFormatter().Format(sig)
	want := "<b>LONG BTC CALL (10x):</b>\n\n" +
		"🟢 Bought 10x 🔶 BTC-26MAY23-27000-C 📈 at 0.05 ₿ ($1,345.00) " +
		"Total Bought: 0.5000 ₿ ($13.45K), <b>IV</b>: 55.1%, <b>Ref</b>: $26900" +
		"\n\n<i>Deribit</i>\n<i>#onscreen</i>"
	if got != want {
		t.Errorf("Format mismatch:\ngot  %q\nwant %q", got, want)
	}
}

func TestFormatSingleOpenClose(t *testing.T) {
	leg := optionLeg(t, models.VenueDeribit, "BTC-26MAY23-27000-C", models.DirectionSell, 0.05, 10, 55.1, 26900)

	sig := signalOf([]models.Leg{leg}, models.Classification{Name: "SHORT BTC CALL", OpenClose: models.PositionOpened}, false)
	if got := testFormatter().Format(sig); !strings.HasPrefix(got, "✅<b>OPENED</b> <b>SHORT BTC CALL (10x):</b>") {
		t.Errorf("missing opened prefix: %q", got)
	}

	sig.Class.OpenClose = models.PositionClosed
	if got := testFormatter().Format(sig); !strings.HasPrefix(got, "❌<b>CLOSED</b> ") {
		t.Errorf("missing closed prefix: %q", got)
	}
}

func TestFormatSingleLiquidation(t *testing.T) {
	leg := optionLeg(t, models.VenueDeribit, "ETH-26MAY23-1800-P", models.DirectionSell, 0.03, 50, 70.0, 1810)
	leg.Trade.Liquidation = true
	sig := signalOf([]models.Leg{leg}, models.Classification{Name: "SHORT ETH PUT"}, false)

	got := testFormatter().Format(sig)
	if !strings.HasSuffix(got, "<i>#liquidation</i>") {
		t.Errorf("expected liquidation tag, got %q", got)
	}
	if !strings.Contains(got, "🔷 ETH-26MAY23-1800-P 📉") {
		t.Errorf("expected ETH put leg line, got %q", got)
	}
}

func TestFormatBybitDollarPricing(t *testing.T) {
	leg := optionLeg(t, models.VenueBybit, "BTC-26MAY23-27000-C", models.DirectionBuy, 25, 10, 55.0, 26900)
	sig := signalOf([]models.Leg{leg}, models.Classification{Name: "LONG BTC CALL"}, false)

	got := testFormatter().Format(sig)
	if !strings.Contains(got, "at 25 U ($25.00)") {
		t.Errorf("expected dollar-quoted bybit price, got %q", got)
	}
	if !strings.Contains(got, "<i>Bybit</i>") {
		t.Errorf("expected bybit footer, got %q", got)
	}
}

func TestFormatMatchedBlock(t *testing.T) {
	legs := []models.Leg{
		optionLeg(t, models.VenueDeribit, "BTC-26MAY23-27000-C", models.DirectionBuy, 0.05, 50, 55.1, 26900),
		optionLeg(t, models.VenueDeribit, "BTC-26MAY23-28000-C", models.DirectionSell, 0.02, 50, 58.0, 26900),
	}
	sig := signalOf(legs, models.Classification{
		Name: "LONG BTC CALL SPREAD", ShortName: "Call Spread",
		View: models.ViewBullish, SizeRatio: models.SizeRatioEven,
	}, true)
	sig.Premium = 0.03

	got := testFormatter().Format(sig)
	if !strings.Contains(got, "<b>LONG BTC CALL SPREAD (Bullish) (50x):</b>") {
		t.Errorf("missing header: %q", got)
	}
	if !strings.Contains(got, "🟩 Bought 50x 🔶 BTC 26MAY23 27000/28000 Call Spread at 0.03000 ₿ ($807.00)") {
		t.Errorf("missing summary line: %q", got)
	}
	if !strings.Contains(got, "🟢 Bought 50x 🔶 BTC-26MAY23-27000-C 📈") {
		t.Errorf("missing long leg line: %q", got)
	}
	if !strings.Contains(got, "🔴 Sold 50x 🔶 BTC-26MAY23-28000-C 📈") {
		t.Errorf("missing short leg line: %q", got)
	}
	if !strings.HasSuffix(got, "<i>#block</i>") {
		t.Errorf("expected block tag, got %q", got)
	}
}

func TestFormatRatioSizes(t *testing.T) {
	legs := []models.Leg{
		optionLeg(t, models.VenueDeribit, "BTC-26MAY23-27000-C", models.DirectionBuy, 0.05, 50, 55.1, 26900),
		optionLeg(t, models.VenueDeribit, "BTC-26MAY23-28000-C", models.DirectionSell, 0.02, 100, 58.0, 26900),
	}
	sig := signalOf(legs, models.Classification{
		Name: "BTC CALL RATIO SPREAD", ShortName: "Ratio Spread", SizeRatio: models.SizeRatioOneN,
	}, true)

	got := testFormatter().Format(sig)
	if !strings.Contains(got, "(50x/100x):</b>") {
		t.Errorf("expected ratio sizes in header, got %q", got)
	}
}

func TestFormatStrikeNearnessOrder(t *testing.T) {
	// The far strike arrives first but must display after the near one.
	legs := []models.Leg{
		optionLeg(t, models.VenueDeribit, "BTC-26MAY23-30000-C", models.DirectionSell, 0.01, 50, 60.0, 26900),
		optionLeg(t, models.VenueDeribit, "BTC-26MAY23-27000-C", models.DirectionBuy, 0.05, 50, 55.1, 26900),
	}
	sig := signalOf(legs, models.Classification{
		Name: "LONG BTC CALL SPREAD", ShortName: "Call Spread", SizeRatio: models.SizeRatioEven,
	}, true)

	got := testFormatter().Format(sig)
	near := strings.Index(got, "BTC-26MAY23-27000-C 📈")
	far := strings.Index(got, "BTC-26MAY23-30000-C 📈")
	if near < 0 || far < 0 || near > far {
		t.Errorf("expected near strike first, got %q", got)
	}
	if !strings.Contains(got, "27000/30000") {
		t.Errorf("strikes should follow display order, got %q", got)
	}
}

func TestFormatCalendarExpiryOrder(t *testing.T) {
	legs := []models.Leg{
		optionLeg(t, models.VenueDeribit, "BTC-7JUL23-27000-C", models.DirectionBuy, 0.06, 25, 56.0, 26900),
		optionLeg(t, models.VenueDeribit, "BTC-26MAY23-27000-C", models.DirectionSell, 0.04, 25, 55.0, 26900),
	}
	sig := signalOf(legs, models.Classification{
		Name: "LONG BTC CALL CALENDAR", ShortName: "Call Calendar", SizeRatio: models.SizeRatioEven,
	}, true)

	got := testFormatter().Format(sig)
	may := strings.Index(got, "BTC-26MAY23-27000-C")
	jul := strings.Index(got, "BTC-7JUL23-27000-C")
	if may < 0 || jul < 0 || may > jul {
		t.Errorf("expected chronological expiries, got %q", got)
	}
	if !strings.Contains(got, "26MAY23/7JUL23") {
		t.Errorf("expiry list should follow display order, got %q", got)
	}
}

func TestFormatCustomBlock(t *testing.T) {
	legs := []models.Leg{
		optionLeg(t, models.VenueDeribit, "BTC-26MAY23-27000-C", models.DirectionBuy, 0.05, 30, 55.1, 26900),
		optionLeg(t, models.VenueDeribit, "BTC-26MAY23-28000-C", models.DirectionSell, 0.02, 20, 58.0, 26900),
	}
	sig := signalOf(legs, models.Classification{Name: "CUSTOM BTC STRATEGY", Custom: true}, true)

	got := testFormatter().Format(sig)
	if !strings.HasPrefix(got, "<b>CUSTOM BTC STRATEGY:</b>\n\n") {
		t.Errorf("missing custom header: %q", got)
	}
	if strings.Contains(got, "🟩") || strings.Contains(got, "🟥") {
		t.Errorf("custom blocks carry no summary line: %q", got)
	}
}

func TestFormatFuturesSpread(t *testing.T) {
	legs := []models.Leg{
		optionLeg(t, models.VenueDeribit, "BTC-26MAY23-27000-C", models.DirectionBuy, 0.05, 100, 55.1, 26900),
		futuresLeg(models.VenueDeribit, "BTC-PERPETUAL", models.DirectionSell, 26910, 100, 26900),
	}
	sig := signalOf(legs, models.Classification{Name: "BTC FUTURES SPREAD", Futures: true}, true)

	got := testFormatter().Format(sig)
	if !strings.HasPrefix(got, "<b>BTC FUTURES SPREAD:</b>") {
		t.Errorf("missing futures header: %q", got)
	}
	if !strings.Contains(got, "🔴 Sold 100x 🔶 BTC-PERPETUAL at $26,910.00, <b>Ref</b>: $26900") {
		t.Errorf("missing futures leg line: %q", got)
	}
	// Futures legs sort to the front of the display order.
	if strings.Index(got, "BTC-PERPETUAL") > strings.Index(got, "BTC-26MAY23-27000-C") {
		t.Errorf("expected futures leg first, got %q", got)
	}
}

func TestFormatRisks(t *testing.T) {
	leg := optionLeg(t, models.VenueDeribit, "BTC-26MAY23-27000-C", models.DirectionBuy, 0.05, 10, 55.1, 26900)
	sig := signalOf([]models.Leg{leg}, models.Classification{Name: "LONG BTC CALL"}, false)
	sig.HasRisk = true
	sig.Risk = models.Greeks{Delta: 12.5, Gamma: 0.0012, Vega: 100, Theta: -50, Rho: 3}

	got := testFormatter().Format(sig)
	want := "📖 <b>Risks</b>: <i>Δ: 12.50, Γ: 0.0012, ν: 100.00, Θ: -50.00, ρ: 3.00</i>"
	if !strings.Contains(got, want) {
		t.Errorf("missing risks line:\ngot  %q\nwant %q", got, want)
	}
}

func TestFormatQuoteLine(t *testing.T) {
	leg := optionLeg(t, models.VenueDeribit, "BTC-26MAY23-27000-C", models.DirectionBuy, 0.05, 10, 55.1, 26900)
	leg.Trade.Quote = &models.Quote{Bid: 0.049, BidAmount: 20, Ask: 0.051, AskAmount: 15, Mark: 0.0502}
	sig := signalOf([]models.Leg{leg}, models.Classification{Name: "LONG BTC CALL"}, false)

	got := testFormatter().Format(sig)
	if !strings.Contains(got, "bid: 0.049 (size: 20), mark: 0.0502, ask: 0.051 (size: 15)") {
		t.Errorf("missing quote line: %q", got)
	}
}

func TestAlarmThreshold(t *testing.T) {
	f := testFormatter()
	if f.alarm("BTC", 999) != "" {
		t.Error("below-threshold size should not alarm")
	}
	if f.alarm("BTC", 1000) != " ‼️‼️" {
		t.Error("threshold size should alarm")
	}
	if f.alarm("SOL", 1e9) != "" {
		t.Error("unknown currency should never alarm")
	}
}

func TestCommaf(t *testing.T) {
	cases := []struct {
		v        float64
		decimals int
		want     string
	}{
		{0, 2, "0.00"},
		{807, 2, "807.00"},
		{1345, 2, "1,345.00"},
		{1234567.891, 2, "1,234,567.89"},
		{-1345.5, 2, "-1,345.50"},
		{0.03, 5, "0.03000"},
		{42, 0, "42"},
		{123456, 0, "123,456"},
	}
	for _, c := range cases {
		if got := commaf(c.v, c.decimals); got != c.want {
			t.Errorf("commaf(%v, %d) = %q, want %q", c.v, c.decimals, got, c.want)
		}
	}
}
