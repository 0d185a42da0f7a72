package models

import (
	"testing"
	"time"
)

func validTrade() Trade {
	iv := 65.5
	idx := 27000.0
	return Trade{
		ID:         "deribit_BTC-1001",
		Venue:      VenueDeribit,
		Symbol:     "BTC-26MAY23-27000-C",
		Currency:   CurrencyBTC,
		Direction:  DirectionBuy,
		Price:      0.025,
		Size:       25,
		IV:         &iv,
		IndexPrice: &idx,
		Timestamp:  1679484388529,
	}
}

func TestTradeValidate(t *testing.T) {
	tr := validTrade()
	if err := tr.Validate(); err != nil {
		t.Fatalf("valid trade rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Trade)
	}{
		{"missing id", func(tr *Trade) { tr.ID = "" }},
		{"missing symbol", func(tr *Trade) { tr.Symbol = "" }},
		{"bad currency", func(tr *Trade) { tr.Currency = "DOGE" }},
		{"bad direction", func(tr *Trade) { tr.Direction = "hold" }},
		{"zero size", func(tr *Trade) { tr.Size = 0 }},
		{"negative size", func(tr *Trade) { tr.Size = -1 }},
		{"zero price", func(tr *Trade) { tr.Price = 0 }},
		{"negative price outside block", func(tr *Trade) { tr.Price = -0.01 }},
		{"missing timestamp", func(tr *Trade) { tr.Timestamp = 0 }},
	}
	for _, tc := range cases {
		tr := validTrade()
		tc.mutate(&tr)
		if err := tr.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}

	// Synthetic combo prints may carry a negative net price inside a block.
	tr = validTrade()
	tr.Price = -0.0126
	tr.BlockID = "BTC-44560"
	if err := tr.Validate(); err != nil {
		t.Errorf("negative block price rejected: %v", err)
	}
}

func TestSignedSize(t *testing.T) {
	tr := validTrade()
	if got := tr.SignedSize(); got != 25 {
		t.Fatalf("buy signed size = %v, want 25", got)
	}
	tr.Direction = DirectionSell
	if got := tr.SignedSize(); got != -25 {
		t.Fatalf("sell signed size = %v, want -25", got)
	}
}

func TestParseExpiryCode(t *testing.T) {
	cases := []struct {
		code string
		want time.Time
	}{
		{"26MAY23", time.Date(2023, time.May, 26, 0, 0, 0, 0, time.UTC)},
		{"5JAN24", time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)},
		{"28JUN21", time.Date(2021, time.June, 28, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := ParseExpiryCode(tc.code)
		if err != nil {
			t.Fatalf("ParseExpiryCode(%q): %v", tc.code, err)
		}
		if !got.Equal(tc.want) {
			t.Errorf("ParseExpiryCode(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}

	for _, bad := range []string{"", "MAY23", "26XXX23", "26MAY", "123MAY23"} {
		if _, err := ParseExpiryCode(bad); err == nil {
			t.Errorf("ParseExpiryCode(%q): expected error", bad)
		}
	}
}

func TestFormatExpiryCode(t *testing.T) {
	d := time.Date(2023, time.May, 26, 0, 0, 0, 0, time.UTC)
	if got := FormatExpiryCode(d); got != "26MAY23" {
		t.Fatalf("FormatExpiryCode = %q, want 26MAY23", got)
	}
	d = time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)
	if got := FormatExpiryCode(d); got != "5JAN24" {
		t.Fatalf("FormatExpiryCode = %q, want 5JAN24", got)
	}
}

func TestBlockGroupTotals(t *testing.T) {
	a := validTrade()
	b := validTrade()
	b.ID = "deribit_BTC-1002"
	b.Direction = DirectionSell
	b.Size = 15
	b.IndexPrice = nil
	g := BlockGroup{ID: "BTC-44560", Currency: CurrencyBTC, Block: true, Trades: []Trade{b, a}}
	if got := g.TotalSize(); got != 40 {
		t.Fatalf("TotalSize = %v, want 40", got)
	}
	if idx := g.IndexPrice(); idx == nil || *idx != 27000.0 {
		t.Fatalf("IndexPrice = %v, want 27000", idx)
	}
}
