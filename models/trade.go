package models

import (
	"fmt"
	"time"
)

// Venue identifiers for the supported trade sources.
const (
	VenueDeribit = "deribit"
	VenueBybit   = "bybit"
	VenueOkx     = "okx"
	VenueBinance = "binance"
)

// Trade directions, normalized to lowercase.
const (
	DirectionBuy  = "buy"
	DirectionSell = "sell"
)

// Settlement currencies covered by the pipeline.
const (
	CurrencyBTC = "BTC"
	CurrencyETH = "ETH"
)

// Greeks holds the option risk sensitivities reported by a venue for a
// single instrument. Values are per unit of underlying; aggregation across
// a position is done by the risk aggregator.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Theta float64 `json:"theta"`
	Rho   float64 `json:"rho"`
}

// Quote captures top-of-book context captured alongside a print when the
// venue ticker provides it. Display only.
type Quote struct {
	Bid       float64 `json:"bid"`
	BidAmount float64 `json:"bid_amount"`
	Ask       float64 `json:"ask"`
	AskAmount float64 `json:"ask_amount"`
	Mark      float64 `json:"mark"`
}

// Trade is the canonical print record every venue payload is normalized
// into. Immutable once produced by the normalizer. Symbols follow the
// Deribit convention CCY-DDMMMYY-STRIKE-C|P for options; futures and
// perpetual symbols keep their venue shape minus venue-specific suffixes.
type Trade struct {
	ID          string   `json:"trade_id"`
	Venue       string   `json:"venue"`
	Symbol      string   `json:"symbol"`
	Currency    string   `json:"currency"`
	Direction   string   `json:"direction"`
	Price       float64  `json:"price"`
	Size        float64  `json:"size"`
	IV          *float64 `json:"iv,omitempty"`
	IndexPrice  *float64 `json:"index_price,omitempty"`
	Timestamp   int64    `json:"timestamp"`
	BlockID     string   `json:"block_trade_id,omitempty"`
	Liquidation bool     `json:"liquidation,omitempty"`
	Greeks      *Greeks  `json:"greeks,omitempty"`
	OIChange    float64  `json:"oi_change,omitempty"`
	Quote       *Quote   `json:"quote,omitempty"`
}

// SignedSize returns the position-signed size: buys positive, sells negative.
func (t *Trade) SignedSize() float64 {
	if t.Direction == DirectionSell {
		return -t.Size
	}
	return t.Size
}

// Time converts the millisecond epoch timestamp.
func (t *Trade) Time() time.Time {
	return time.UnixMilli(t.Timestamp)
}

// Validate enforces the invariants a normalized trade must satisfy before
// it enters the pipeline. A negative price is tolerated only on block legs,
// where venues occasionally report synthetic combo prints.
func (t *Trade) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("trade missing id")
	}
	if t.Venue == "" {
		return fmt.Errorf("trade %s missing venue", t.ID)
	}
	if t.Symbol == "" {
		return fmt.Errorf("trade %s missing symbol", t.ID)
	}
	if t.Currency != CurrencyBTC && t.Currency != CurrencyETH {
		return fmt.Errorf("trade %s has unsupported currency %q", t.ID, t.Currency)
	}
	if t.Direction != DirectionBuy && t.Direction != DirectionSell {
		return fmt.Errorf("trade %s has invalid direction %q", t.ID, t.Direction)
	}
	if t.Size <= 0 {
		return fmt.Errorf("trade %s has non-positive size %v", t.ID, t.Size)
	}
	if t.Price < 0 && t.BlockID == "" {
		return fmt.Errorf("trade %s has negative price %v outside a block", t.ID, t.Price)
	}
	if t.Price == 0 {
		return fmt.Errorf("trade %s has zero price", t.ID)
	}
	if t.Timestamp <= 0 {
		return fmt.Errorf("trade %s missing timestamp", t.ID)
	}
	return nil
}

// RawTradeMessage is the envelope venue readers push onto the raw channel.
// Data holds one venue-native trade object; the normalizer owns the mapping
// into a Trade.
type RawTradeMessage struct {
	Venue     string
	Currency  string
	Data      []byte
	FetchedAt time.Time
}
