package models

// Venue wire payloads. Readers marshal one of these per print into
// RawTradeMessage.Data and the normalizer owns the mapping into a Trade.
// Field shapes mirror what each venue actually returns: Deribit reports
// numbers as numbers, Bybit and OKX as strings.

// DeribitTradePayload is one trade object from get_last_trades_by_currency,
// optionally enriched by the reader with ticker context (greeks, book, open
// interest delta) for instruments that report implied volatility.
type DeribitTradePayload struct {
	TradeSeq     int64    `json:"trade_seq"`
	TradeID      string   `json:"trade_id"`
	Instrument   string   `json:"instrument_name"`
	Price        float64  `json:"price"`
	Amount       float64  `json:"amount"`
	Direction    string   `json:"direction"`
	IV           *float64 `json:"iv,omitempty"`
	IndexPrice   *float64 `json:"index_price,omitempty"`
	Timestamp    int64    `json:"timestamp"`
	BlockTradeID string   `json:"block_trade_id,omitempty"`
	Liquidation  string   `json:"liquidation,omitempty"`
	Greeks       *Greeks  `json:"greeks,omitempty"`
	OIChange     float64  `json:"oi_change,omitempty"`
	Quote        *Quote   `json:"quote,omitempty"`
}

// BybitTradePayload is one entry from /v5/market/recent-trade with
// category=option.
type BybitTradePayload struct {
	ExecID       string `json:"execId"`
	Symbol       string `json:"symbol"`
	Price        string `json:"price"`
	Size         string `json:"size"`
	Side         string `json:"side"`
	Time         string `json:"time"`
	IsBlockTrade bool   `json:"isBlockTrade"`
	BlockTradeID string `json:"blockTradeId,omitempty"`
	IndexPrice   string `json:"indexPrice,omitempty"`
	IV           string `json:"iv,omitempty"`
}

// OkxTradePayload is one entry from /api/v5/public/option-trades.
type OkxTradePayload struct {
	TradeID    string `json:"tradeId"`
	InstID     string `json:"instId"`
	InstFamily string `json:"instFamily"`
	Price      string `json:"px"`
	Size       string `json:"sz"`
	Side       string `json:"side"`
	OptType    string `json:"optType"`
	FillVol    string `json:"fillVol"`
	IndexPrice string `json:"idxPx"`
	MarkPrice  string `json:"markPx"`
	Timestamp  string `json:"ts"`
}

// BinanceTradePayload is one entry from the European options recent trades
// endpoint. Side is 1 for a taker buy and -1 for a taker sell.
type BinanceTradePayload struct {
	ID       int64  `json:"id"`
	Symbol   string `json:"symbol"`
	Price    string `json:"price"`
	Quantity string `json:"qty"`
	QuoteQty string `json:"quoteQty"`
	Side     int    `json:"side"`
	Time     int64  `json:"time"`
}
