package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Option contract types as they appear in the trailing symbol token.
const (
	ContractCall = "C"
	ContractPut  = "P"
)

// Leg reduces a trade to its option attributes. Futures and perpetual
// prints yield a leg with no type, strike or expiry.
type Leg struct {
	CallOrPut string
	Strike    *float64
	Expiry    *time.Time
	Trade     Trade
}

// IsOption reports whether the leg carries option attributes.
func (l *Leg) IsOption() bool {
	return l.CallOrPut == ContractCall || l.CallOrPut == ContractPut
}

// BlockGroup is an ordered collection of trades sharing one block id,
// materialized once the grouper seals the block. Block is false for
// singleton groups built from standalone prints.
type BlockGroup struct {
	ID       string
	Currency string
	Block    bool
	Trades   []Trade
}

// TotalSize sums the absolute sizes across the group.
func (g *BlockGroup) TotalSize() float64 {
	total := 0.0
	for i := range g.Trades {
		total += g.Trades[i].Size
	}
	return total
}

// IndexPrice returns the first reported index price in the group, or nil.
func (g *BlockGroup) IndexPrice() *float64 {
	for i := range g.Trades {
		if g.Trades[i].IndexPrice != nil {
			return g.Trades[i].IndexPrice
		}
	}
	return nil
}

var monthCodes = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// ParseExpiryCode parses a Deribit-style expiry code such as 26MAY23 or
// 5JAN24 into a UTC date. time.Parse is not used because it is
// case-sensitive about month names while venues report them uppercase.
func ParseExpiryCode(code string) (time.Time, error) {
	s := strings.ToUpper(strings.TrimSpace(code))
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i > 2 || len(s) != i+5 {
		return time.Time{}, fmt.Errorf("invalid expiry code %q", code)
	}
	day, err := strconv.Atoi(s[:i])
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("invalid expiry day in %q", code)
	}
	month, ok := monthCodes[s[i:i+3]]
	if !ok {
		return time.Time{}, fmt.Errorf("invalid expiry month in %q", code)
	}
	year, err := strconv.Atoi(s[i+3:])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiry year in %q", code)
	}
	return time.Date(2000+year, month, day, 0, 0, 0, 0, time.UTC), nil
}

// FormatExpiryCode renders a date back into the canonical DDMMMYY code
// without a zero-padded day, matching the venue convention.
func FormatExpiryCode(t time.Time) string {
	return strings.ToUpper(fmt.Sprintf("%d%s%02d", t.Day(), t.Month().String()[:3], t.Year()%100))
}
