// Package symbols converts venue-native instrument names into the canonical
// CCY-DDMMMYY-STRIKE-C|P form used throughout the pipeline.
package symbols

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"optionsflow/models"
)

// FromDeribit returns the instrument name unchanged apart from case
// normalization. Deribit's naming is the canonical form.
func FromDeribit(instrument string) string {
	return strings.ToUpper(strings.TrimSpace(instrument))
}

// FromBybit maps a Bybit option symbol such as BTC-26MAY23-27000-C or
// BTC-26MAY23-27000-C-USDT into canonical form by trimming the settlement
// suffix when present.
func FromBybit(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	parts := strings.Split(s, "-")
	if len(parts) == 5 {
		parts = parts[:4]
	}
	if len(parts) != 4 {
		return "", fmt.Errorf("unexpected bybit symbol %q", symbol)
	}
	if parts[3] != models.ContractCall && parts[3] != models.ContractPut {
		return "", fmt.Errorf("unexpected bybit contract type in %q", symbol)
	}
	if _, err := models.ParseExpiryCode(parts[1]); err != nil {
		return "", fmt.Errorf("bybit symbol %q: %w", symbol, err)
	}
	return strings.Join(parts, "-"), nil
}

// FromOkx maps an OKX option instrument id such as BTC-USD-230526-27000-C
// into canonical form. OKX encodes the expiry as YYMMDD.
func FromOkx(instID string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(instID))
	parts := strings.Split(s, "-")
	if len(parts) != 5 {
		return "", fmt.Errorf("unexpected okx instrument %q", instID)
	}
	if parts[4] != models.ContractCall && parts[4] != models.ContractPut {
		return "", fmt.Errorf("unexpected okx contract type in %q", instID)
	}
	expiry, err := parseCompactDate(parts[2])
	if err != nil {
		return "", fmt.Errorf("okx instrument %q: %w", instID, err)
	}
	return fmt.Sprintf("%s-%s-%s-%s", parts[0], models.FormatExpiryCode(expiry), parts[3], parts[4]), nil
}

// FromBinance maps a Binance option symbol such as BTC-230526-27000-C into
// canonical form. Binance encodes the expiry as YYMMDD and may report
// fractional strikes with a trailing ".0" that is stripped.
func FromBinance(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	parts := strings.Split(s, "-")
	if len(parts) != 4 {
		return "", fmt.Errorf("unexpected binance symbol %q", symbol)
	}
	if parts[3] != models.ContractCall && parts[3] != models.ContractPut {
		return "", fmt.Errorf("unexpected binance contract type in %q", symbol)
	}
	expiry, err := parseCompactDate(parts[1])
	if err != nil {
		return "", fmt.Errorf("binance symbol %q: %w", symbol, err)
	}
	strike := strings.TrimSuffix(parts[2], ".0")
	return fmt.Sprintf("%s-%s-%s-%s", parts[0], models.FormatExpiryCode(expiry), strike, parts[3]), nil
}

// Currency extracts the leading settlement currency token from a canonical
// symbol.
func Currency(symbol string) string {
	if i := strings.IndexByte(symbol, '-'); i > 0 {
		return symbol[:i]
	}
	return symbol
}

func parseCompactDate(yymmdd string) (time.Time, error) {
	if len(yymmdd) != 6 {
		return time.Time{}, fmt.Errorf("invalid compact date %q", yymmdd)
	}
	year, err1 := strconv.Atoi(yymmdd[:2])
	month, err2 := strconv.Atoi(yymmdd[2:4])
	day, err3 := strconv.Atoi(yymmdd[4:])
	if err1 != nil || err2 != nil || err3 != nil || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("invalid compact date %q", yymmdd)
	}
	return time.Date(2000+year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}
