package processor

import (
	"fmt"
	"strings"

	"optionsflow/models"
)

// DeriveKey renders the six classification dimensions of a canonically
// sorted leg sequence. Groups with more than four legs produce a key that
// cannot match any rule and fall through to the custom strategy.
func DeriveKey(legs []models.Leg) models.StrategyKey {
	key := models.StrategyKey{
		Legs:         len(legs),
		ContractType: models.RelationNone,
		Strike:       models.RelationNone,
		Expiry:       models.RelationNone,
		SizeRatio:    models.RelationNone,
		Side:         models.RelationNone,
	}

	switch len(legs) {
	case 1:
		key.ContractType = contractTypeOf(legs)
		key.SizeRatio = models.SizeRatioSingle
		key.Side = sidePattern(legs)
	case 2:
		key.ContractType = contractTypeOf(legs)
		if key.ContractType == "F" {
			return key
		}
		key.Strike = strikeRelation(legs)
		key.Expiry = expiryRelation(legs)
		key.SizeRatio = sizeRatio(legs)
		key.Side = sidePattern(legs)
	case 3, 4:
		key.ContractType = contractTypeOf(legs)
		key.Strike = strikeRelation(legs)
		key.Expiry = expiryRelation(legs)
		key.SizeRatio = sizeRatio(legs)
		key.Side = sidePattern(legs)
	}
	return key
}

// contractTypeOf reduces the per-leg option types to one label: the leg's
// own type for singles, F when a two-leg group contains a non-option, PC for
// a mixed put/call pair, C or P when all legs agree, and the four-leg PPCC
// pattern of two puts canonically before two calls. Anything else yields N.
func contractTypeOf(legs []models.Leg) string {
	switch len(legs) {
	case 1:
		if legs[0].CallOrPut == "" {
			return models.RelationNone
		}
		return legs[0].CallOrPut
	case 2:
		a, b := legs[0].CallOrPut, legs[1].CallOrPut
		if a == "" || b == "" {
			return "F"
		}
		if a == b {
			return a
		}
		return "PC"
	case 4:
		if legs[0].CallOrPut == models.ContractPut && legs[1].CallOrPut == models.ContractPut &&
			legs[2].CallOrPut == models.ContractCall && legs[3].CallOrPut == models.ContractCall {
			return "PPCC"
		}
	}
	first := legs[0].CallOrPut
	if first == "" {
		return models.RelationNone
	}
	for _, leg := range legs[1:] {
		if leg.CallOrPut != first {
			return models.RelationNone
		}
	}
	return first
}

// strikeRelation renders the chain of comparisons between consecutive
// canonical strikes, e.g. A<B=C. N when any leg lacks a strike.
func strikeRelation(legs []models.Leg) string {
	for _, leg := range legs {
		if leg.Strike == nil {
			return models.RelationNone
		}
	}
	var b strings.Builder
	for i := range legs {
		b.WriteByte(byte('A' + i))
		if i == len(legs)-1 {
			break
		}
		switch {
		case *legs[i].Strike < *legs[i+1].Strike:
			b.WriteByte('<')
		case *legs[i].Strike > *legs[i+1].Strike:
			b.WriteByte('>')
		default:
			b.WriteByte('=')
		}
	}
	return b.String()
}

// expiryRelation is the analogous chain over parsed expiry dates.
func expiryRelation(legs []models.Leg) string {
	for _, leg := range legs {
		if leg.Expiry == nil {
			return models.RelationNone
		}
	}
	var b strings.Builder
	for i := range legs {
		b.WriteByte(byte('A' + i))
		if i == len(legs)-1 {
			break
		}
		switch {
		case legs[i].Expiry.Before(*legs[i+1].Expiry):
			b.WriteByte('<')
		case legs[i].Expiry.After(*legs[i+1].Expiry):
			b.WriteByte('>')
		default:
			b.WriteByte('=')
		}
	}
	return b.String()
}

// sizeRatio matches the leg sizes against the restricted ratio vocabulary.
// Ratios outside the vocabulary yield N.
func sizeRatio(legs []models.Leg) string {
	switch len(legs) {
	case 1:
		return models.SizeRatioSingle
	case 2:
		a, b := legs[0].Trade.Size, legs[1].Trade.Size
		switch {
		case a == b:
			return models.SizeRatioEven
		case a < b:
			return models.SizeRatioOneN
		default:
			return models.SizeRatioNOne
		}
	case 3:
		a, b, c := legs[0].Trade.Size, legs[1].Trade.Size, legs[2].Trade.Size
		if a*2 == b && c*2 == b {
			return models.SizeRatioFly
		}
	case 4:
		a := legs[0].Trade.Size
		if legs[1].Trade.Size == a && legs[2].Trade.Size == a && legs[3].Trade.Size == a {
			return models.SizeRatioQuad
		}
	}
	return models.RelationNone
}

// sidePattern encodes per-leg direction against the canonical labels. The
// first leg renders as A or -A, later legs always carry an explicit sign.
func sidePattern(legs []models.Leg) string {
	var b strings.Builder
	for i, leg := range legs {
		buy := leg.Trade.Direction == models.DirectionBuy
		switch {
		case i == 0 && buy:
			b.WriteByte('A')
		case i == 0:
			b.WriteString("-A")
		case buy:
			b.WriteByte('+')
			b.WriteByte(byte('A' + i))
		default:
			b.WriteByte('-')
			b.WriteByte(byte('A' + i))
		}
	}
	return b.String()
}

// substituteCurrency injects the settlement currency into LONG/SHORT
// prefixed strategy names: LONG CALL becomes LONG BTC CALL. Names without a
// directional prefix are returned unchanged.
func substituteCurrency(name, currency string) string {
	if rest, ok := strings.CutPrefix(name, "LONG "); ok {
		return fmt.Sprintf("LONG %s %s", currency, rest)
	}
	if rest, ok := strings.CutPrefix(name, "SHORT "); ok {
		return fmt.Sprintf("SHORT %s %s", currency, rest)
	}
	return name
}

// swapLongShort flips the directional prefix of a strategy name, used when
// an open interest drawdown implies the print closed an existing position.
func swapLongShort(name string) string {
	if rest, ok := strings.CutPrefix(name, "LONG "); ok {
		return "SHORT " + rest
	}
	if rest, ok := strings.CutPrefix(name, "SHORT "); ok {
		return "LONG " + rest
	}
	return name
}
