package writer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	appconfig "optionsflow/config"
	"optionsflow/models"
)

// Formatter renders signals into Telegram HTML. The layout follows the
// channel's established message shapes: a one-leg print, a matched
// multi-leg strategy with a summary line, and a leg-by-leg dump for custom
// and futures groups.
type Formatter struct {
	alarmSizes map[string]float64
}

func NewFormatter(cfg appconfig.DispatchConfig) *Formatter {
	return &Formatter{alarmSizes: cfg.AlarmSizes}
}

// Format renders one signal as a Telegram HTML message.
func (f *Formatter) Format(signal *models.Signal) string {
	legs := displayLegs(signal)

	var b strings.Builder
	switch {
	case signal.Class.Custom || (signal.Class.Futures && len(legs) > 1):
		f.writeCustomBlock(&b, signal, legs)
	case len(legs) == 1:
		f.writeSingle(&b, signal, &legs[0])
	default:
		f.writeMatchedBlock(&b, signal, legs)
	}

	f.writeRisks(&b, signal)
	f.writeFooter(&b, signal, legs)
	return b.String()
}

// displayLegs orders legs for display: nearest strike to the index price
// first, then calendars chronologically by expiry.
func displayLegs(signal *models.Signal) []models.Leg {
	legs := make([]models.Leg, len(signal.Legs))
	copy(legs, signal.Legs)

	index := signal.IndexPrice
	sort.SliceStable(legs, func(i, j int) bool {
		return strikeDistance(&legs[i], index) < strikeDistance(&legs[j], index)
	})

	if strings.Contains(signal.Class.ShortName, "Calendar") {
		sort.SliceStable(legs, func(i, j int) bool {
			if legs[i].Expiry == nil || legs[j].Expiry == nil {
				return legs[j].Expiry != nil
			}
			return legs[i].Expiry.Before(*legs[j].Expiry)
		})
	}
	return legs
}

func strikeDistance(leg *models.Leg, index float64) float64 {
	if leg.Strike == nil {
		return 0
	}
	d := *leg.Strike - index
	if d < 0 {
		return -d
	}
	return d
}

func (f *Formatter) writeSingle(b *strings.Builder, signal *models.Signal, leg *models.Leg) {
	header := fmt.Sprintf("<b>%s (%sx):</b>", signal.Class.Name, num(leg.Trade.Size))
	switch signal.Class.OpenClose {
	case models.PositionOpened:
		header = "✅<b>OPENED</b> " + header
	case models.PositionClosed:
		header = "❌<b>CLOSED</b> " + header
	}
	b.WriteString(header)
	b.WriteString("\n\n")
	f.writeLegLine(b, signal, leg)
}

func (f *Formatter) writeMatchedBlock(b *strings.Builder, signal *models.Signal, legs []models.Leg) {
	currency := signal.Group.Currency
	ratio := signal.Class.SizeRatio == models.SizeRatioOneN || signal.Class.SizeRatio == models.SizeRatioNOne

	sizes := num(legs[0].Trade.Size) + "x"
	if ratio && len(legs) > 1 {
		sizes = num(legs[0].Trade.Size) + "x/" + num(legs[1].Trade.Size) + "x"
	}

	if signal.Class.View != "" {
		fmt.Fprintf(b, "<b>%s (%s) (%s):</b>", signal.Class.Name, signal.Class.View, sizes)
	} else {
		fmt.Fprintf(b, "<b>%s (%s):</b>", signal.Class.Name, sizes)
	}
	b.WriteString("\n")

	// Summary line: direction block, sizes, strategy shorthand and the net
	// premium in coin and dollars.
	if strings.HasPrefix(signal.Class.Name, "LONG") {
		fmt.Fprintf(b, "🟩 Bought %s %s %s ", sizes, currencyEmoji(currency), currency)
	} else if strings.HasPrefix(signal.Class.Name, "SHORT") {
		fmt.Fprintf(b, "🟥 Sold %s %s %s ", sizes, currencyEmoji(currency), currency)
	} else {
		fmt.Fprintf(b, "◻️ %s %s %s ", sizes, currencyEmoji(currency), currency)
	}
	fmt.Fprintf(b, "%s %s %s at %s %s ($%s) %s",
		strings.Join(legExpiries(legs), "/"),
		strings.Join(legStrikes(legs), "/"),
		signal.Class.ShortName,
		commaf(signal.Premium, 5),
		coinSymbol(currency),
		commaf(signal.Premium*signal.IndexPrice, 2),
		f.alarm(currency, legs[0].Trade.Size))
	b.WriteString("\n\n")

	for i := range legs {
		f.writeLegLine(b, signal, &legs[i])
		b.WriteString("\n")
	}
}

func (f *Formatter) writeCustomBlock(b *strings.Builder, signal *models.Signal, legs []models.Leg) {
	fmt.Fprintf(b, "<b>%s:</b>", signal.Class.Name)
	b.WriteString("\n\n")
	for i := range legs {
		f.writeLegLine(b, signal, &legs[i])
		b.WriteString("\n")
	}
}

// writeLegLine renders one print. Option legs carry price in coin with the
// dollar equivalent, IV and the index reference; futures legs are priced in
// dollars directly. Bybit option prices arrive in dollars.
func (f *Formatter) writeLegLine(b *strings.Builder, signal *models.Signal, leg *models.Leg) {
	trade := &leg.Trade
	currency := signal.Group.Currency
	index := indexOf(trade, signal)

	if !leg.IsOption() {
		if trade.Direction == models.DirectionSell {
			b.WriteString("🔴 Sold ")
		} else {
			b.WriteString("🟢 Bought ")
		}
		fmt.Fprintf(b, "%sx %s %s at $%s, <b>Ref</b>: $%s",
			num(trade.Size), currencyEmoji(currency), trade.Symbol,
			commaf(trade.Price, 2), num(index))
		return
	}

	trend := "📈"
	if leg.CallOrPut == models.ContractPut {
		trend = "📉"
	}
	if trade.Direction == models.DirectionSell {
		b.WriteString("🔴 Sold ")
	} else {
		b.WriteString("🟢 Bought ")
	}

	priceUnit := coinSymbol(currency)
	priceDollar := trade.Price * index
	if trade.Venue == models.VenueBybit {
		priceUnit = "U"
		priceDollar = trade.Price
	}
	total := trade.Price * trade.Size

	fmt.Fprintf(b, "%sx %s %s %s at %s %s ($%s) ",
		num(trade.Size), currencyEmoji(currency), trade.Symbol, trend,
		num(trade.Price), priceUnit, commaf(priceDollar, 2))
	if trade.Direction == models.DirectionSell {
		b.WriteString("Total Sold: ")
	} else {
		b.WriteString("Total Bought: ")
	}
	fmt.Fprintf(b, "%s %s ($%sK), <b>IV</b>: %s%%, <b>Ref</b>: $%s%s",
		commaf(total, 4), coinSymbol(currency), commaf(total*index/1000, 2),
		ivOf(trade), num(index), f.alarm(currency, trade.Size))

	if trade.Quote != nil {
		b.WriteString("\n")
		fmt.Fprintf(b, "bid: %s (size: %s), mark: %s, ask: %s (size: %s)",
			num(trade.Quote.Bid), num(trade.Quote.BidAmount),
			num(trade.Quote.Mark),
			num(trade.Quote.Ask), num(trade.Quote.AskAmount))
	}
}

func (f *Formatter) writeRisks(b *strings.Builder, signal *models.Signal) {
	if !signal.HasRisk {
		return
	}
	r := signal.Risk
	b.WriteString("\n")
	fmt.Fprintf(b, "📖 <b>Risks</b>: <i>Δ: %s, Γ: %s, ν: %s, Θ: %s, ρ: %s</i>",
		commaf(r.Delta, 2), commaf(r.Gamma, 4), commaf(r.Vega, 2),
		commaf(r.Theta, 2), commaf(r.Rho, 2))
}

func (f *Formatter) writeFooter(b *strings.Builder, signal *models.Signal, legs []models.Leg) {
	venue := models.VenueDeribit
	if len(legs) > 0 {
		venue = legs[0].Trade.Venue
	}
	b.WriteString("\n\n")
	fmt.Fprintf(b, "<i>%s</i>", titleCase(venue))
	b.WriteString("\n")
	switch {
	case signal.Group.Block:
		b.WriteString("<i>#block</i>")
	case len(legs) == 1 && legs[0].Trade.Liquidation:
		b.WriteString("<i>#liquidation</i>")
	default:
		b.WriteString("<i>#onscreen</i>")
	}
}

// alarm marks outsized prints with a double exclamation.
func (f *Formatter) alarm(currency string, size float64) string {
	min, ok := f.alarmSizes[currency]
	if ok && size >= min {
		return " ‼️‼️"
	}
	return ""
}

func indexOf(trade *models.Trade, signal *models.Signal) float64 {
	if trade.IndexPrice != nil {
		return *trade.IndexPrice
	}
	return signal.IndexPrice
}

func ivOf(trade *models.Trade) string {
	if trade.IV == nil {
		return "-"
	}
	return num(*trade.IV)
}

func legExpiries(legs []models.Leg) []string {
	var out []string
	seen := make(map[string]bool)
	for i := range legs {
		if legs[i].Expiry == nil {
			continue
		}
		code := models.FormatExpiryCode(*legs[i].Expiry)
		if !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}
	return out
}

func legStrikes(legs []models.Leg) []string {
	var out []string
	seen := make(map[float64]bool)
	for i := range legs {
		if legs[i].Strike == nil {
			continue
		}
		if !seen[*legs[i].Strike] {
			seen[*legs[i].Strike] = true
			out = append(out, num(*legs[i].Strike))
		}
	}
	return out
}

func currencyEmoji(currency string) string {
	if currency == models.CurrencyBTC {
		return "🔶"
	}
	return "🔷"
}

func coinSymbol(currency string) string {
	if currency == models.CurrencyBTC {
		return "₿"
	}
	return "Ξ"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// num renders a float without trailing zeros, matching how the venues quote
// prices and sizes.
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// commaf renders a float with a fixed number of decimals and thousands
// separators in the integer part.
func commaf(v float64, decimals int) string {
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
		if len(intPart) > lead {
			b.WriteByte(',')
		}
	}
	for i := lead; i < len(intPart); i += 3 {
		b.WriteString(intPart[i : i+3])
		if i+3 < len(intPart) {
			b.WriteByte(',')
		}
	}
	b.WriteString(frac)
	return b.String()
}
