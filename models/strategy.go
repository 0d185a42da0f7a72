package models

// Relation and ratio placeholders shared by the classifier dimensions.
// "N" marks a dimension that does not apply or did not match the
// restricted vocabulary.
const (
	RelationNone = "N"

	SizeRatioSingle = "1"
	SizeRatioEven   = "1:1"
	SizeRatioOneN   = "1:N"
	SizeRatioNOne   = "N:1"
	SizeRatioFly    = "1:2:1"
	SizeRatioQuad   = "1:1:1:1"
)

// Directional views carried by taxonomy rows.
const (
	ViewBullish = "Bullish"
	ViewBearish = "Bearish"
	ViewNeutral = "Neutral"
)

// StrategyKey is the six-dimension shape of a canonicalized leg group.
// Every dimension is rendered relative to the canonical leg order, so two
// permutations of the same legs always produce the same key.
type StrategyKey struct {
	Legs         int
	ContractType string
	Strike       string
	Expiry       string
	SizeRatio    string
	Side         string
}

// StrategyRule maps one shape to a named strategy. View is empty for
// strategies without a directional read (single legs get their view from
// the name itself).
type StrategyRule struct {
	Key       StrategyKey
	Name      string
	View      string
	ShortName string
}

// Open/close relabels applied to single-leg strategies when the venue
// reports an open interest change alongside the print.
const (
	PositionOpened = "OPENED"
	PositionClosed = "CLOSED"
)

// Classification is the classifier output for one group. Name carries the
// settlement currency already substituted in. OpenClose is set only for
// single-leg prints where the open interest delta suggests the position was
// opened or unwound; the inference is a heuristic, not a certainty.
type Classification struct {
	Name      string
	ShortName string
	View      string
	SizeRatio string
	OpenClose string
	Custom    bool
	Futures   bool
}

// Signal is the fully processed alert payload flowing to the dispatcher:
// the sealed group, its canonical legs, classification, aggregate risk and
// per-unit net premium.
type Signal struct {
	AlertID    string
	Group      BlockGroup
	Legs       []Leg
	Class      Classification
	Premium    float64
	Risk       Greeks
	HasRisk    bool
	TotalSize  float64
	IndexPrice float64
}
