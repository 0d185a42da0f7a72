package processor

import (
	"math"
	"testing"

	appconfig "optionsflow/config"
	"optionsflow/models"
)

func testClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(&appconfig.Config{}, nil)
	if err != nil {
		t.Fatalf("failed to build classifier: %v", err)
	}
	return c
}

func blockGroup(trades ...models.Trade) models.BlockGroup {
	return models.BlockGroup{
		ID:       "block-1",
		Currency: models.CurrencyBTC,
		Block:    len(trades) > 1,
		Trades:   trades,
	}
}

func TestClassifyStrategies(t *testing.T) {
	tests := []struct {
		name      string
		trades    []models.Trade
		wantName  string
		wantView  string
		wantShort string
	}{
		{
			name: "long call spread",
			trades: []models.Trade{
				optionTrade("BTC-26MAY23-27000-C", models.DirectionBuy, 0.050, 100),
				optionTrade("BTC-26MAY23-29000-C", models.DirectionSell, 0.025, 100),
			},
			wantName:  "LONG BTC CALL SPREAD",
			wantView:  models.ViewBullish,
			wantShort: "Call Spread",
		},
		{
			name: "bullish risk reversal",
			trades: []models.Trade{
				optionTrade("BTC-26MAY23-25000-P", models.DirectionSell, 0.020, 50),
				optionTrade("BTC-26MAY23-29000-C", models.DirectionBuy, 0.030, 50),
			},
			wantName:  "RISK REVERSAL",
			wantView:  models.ViewBullish,
			wantShort: "Risk Reversal",
		},
		{
			name: "long straddle",
			trades: []models.Trade{
				optionTrade("BTC-26MAY23-27000-P", models.DirectionBuy, 0.040, 25),
				optionTrade("BTC-26MAY23-27000-C", models.DirectionBuy, 0.045, 25),
			},
			wantName:  "LONG BTC STRADDLE",
			wantView:  "",
			wantShort: "Straddle",
		},
		{
			name: "long call calendar",
			trades: []models.Trade{
				optionTrade("BTC-26MAY23-27000-C", models.DirectionSell, 0.030, 40),
				optionTrade("BTC-7JUL23-27000-C", models.DirectionBuy, 0.050, 40),
			},
			wantName:  "LONG BTC CALL CALENDAR SPREAD",
			wantView:  "",
			wantShort: "Call Calendar Spread",
		},
		{
			name: "call ratio spread",
			trades: []models.Trade{
				optionTrade("BTC-26MAY23-27000-C", models.DirectionBuy, 0.050, 50),
				optionTrade("BTC-26MAY23-29000-C", models.DirectionSell, 0.025, 100),
			},
			wantName:  "LONG BTC CALL RATIO SPREAD",
			wantView:  models.ViewBullish,
			wantShort: "Call Ratio Spread",
		},
		{
			name: "long call butterfly",
			trades: []models.Trade{
				optionTrade("BTC-26MAY23-25000-C", models.DirectionBuy, 0.080, 25),
				optionTrade("BTC-26MAY23-27000-C", models.DirectionSell, 0.050, 50),
				optionTrade("BTC-26MAY23-29000-C", models.DirectionBuy, 0.030, 25),
			},
			wantName:  "LONG BTC CALL BUTTERFLY",
			wantView:  models.ViewNeutral,
			wantShort: "Call Butterfly",
		},
		{
			name: "long iron butterfly",
			trades: []models.Trade{
				optionTrade("BTC-26MAY23-25000-P", models.DirectionBuy, 0.010, 25),
				optionTrade("BTC-26MAY23-27000-P", models.DirectionSell, 0.040, 25),
				optionTrade("BTC-26MAY23-27000-C", models.DirectionSell, 0.045, 25),
				optionTrade("BTC-26MAY23-29000-C", models.DirectionBuy, 0.012, 25),
			},
			wantName:  "LONG BTC IRON BUTTERFLY",
			wantView:  models.ViewNeutral,
			wantShort: "Iron Butterfly",
		},
		{
			name: "long iron condor",
			trades: []models.Trade{
				optionTrade("BTC-26MAY23-24000-P", models.DirectionBuy, 0.010, 25),
				optionTrade("BTC-26MAY23-26000-P", models.DirectionSell, 0.020, 25),
				optionTrade("BTC-26MAY23-28000-C", models.DirectionSell, 0.025, 25),
				optionTrade("BTC-26MAY23-30000-C", models.DirectionBuy, 0.012, 25),
			},
			wantName:  "LONG BTC IRON CONDOR",
			wantView:  models.ViewNeutral,
			wantShort: "Iron Condor",
		},
	}

	c := testClassifier(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal := c.Classify(blockGroup(tt.trades...))
			if signal.Class.Name != tt.wantName {
				t.Errorf("name = %q, want %q", signal.Class.Name, tt.wantName)
			}
			if signal.Class.View != tt.wantView {
				t.Errorf("view = %q, want %q", signal.Class.View, tt.wantView)
			}
			if signal.Class.ShortName != tt.wantShort {
				t.Errorf("short name = %q, want %q", signal.Class.ShortName, tt.wantShort)
			}
			if signal.Class.Custom {
				t.Errorf("matched strategy should not be custom")
			}
		})
	}
}

func TestClassifyFuturesSpread(t *testing.T) {
	c := testClassifier(t)
	near := optionTrade("BTC-28JUN24", models.DirectionBuy, 43000, 100)
	far := optionTrade("BTC-27SEP24", models.DirectionSell, 43500, 100)
	far.ID = "deribit_fut_far"

	signal := c.Classify(blockGroup(near, far))
	if signal.Class.Name != "BTC FUTURES SPREAD" {
		t.Errorf("name = %q, want BTC FUTURES SPREAD", signal.Class.Name)
	}
	if !signal.Class.Futures {
		t.Errorf("expected futures classification")
	}
}

func TestClassifyFuturesOutright(t *testing.T) {
	c := testClassifier(t)
	signal := c.Classify(blockGroup(optionTrade("BTC-PERPETUAL", models.DirectionBuy, 43000, 50)))
	if signal.Class.Name != "BTC FUTURES OUTRIGHT" {
		t.Errorf("name = %q, want BTC FUTURES OUTRIGHT", signal.Class.Name)
	}
	if !signal.Class.Futures || signal.Class.Custom {
		t.Errorf("expected non-custom futures classification, got %+v", signal.Class)
	}
}

func TestClassifyCustomFallback(t *testing.T) {
	c := testClassifier(t)
	// 3:2 size ratio is outside the vocabulary.
	signal := c.Classify(blockGroup(
		optionTrade("BTC-26MAY23-27000-C", models.DirectionBuy, 0.050, 30),
		optionTrade("BTC-26MAY23-29000-C", models.DirectionSell, 0.025, 20),
	))
	if !signal.Class.Custom {
		t.Fatalf("expected custom classification, got %+v", signal.Class)
	}
	if signal.Class.Name != "CUSTOM BTC STRATEGY" {
		t.Errorf("name = %q, want CUSTOM BTC STRATEGY", signal.Class.Name)
	}
}

func TestClassifyPremiumSign(t *testing.T) {
	c := testClassifier(t)

	long := c.Classify(blockGroup(optionTrade("BTC-26MAY23-27000-C", models.DirectionBuy, 0.050, 10)))
	if math.Abs(long.Premium-0.050) > 1e-12 {
		t.Errorf("long call premium = %v, want 0.050", long.Premium)
	}

	// A short strategy reports the credit received as a positive premium.
	short := c.Classify(blockGroup(optionTrade("BTC-26MAY23-27000-C", models.DirectionSell, 0.050, 10)))
	if math.Abs(short.Premium-0.050) > 1e-12 {
		t.Errorf("short call premium = %v, want 0.050", short.Premium)
	}
}

func TestClassifyOpenInterestRelabel(t *testing.T) {
	c := testClassifier(t)

	opened := optionTrade("BTC-26MAY23-27000-C", models.DirectionBuy, 0.050, 10)
	opened.OIChange = 10
	signal := c.Classify(blockGroup(opened))
	if signal.Class.OpenClose != models.PositionOpened {
		t.Errorf("OpenClose = %q, want OPENED", signal.Class.OpenClose)
	}
	if signal.Class.Name != "LONG BTC CALL" {
		t.Errorf("name = %q, want LONG BTC CALL", signal.Class.Name)
	}

	closed := optionTrade("BTC-26MAY23-27000-C", models.DirectionBuy, 0.050, 10)
	closed.OIChange = -10
	signal = c.Classify(blockGroup(closed))
	if signal.Class.OpenClose != models.PositionClosed {
		t.Errorf("OpenClose = %q, want CLOSED", signal.Class.OpenClose)
	}
	if signal.Class.Name != "SHORT BTC CALL" {
		t.Errorf("name = %q, want SHORT BTC CALL after drawdown flip", signal.Class.Name)
	}

	flat := optionTrade("BTC-26MAY23-27000-C", models.DirectionBuy, 0.050, 10)
	signal = c.Classify(blockGroup(flat))
	if signal.Class.OpenClose != "" {
		t.Errorf("OpenClose = %q, want empty without an open interest delta", signal.Class.OpenClose)
	}
}

func TestDeriveKeyTooManyLegs(t *testing.T) {
	trades := make([]models.Trade, 5)
	for i := range trades {
		trades[i] = optionTrade("BTC-26MAY23-27000-C", models.DirectionBuy, 0.05, 10)
	}
	key := DeriveKey(BuildLegs(trades))
	if key.ContractType != models.RelationNone || key.Side != models.RelationNone {
		t.Errorf("five-leg key should stay unmatched, got %+v", key)
	}
}

func TestSubstituteCurrency(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"LONG CALL SPREAD", "LONG ETH CALL SPREAD"},
		{"SHORT STRADDLE", "SHORT ETH STRADDLE"},
		{"RISK REVERSAL", "RISK REVERSAL"},
	}
	for _, tt := range tests {
		if got := substituteCurrency(tt.name, models.CurrencyETH); got != tt.want {
			t.Errorf("substituteCurrency(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
