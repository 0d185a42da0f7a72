package channel

import (
	"bytes"
	"encoding/json"
	"testing"

	"optionsflow/logger"
	"optionsflow/models"
)

func TestSendRawDropsWhenFull(t *testing.T) {
	c := NewChannels(1, 1, 1)
	msg := models.RawTradeMessage{Venue: models.VenueDeribit, Currency: models.CurrencyBTC, Data: []byte("{}")}

	if !c.SendRaw(msg) {
		t.Fatal("first send should succeed")
	}
	if c.SendRaw(msg) {
		t.Fatal("second send should drop, buffer is full")
	}

	stats := c.GetStats()
	if stats.RawMessagesSent != 1 || stats.RawMessagesDropped != 1 {
		t.Fatalf("stats = %+v, want 1 sent and 1 dropped", stats)
	}
}

func TestSendTradeAndGroupCounters(t *testing.T) {
	c := NewChannels(4, 4, 1)

	c.SendTrade(models.Trade{ID: "deribit_1"})
	c.SendTrade(models.Trade{ID: "deribit_2"})
	c.SendGroup(models.BlockGroup{ID: "BTC-44560"})
	c.SendGroup(models.BlockGroup{ID: "BTC-44561"}) // dropped, buffer of 1
	c.SendSignal(models.Signal{AlertID: "a1"})

	stats := c.GetStats()
	if stats.TradesSent != 2 || stats.TradesDropped != 0 {
		t.Errorf("trade stats = %+v", stats)
	}
	if stats.GroupsSent != 1 || stats.GroupsDropped != 1 {
		t.Errorf("group stats = %+v", stats)
	}
	if stats.SignalsSent != 1 {
		t.Errorf("signal stats = %+v", stats)
	}

	tr := <-c.TradeChan
	if tr.ID != "deribit_1" {
		t.Errorf("trade order violated: got %s", tr.ID)
	}
}

func TestLogChannelStatsFields(t *testing.T) {
	log := logger.GetLogger()
	c := NewChannels(1, 1, 1)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	c.logChannelStats(log)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to unmarshal log entry: %v", err)
	}
	for _, field := range []string{"raw_channel_cap", "trade_channel_cap", "group_channel_cap", "signal_channel_cap"} {
		if _, ok := entry[field]; !ok {
			t.Errorf("%s field missing", field)
		}
	}
}
