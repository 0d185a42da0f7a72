package writer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appconfig "optionsflow/config"
)

func telegramConfig(baseURL string) *appconfig.Config {
	return &appconfig.Config{
		Reader: appconfig.ReaderConfig{Timeout: time.Second},
		Dispatch: appconfig.DispatchConfig{
			Telegram: appconfig.TelegramConfig{APIURL: baseURL, Token: "test-token"},
		},
	}
}

func TestTelegramSend(t *testing.T) {
	var got telegramSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottest-token/sendMessage" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender(telegramConfig(srv.URL))
	if err := s.Send(context.Background(), "-100", "<b>hello</b>"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if got.ChatID != "-100" || got.Text != "<b>hello</b>" {
		t.Errorf("unexpected request %+v", got)
	}
	if got.ParseMode != "HTML" || !got.DisableWebPagePreview {
		t.Errorf("wrong message options %+v", got)
	}
}

func TestTelegramSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	s := NewTelegramSender(telegramConfig(srv.URL))
	if err := s.Send(context.Background(), "-100", "hello"); err == nil {
		t.Fatal("expected an error for a rejected message")
	}
}

func TestGatewayPushRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":1003,"msg":"invalid key"}`))
	}))
	defer srv.Close()

	cfg := &appconfig.Config{
		Reader: appconfig.ReaderConfig{Timeout: time.Second},
		Dispatch: appconfig.DispatchConfig{
			Gateway: appconfig.GatewayConfig{Enabled: true, URL: srv.URL},
		},
	}
	g := NewGatewayClient(cfg)
	if err := g.Push(context.Background(), "LONG BTC CALL", nil); err == nil {
		t.Fatal("expected an error for a non-zero gateway code")
	}
}
