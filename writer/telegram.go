package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	appconfig "optionsflow/config"
	"optionsflow/logger"
)

// Sender delivers one rendered alert to a chat.
type Sender interface {
	Send(ctx context.Context, chatID, text string) error
}

// TelegramSender posts alerts through the Telegram bot API with HTML parse
// mode and link previews disabled.
type TelegramSender struct {
	apiURL string
	token  string
	client *http.Client
	log    *logger.Log
}

type telegramSendRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramSendResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func NewTelegramSender(cfg *appconfig.Config) *TelegramSender {
	return &TelegramSender{
		apiURL: cfg.Dispatch.Telegram.APIURL,
		token:  cfg.Dispatch.Telegram.Token,
		client: &http.Client{Timeout: cfg.Reader.Timeout},
		log:    logger.GetLogger(),
	}
}

func (s *TelegramSender) Send(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(telegramSendRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal telegram request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiURL, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var result telegramSendResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("failed to decode telegram response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram rejected message: %s", result.Description)
	}
	return nil
}
