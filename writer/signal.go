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
	"optionsflow/models"
)

// GatewayClient mirrors classified block trades to the upstream signal
// gateway, one push per sealed group.
type GatewayClient struct {
	config appconfig.GatewayConfig
	client *http.Client
	log    *logger.Log
}

type gatewayPushRequest struct {
	AccessKey    string         `json:"accessKey"`
	SecretKey    string         `json:"secretKey"`
	StrategyName string         `json:"strategy_name"`
	Trades       []models.Trade `json:"trades"`
}

type gatewayPushResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func NewGatewayClient(cfg *appconfig.Config) *GatewayClient {
	return &GatewayClient{
		config: cfg.Dispatch.Gateway,
		client: &http.Client{Timeout: cfg.Reader.Timeout},
		log:    logger.GetLogger(),
	}
}

// Push sends one classified group upstream.
func (g *GatewayClient) Push(ctx context.Context, strategyName string, trades []models.Trade) error {
	body, err := json.Marshal(gatewayPushRequest{
		AccessKey:    g.config.AccessKey,
		SecretKey:    g.config.SecretKey,
		StrategyName: strategyName,
		Trades:       trades,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var result gatewayPushResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	if result.Code != 0 {
		return fmt.Errorf("gateway rejected push: code %d %s", result.Code, result.Msg)
	}

	logger.IncrementGatewaySend(len(body))
	return nil
}
