package writer

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"

	appconfig "optionsflow/config"
	"optionsflow/logger"
	"optionsflow/models"
)

// KafkaMirror publishes every dispatched signal as JSON, keyed by currency so
// downstream consumers can partition per asset.
type KafkaMirror struct {
	writer *kafka.Writer
	log    *logger.Log
}

func NewKafkaMirror(cfg *appconfig.Config) (*KafkaMirror, error) {
	if len(cfg.Storage.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	m := &KafkaMirror{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Storage.Kafka.Brokers...),
			Topic:    cfg.Storage.Kafka.Topic,
			Balancer: &kafka.LeastBytes{},
		},
		log: logger.GetLogger(),
	}
	m.log.WithComponent("kafka_mirror").WithFields(logger.Fields{
		"brokers": cfg.Storage.Kafka.Brokers,
		"topic":   cfg.Storage.Kafka.Topic,
	}).Debug("kafka mirror initialized")
	return m, nil
}

func (m *KafkaMirror) Publish(ctx context.Context, sig *models.Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(sig.Group.Currency),
		Value: data,
	}
	if err := m.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write signal: %w", err)
	}
	m.log.WithComponent("kafka_mirror").WithFields(logger.Fields{
		"alert_id": sig.AlertID,
		"bytes":    len(data),
	}).Debug("signal mirrored to kafka")
	return nil
}

func (m *KafkaMirror) Close() error {
	return m.writer.Close()
}
