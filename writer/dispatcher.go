package writer

import (
	"context"
	"fmt"
	"sync"
	"time"

	appconfig "optionsflow/config"
	"optionsflow/internal/channel"
	"optionsflow/logger"
	"optionsflow/models"
	"optionsflow/router"
)

// Dispatcher consumes classified signals, renders them and fans each one out
// to every subscriber tier whose size threshold it clears. Block groups are
// additionally mirrored to the signal gateway and, when configured, to Kafka.
// A delivery failure on one destination never blocks the others.
type Dispatcher struct {
	config    *appconfig.Config
	channels  *channel.Channels
	router    *router.Router
	formatter *Formatter
	sender    Sender
	gateway   *GatewayClient
	mirror    *KafkaMirror

	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	log     *logger.Log

	alertsSent     int64
	deliveryErrors int64
	routedOut      int64
}

func NewDispatcher(cfg *appconfig.Config, tiers *appconfig.Tiers, channels *channel.Channels, sender Sender) *Dispatcher {
	d := &Dispatcher{
		config:    cfg,
		channels:  channels,
		router:    router.New(tiers),
		formatter: NewFormatter(cfg.Dispatch),
		sender:    sender,
		log:       logger.GetLogger(),
	}
	if cfg.Dispatch.Gateway.Enabled {
		d.gateway = NewGatewayClient(cfg)
	}
	return d
}

// SetMirror attaches an optional Kafka mirror. Must be called before Start.
func (d *Dispatcher) SetMirror(mirror *KafkaMirror) {
	d.mirror = mirror
}

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already running")
	}
	d.running = true
	d.ctx = ctx
	d.mu.Unlock()

	log := d.log.WithComponent("dispatcher").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"gateway_enabled": d.gateway != nil,
		"kafka_enabled":   d.mirror != nil,
	}).Info("starting dispatcher")

	d.wg.Add(1)
	go d.consume()

	d.wg.Add(1)
	go d.metricsReporter()

	return nil
}

func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	d.wg.Wait()
	d.log.WithComponent("dispatcher").Info("dispatcher stopped")
}

func (d *Dispatcher) consume() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case sig, ok := <-d.channels.SignalChan:
			if !ok {
				return
			}
			d.dispatch(&sig)
		}
	}
}

func (d *Dispatcher) dispatch(sig *models.Signal) {
	log := d.log.WithComponent("dispatcher").WithFields(logger.Fields{
		"alert_id": sig.AlertID,
		"strategy": sig.Class.Name,
		"currency": sig.Group.Currency,
	})

	tiers := d.router.Route(sig)
	if len(tiers) == 0 {
		d.mu.Lock()
		d.routedOut++
		d.mu.Unlock()
		log.Debug("signal below every tier threshold, skipping")
	} else {
		text := d.formatter.Format(sig)
		for i := range tiers {
			tier := &tiers[i]
			if err := d.sender.Send(d.ctx, tier.ChatID, text); err != nil {
				d.mu.Lock()
				d.deliveryErrors++
				d.mu.Unlock()
				log.WithFields(logger.Fields{"tier": tier.Name}).WithError(err).Error("failed to deliver alert")
				continue
			}
			d.mu.Lock()
			d.alertsSent++
			d.mu.Unlock()
			logger.IncrementAlertSend(len(text))
		}
	}

	if d.gateway != nil && sig.Group.Block {
		if err := d.gateway.Push(d.ctx, sig.Class.Name, sig.Group.Trades); err != nil {
			d.mu.Lock()
			d.deliveryErrors++
			d.mu.Unlock()
			log.WithError(err).Error("failed to push group to gateway")
		}
	}

	if d.mirror != nil {
		if err := d.mirror.Publish(d.ctx, sig); err != nil {
			d.mu.Lock()
			d.deliveryErrors++
			d.mu.Unlock()
			log.WithError(err).Error("failed to mirror signal to kafka")
		}
	}
}

func (d *Dispatcher) metricsReporter() {
	defer d.wg.Done()

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			sent, errs, routedOut := d.alertsSent, d.deliveryErrors, d.routedOut
			d.mu.Unlock()
			d.log.WithComponent("dispatcher").WithFields(logger.Fields{
				"alerts_sent":     sent,
				"delivery_errors": errs,
				"routed_out":      routedOut,
			}).Info("dispatcher statistics")
		}
	}
}
