package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	appconfig "optionsflow/config"
	"optionsflow/internal/channel"
	"optionsflow/logger"
	"optionsflow/models"
	"optionsflow/processor"
	"optionsflow/reader/binance"
	"optionsflow/reader/bybit"
	"optionsflow/reader/deribit"
	"optionsflow/reader/okx"
	"optionsflow/store"
	"optionsflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "", "Path to configuration file")
	tiersPath := flag.String("tiers", "tiers.yml", "Path to tier routing file")

	flag.Parse()

	cfg, err := appconfig.LoadConfig(appconfig.ResolveConfigPath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	tiers, err := appconfig.LoadTiers(*tiersPath)
	if err != nil {
		log.WithError(err).Error("Failed to load tier configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Optionsflow.Name,
		"version": cfg.Optionsflow.Version,
	}).Info("starting optionsflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.InitCloudWatch("", cfg.Optionsflow.Name, cfg.Logging.DashboardName)
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	channels := channel.NewChannels(
		cfg.Channels.RawBuffer,
		cfg.Channels.TradeBuffer,
		cfg.Channels.GroupBuffer,
	)
	defer channels.Close()

	channels.StartMetricsReporting(ctx)

	var st store.Store
	switch cfg.Store.Backend {
	case "redis":
		st, err = store.NewRedisStore(ctx, cfg.Store)
		if err != nil {
			log.WithError(err).Error("failed to connect to redis")
			os.Exit(1)
		}
	default:
		st = store.NewMemoryStore()
	}
	defer st.Close()

	// The normalizer tees accepted trades into the archive channel only when
	// S3 archival is on.
	var archiveCh chan models.Trade
	var archiveWriter *writer.ArchiveWriter
	if cfg.Storage.S3.Enabled {
		archiveCh = make(chan models.Trade, cfg.Channels.TradeBuffer)
		archiveWriter, err = writer.NewArchiveWriter(cfg, archiveCh)
		if err != nil {
			log.WithError(err).Error("failed to create archive writer")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 archival disabled")
	}

	normalizer := processor.NewNormalizer(cfg, st, channels, archiveCh)
	grouper := processor.NewGrouper(cfg, st, channels)
	classifier, err := processor.NewClassifier(cfg, channels)
	if err != nil {
		log.WithError(err).Error("failed to load strategy taxonomy")
		os.Exit(1)
	}

	dispatcher := writer.NewDispatcher(cfg, tiers, channels, writer.NewTelegramSender(cfg))

	var mirror *writer.KafkaMirror
	if cfg.Storage.Kafka.Enabled {
		mirror, err = writer.NewKafkaMirror(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create kafka mirror")
			os.Exit(1)
		}
		dispatcher.SetMirror(mirror)
	}

	var deribitReader *deribit.Deribit_Trades_Reader
	var deribitWS *deribit.Deribit_Trades_WS
	var bybitReader *bybit.Bybit_Trades_Reader
	var okxReader *okx.Okx_Trades_Reader
	var binanceReader *binance.Binance_Trades_Reader

	if cfg.Source.Deribit.Enabled {
		deribitReader = deribit.Deribit_Trades_NewReader(cfg, channels, st)
		if err := deribitReader.Deribit_Trades_Start(ctx); err != nil {
			log.WithError(err).Error("failed to start deribit reader")
			os.Exit(1)
		}
		if cfg.Source.Deribit.Websocket.Enabled {
			deribitWS = deribit.Deribit_Trades_NewWS(cfg, channels)
			if err := deribitWS.Deribit_Trades_WS_Start(ctx); err != nil {
				log.WithError(err).Error("failed to start deribit websocket")
				os.Exit(1)
			}
		}
	}
	if cfg.Source.Bybit.Enabled {
		bybitReader = bybit.Bybit_Trades_NewReader(cfg, channels, st)
		if err := bybitReader.Bybit_Trades_Start(ctx); err != nil {
			log.WithError(err).Error("failed to start bybit reader")
			os.Exit(1)
		}
	}
	if cfg.Source.Okx.Enabled {
		okxReader = okx.Okx_Trades_NewReader(cfg, channels, st)
		if err := okxReader.Okx_Trades_Start(ctx); err != nil {
			log.WithError(err).Error("failed to start okx reader")
			os.Exit(1)
		}
	}
	if cfg.Source.Binance.Enabled {
		binanceReader = binance.Binance_Trades_NewReader(cfg, channels, st)
		if err := binanceReader.Binance_Trades_Start(ctx); err != nil {
			log.WithError(err).Error("failed to start binance reader")
			os.Exit(1)
		}
	}

	if err := normalizer.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start normalizer")
		os.Exit(1)
	}
	if err := grouper.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start grouper")
		os.Exit(1)
	}
	if err := classifier.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start classifier")
		os.Exit(1)
	}
	if err := dispatcher.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start dispatcher")
		os.Exit(1)
	}
	if archiveWriter != nil {
		if err := archiveWriter.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start archive writer")
			os.Exit(1)
		}
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")

	// Readers stop first so the pipeline drains front to back.
	if deribitWS != nil {
		deribitWS.Deribit_Trades_WS_Stop()
	}
	if deribitReader != nil {
		deribitReader.Deribit_Trades_Stop()
	}
	if bybitReader != nil {
		bybitReader.Bybit_Trades_Stop()
	}
	if okxReader != nil {
		okxReader.Okx_Trades_Stop()
	}
	if binanceReader != nil {
		binanceReader.Binance_Trades_Stop()
	}

	cancel()

	normalizer.Stop()
	grouper.Stop()
	classifier.Stop()
	dispatcher.Stop()
	if archiveWriter != nil {
		archiveWriter.Stop()
	}
	if mirror != nil {
		mirror.Close()
	}

	log.Info("optionsflow stopped")
}
