package writer

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "optionsflow/config"
	"optionsflow/logger"
	"optionsflow/models"
)

// TradeRecord is the parquet row schema for archived prints.
type TradeRecord struct {
	TradeID     string  `parquet:"name=trade_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Venue       string  `parquet:"name=venue, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol      string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Currency    string  `parquet:"name=currency, type=BYTE_ARRAY, convertedtype=UTF8"`
	Direction   string  `parquet:"name=direction, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price       float64 `parquet:"name=price, type=DOUBLE"`
	Size        float64 `parquet:"name=size, type=DOUBLE"`
	IV          float64 `parquet:"name=iv, type=DOUBLE"`
	IndexPrice  float64 `parquet:"name=index_price, type=DOUBLE"`
	Timestamp   int64   `parquet:"name=timestamp, type=INT64"`
	BlockID     string  `parquet:"name=block_trade_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Liquidation bool    `parquet:"name=liquidation, type=BOOLEAN"`
}

// memoryFileWriter implements the ParquetFile interface for in-memory writing.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	// The parquet writer only appends.
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// ArchiveWriter batches normalized trades per venue and periodically writes
// them to S3 as parquet. It consumes a tee channel fed by the normalizer so
// archival never sits in the alert path.
type ArchiveWriter struct {
	config      *appconfig.Config
	tradeCh     <-chan models.Trade
	s3Client    *s3.Client
	ctx         context.Context
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
	log         *logger.Log
	buffer      map[string][]models.Trade
	flushTicker *time.Ticker
}

func NewArchiveWriter(cfg *appconfig.Config, tradeCh <-chan models.Trade) (*ArchiveWriter, error) {
	log := logger.GetLogger()

	ctx := context.Background()

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	aw := &ArchiveWriter{
		config:   cfg,
		tradeCh:  tradeCh,
		s3Client: s3Client,
		log:      log,
	}

	log.WithComponent("archive_writer").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("archive writer initialized")

	return aw, nil
}

func (w *ArchiveWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("archive writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.buffer = make(map[string][]models.Trade)
	w.flushTicker = time.NewTicker(w.config.Storage.S3.FlushInterval)
	w.mu.Unlock()

	w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"flush_interval": w.config.Storage.S3.FlushInterval.String(),
	}).Info("starting archive writer")

	w.wg.Add(1)
	go w.consume()

	w.wg.Add(1)
	go w.flushWorker()

	return nil
}

func (w *ArchiveWriter) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	w.log.WithComponent("archive_writer").Info("stopping archive writer")
	w.wg.Wait()
	w.log.WithComponent("archive_writer").Info("archive writer stopped")
}

func (w *ArchiveWriter) consume() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case trade, ok := <-w.tradeCh:
			if !ok {
				return
			}
			w.mu.Lock()
			w.buffer[trade.Venue] = append(w.buffer[trade.Venue], trade)
			w.mu.Unlock()
		}
	}
}

func (w *ArchiveWriter) flushWorker() {
	defer w.wg.Done()

	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{"worker": "flush"})
	log.Info("starting flush worker")

	for {
		select {
		case <-w.ctx.Done():
			w.flushBuffers("shutdown")
			log.Info("flush worker stopped due to context cancellation")
			return
		case <-w.flushTicker.C:
			w.flushBuffers("interval")
		}
	}
}

func (w *ArchiveWriter) flushBuffers(reason string) {
	w.mu.Lock()
	buffers := w.buffer
	w.buffer = make(map[string][]models.Trade)
	w.mu.Unlock()

	if len(buffers) == 0 {
		return
	}

	w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"flushed_buffers": len(buffers),
		"reason":          reason,
	}).Info("flushing trade buffers")

	for venue, trades := range buffers {
		if len(trades) == 0 {
			continue
		}
		w.archiveBatch(venue, trades)
	}
}

func (w *ArchiveWriter) archiveBatch(venue string, trades []models.Trade) {
	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"venue":        venue,
		"record_count": len(trades),
		"operation":    "archive_batch",
	})

	s3Key := w.generateS3Key(venue, time.Now().UTC())
	log = log.WithFields(logger.Fields{"s3_key": s3Key})

	parquetData, fileSize, err := w.createParquetFile(trades)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	if err := w.uploadToS3(s3Key, parquetData); err != nil {
		log.WithError(err).
			WithFields(logger.Fields{"bucket": w.config.Storage.S3.Bucket}).
			Error("failed to upload to S3")
		return
	}

	logger.IncrementArchiveWrite(fileSize)
	log.WithFields(logger.Fields{"file_size": fileSize}).Info("trade batch archived")
}

func (w *ArchiveWriter) generateS3Key(venue string, now time.Time) string {
	parts := []string{
		w.config.Storage.S3.Prefix,
		fmt.Sprintf("venue=%s", venue),
		fmt.Sprintf("date=%s", now.Format("2006-01-02")),
		fmt.Sprintf("trades_%s_%s.parquet", now.Format("20060102150405"), uuid.New().String()[:8]),
	}
	if parts[0] == "" {
		parts = parts[1:]
	}
	return filepath.ToSlash(filepath.Join(parts...))
}

func (w *ArchiveWriter) createParquetFile(trades []models.Trade) ([]byte, int64, error) {
	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(TradeRecord), 4)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range trades {
		t := &trades[i]
		record := TradeRecord{
			TradeID:     t.ID,
			Venue:       t.Venue,
			Symbol:      t.Symbol,
			Currency:    t.Currency,
			Direction:   t.Direction,
			Price:       t.Price,
			Size:        t.Size,
			Timestamp:   t.Timestamp,
			BlockID:     t.BlockID,
			Liquidation: t.Liquidation,
		}
		if t.IV != nil {
			record.IV = *t.IV
		}
		if t.IndexPrice != nil {
			record.IndexPrice = *t.IndexPrice
		}
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, 0, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, 0, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	data := fw.Bytes()
	return data, int64(len(data)), nil
}

func (w *ArchiveWriter) uploadToS3(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":        "parquet",
			"compression":         "snappy",
			"optionsflow-version": w.config.Optionsflow.Version,
		},
	}

	// Shutdown flushes must still reach S3 after the run context is cancelled.
	ctx := context.WithoutCancel(w.ctx)
	_, err := w.s3Client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", w.config.Storage.S3.Bucket, err)
	}
	return nil
}
