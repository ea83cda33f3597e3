package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	appconfig "candleflow/config"
	"candleflow/logger"
	"candleflow/models"
)

// Archiver uploads the committed prefix of finished segments to S3 for
// off-host retention. Only bytes below the last committed output offset are
// shipped; the provisional tail never leaves the machine.
type Archiver struct {
	config   *appconfig.Config
	s3Client *s3.Client
	limiter  *rate.Limiter
	runID    string
	log      *logger.Log
}

// NewArchiver constructs an archiver from the storage.s3 configuration.
func NewArchiver(cfg *appconfig.Config) (*Archiver, error) {
	log := logger.GetLogger()
	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	uploadRate := cfg.Storage.S3.UploadRate
	if uploadRate <= 0 {
		uploadRate = 4
	}

	log.WithComponent("archiver").WithFields(logger.Fields{
		"bucket":      cfg.Storage.S3.Bucket,
		"region":      cfg.Storage.S3.Region,
		"endpoint":    cfg.Storage.S3.Endpoint,
		"path_style":  cfg.Storage.S3.PathStyle,
		"upload_rate": uploadRate,
	}).Info("archiver initialized")

	return &Archiver{
		config:   cfg,
		s3Client: s3Client,
		limiter:  rate.NewLimiter(rate.Limit(uploadRate), 1),
		runID:    uuid.New().String(),
		log:      log,
	}, nil
}

// ArchiveSymbol uploads every timeframe segment of one symbol.
func (a *Archiver) ArchiveSymbol(ctx context.Context, symbol string) error {
	for _, tf := range a.config.Timeframes {
		if err := a.archiveSegment(ctx, symbol, tf.Name); err != nil {
			return &models.SymbolError{Symbol: symbol, Err: err}
		}
	}
	return nil
}

func (a *Archiver) archiveSegment(ctx context.Context, symbol, timeframe string) error {
	segPath := models.SegmentPath(a.config.Storage.MasterDir, symbol, timeframe)
	log := a.log.WithComponent("archiver").WithFields(logger.Fields{
		"symbol":    symbol,
		"timeframe": timeframe,
	})

	if _, err := os.Stat(segPath); os.IsNotExist(err) {
		log.Debug("segment missing, skipping")
		return nil
	}

	ix := OpenIndex(IndexPath(segPath), false)
	progress, err := ix.Read()
	if err != nil {
		return err
	}
	if progress.OutputOffset == 0 {
		log.Debug("nothing committed yet, skipping")
		return nil
	}

	data, err := os.ReadFile(segPath)
	if err != nil {
		return &models.TransactionError{Op: "read segment", Err: err}
	}
	if uint64(len(data)) < progress.OutputOffset {
		return &models.FormatError{Path: segPath, Size: int64(len(data))}
	}
	committed := data[:progress.OutputOffset]

	if err := a.limiter.Wait(ctx); err != nil {
		return &models.TransactionError{Op: "rate wait", Err: err}
	}

	key := path.Join(
		"candles",
		fmt.Sprintf("symbol=%s", symbol),
		fmt.Sprintf("timeframe=%s", timeframe),
		fmt.Sprintf("%s.bin", timeframe),
	)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(committed),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"candleflow-version": a.config.Candleflow.Version,
			"run-id":             a.runID,
			"committed-offset":   fmt.Sprintf("%d", progress.OutputOffset),
		},
	}
	if _, err := a.s3Client.PutObject(ctx, input); err != nil {
		return &models.TransactionError{Op: "s3 put", Err: fmt.Errorf("bucket %s key %s: %w", a.config.Storage.S3.Bucket, key, err)}
	}

	logger.IncrementArchiveUpload(int64(len(committed)))
	log.WithFields(logger.Fields{"s3_key": key, "bytes": len(committed)}).Info("segment archived")
	return nil
}
