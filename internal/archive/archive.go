// Package archive exports the loyalty activity log to S3-compatible storage
// as encrypted NDJSON, one object per run, picking up where the previous
// run stopped.
package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dukerupert/loyalty/internal/model"
)

var ErrNotConfigured = errors.New("archive not configured: bucket, credentials and passphrase are required")

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

type Config struct {
	S3         S3Config
	Passphrase string
	// BatchSize bounds how many activity rows are read per query.
	BatchSize int
}

func (c Config) enabled() bool {
	return c.S3.Bucket != "" && c.S3.AccessKey != "" && c.S3.SecretKey != "" && c.Passphrase != ""
}

// ActivityLister is satisfied by *store.ActivityStore.
type ActivityLister interface {
	ListAfter(ctx context.Context, merchantID, afterID int64, limit int) ([]model.Activity, error)
}

// RunStore is satisfied by *store.ArchiveStore.
type RunStore interface {
	LastRun(ctx context.Context, merchantID int64) (*model.ArchiveRun, error)
	Record(ctx context.Context, run model.ArchiveRun) (*model.ArchiveRun, error)
}

// MerchantLister is satisfied by *store.MerchantStore.
type MerchantLister interface {
	List(ctx context.Context) ([]model.Merchant, error)
}

type Archiver struct {
	cfg        Config
	client     s3Client
	activities ActivityLister
	runs       RunStore
	logger     *slog.Logger
	now        func() time.Time
}

// New returns an Archiver. Without complete configuration every run
// returns ErrNotConfigured.
func New(cfg Config, activities ActivityLister, runs RunStore, logger *slog.Logger) *Archiver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	a := &Archiver{cfg: cfg, activities: activities, runs: runs, logger: logger, now: time.Now}
	if cfg.enabled() {
		a.client = newS3Client(cfg.S3)
	}
	return a
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (a *Archiver) Enabled() bool {
	return a.client != nil
}

// Run archives the merchant's activity recorded since the last run. It
// returns nil when there is nothing new.
func (a *Archiver) Run(ctx context.Context, merchantID int64) (*model.ArchiveRun, error) {
	if a.client == nil {
		return nil, ErrNotConfigured
	}

	var after int64
	last, err := a.runs.LastRun(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if last != nil {
		after = last.ToActivityID
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	run := model.ArchiveRun{MerchantID: merchantID}
	for {
		batch, err := a.activities.ListAfter(ctx, merchantID, after, a.cfg.BatchSize)
		if err != nil {
			return nil, err
		}
		for _, act := range batch {
			if err := enc.Encode(act); err != nil {
				return nil, fmt.Errorf("encode activity %d: %w", act.ID, err)
			}
			if run.FromActivityID == 0 {
				run.FromActivityID = act.ID
			}
			run.ToActivityID = act.ID
			run.RecordCount++
		}
		if len(batch) < a.cfg.BatchSize {
			break
		}
		after = batch[len(batch)-1].ID
	}
	if run.RecordCount == 0 {
		a.logger.Debug("nothing to archive", "merchant_id", merchantID)
		return nil, nil
	}

	sealed, err := Seal(buf.Bytes(), a.cfg.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("encrypt archive: %w", err)
	}

	run.ObjectKey = a.objectKey(run)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.S3.Bucket),
		Key:         aws.String(run.ObjectKey),
		Body:        bytes.NewReader(sealed),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", run.ObjectKey, err)
	}

	recorded, err := a.runs.Record(ctx, run)
	if err != nil {
		return nil, err
	}
	a.logger.Info("activity archived", "merchant_id", merchantID, "records", run.RecordCount, "key", run.ObjectKey)
	return recorded, nil
}

func (a *Archiver) objectKey(run model.ArchiveRun) string {
	key := fmt.Sprintf("%d/activities-%010d-%010d-%s.ndjson.enc",
		run.MerchantID, run.FromActivityID, run.ToActivityID, a.now().UTC().Format("20060102T150405Z"))
	if a.cfg.S3.Prefix != "" {
		key = a.cfg.S3.Prefix + "/" + key
	}
	return key
}

// RunAll archives every merchant, continuing past individual failures.
func (a *Archiver) RunAll(ctx context.Context, merchants MerchantLister) ([]model.ArchiveRun, error) {
	list, err := merchants.List(ctx)
	if err != nil {
		return nil, err
	}
	var (
		runs []model.ArchiveRun
		errs []error
	)
	for _, m := range list {
		run, err := a.Run(ctx, m.ID)
		if err != nil {
			a.logger.Error("archive merchant", "merchant_id", m.ID, "error", err)
			errs = append(errs, fmt.Errorf("merchant %d: %w", m.ID, err))
			continue
		}
		if run != nil {
			runs = append(runs, *run)
		}
	}
	return runs, errors.Join(errs...)
}

// Fetch downloads and decrypts an archived object.
func (a *Archiver) Fetch(ctx context.Context, key string) ([]model.Activity, error) {
	if a.client == nil {
		return nil, ErrNotConfigured
	}
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.S3.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	plain, err := Open(data, a.cfg.Passphrase)
	if err != nil {
		return nil, err
	}

	var acts []model.Activity
	sc := bufio.NewScanner(bytes.NewReader(plain))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var act model.Activity
		if err := json.Unmarshal(sc.Bytes(), &act); err != nil {
			return nil, fmt.Errorf("decode archived activity: %w", err)
		}
		acts = append(acts, act)
	}
	return acts, sc.Err()
}

// Start runs RunAll every interval until ctx is done.
func (a *Archiver) Start(ctx context.Context, interval time.Duration, merchants MerchantLister) {
	if a.client == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := a.RunAll(ctx, merchants); err != nil {
					a.logger.Error("scheduled archive", "error", err)
				}
			}
		}
	}()
}
