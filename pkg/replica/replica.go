// Package replica mirrors finalized files to an S3 bucket in the background.
// Replication is best effort: the local copy stays authoritative and a
// failed or dropped upload never affects the upload session.
package replica

import (
	"context"
	"fmt"
	"os"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/zots0127/drive/internal/domain/entities"
)

// S3Config describes the target bucket and how to reach it
type S3Config struct {
	Region    string
	Endpoint  string
	PathStyle bool
	AccessKey string
	SecretKey string
	PartSize  int64
}

// NewS3Uploader builds a multipart-capable uploader. Static credentials are
// used when given, otherwise the default AWS credential chain applies.
func NewS3Uploader(cfg S3Config) (s3manageriface.UploaderAPI, error) {
	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.PathStyle),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return s3manager.NewUploader(sess, func(u *s3manager.Uploader) {
		if cfg.PartSize > 0 {
			u.PartSize = cfg.PartSize
		}
	}), nil
}

// Options controls the worker pool
type Options struct {
	Bucket     string
	Prefix     string
	Workers    int
	QueueSize  int
	MaxRetries uint64
}

// Replicator uploads enqueued files with a fixed pool of workers
type Replicator struct {
	uploader s3manageriface.UploaderAPI
	opts     Options
	logger   *zap.SugaredLogger
	backoff  func() backoff.BackOff

	mu     sync.RWMutex
	closed bool
	queue  chan *entities.StoredFile
	wg     sync.WaitGroup
}

// New creates a replicator. Call Start before enqueueing.
func New(uploader s3manageriface.UploaderAPI, opts Options, logger *zap.SugaredLogger) *Replicator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	return &Replicator{
		uploader: uploader,
		opts:     opts,
		logger:   logger,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
		queue: make(chan *entities.StoredFile, opts.QueueSize),
	}
}

// Start launches the workers. They exit when ctx is done or after Stop
// drains the queue.
func (r *Replicator) Start(ctx context.Context) {
	for i := 0; i < r.opts.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
	r.logger.Infow("replica workers started", "bucket", r.opts.Bucket, "workers", r.opts.Workers)
}

// Enqueue schedules file for upload. It never blocks: when the queue is full
// or the replicator is stopped the file is skipped and logged.
func (r *Replicator) Enqueue(file *entities.StoredFile) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.logger.Warnw("replica stopped, file not mirrored", "file_id", file.ID)
		return
	}
	select {
	case r.queue <- file:
	default:
		r.logger.Warnw("replica queue full, file not mirrored", "file_id", file.ID, "queue_size", r.opts.QueueSize)
	}
}

// Stop refuses new work and waits for queued uploads to finish
func (r *Replicator) Stop() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// Key returns the object key a file is stored under
func (r *Replicator) Key(file *entities.StoredFile) string {
	return path.Join(r.opts.Prefix, file.Owner, file.StoredName)
}

func (r *Replicator) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case file, ok := <-r.queue:
			if !ok {
				return
			}
			r.replicate(ctx, file)
		}
	}
}

func (r *Replicator) replicate(ctx context.Context, file *entities.StoredFile) {
	key := r.Key(file)
	start := time.Now()
	attempts := 0

	policy := backoff.WithContext(backoff.WithMaxRetries(r.backoff(), r.opts.MaxRetries), ctx)
	err := backoff.Retry(func() error {
		attempts++
		return r.upload(ctx, file, key)
	}, policy)
	if err != nil {
		r.logger.Errorw("replica upload failed",
			"file_id", file.ID,
			"key", key,
			"attempts", attempts,
			"error", err,
		)
		return
	}

	r.logger.Infow("file mirrored",
		"file_id", file.ID,
		"key", key,
		"size", file.Size,
		"duration", time.Since(start),
	)
}

func (r *Replicator) upload(ctx context.Context, file *entities.StoredFile, key string) error {
	f, err := os.Open(file.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			// purged before we got to it
			return backoff.Permanent(err)
		}
		return err
	}
	defer f.Close()

	input := &s3manager.UploadInput{
		Bucket: aws.String(r.opts.Bucket),
		Key:    aws.String(key),
		Body:   f,
		Metadata: map[string]*string{
			"Upload-Id":         aws.String(file.UploadID),
			"Original-Filename": aws.String(file.OriginalFilename),
		},
	}
	if file.MimeType != "" {
		input.ContentType = aws.String(file.MimeType)
	}

	_, err = r.uploader.UploadWithContext(ctx, input)
	return err
}
