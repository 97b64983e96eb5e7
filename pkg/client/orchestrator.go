// Package client drives chunked uploads against the drive server: it opens
// a session, sends chunks with bounded concurrency and retries, reports
// confirmed progress and completes or cancels the session.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zots0127/drive/internal/domain/entities"
)

const (
	DefaultConcurrency = 3
	DefaultMaxRetries  = 5

	cancelTimeout = 30 * time.Second
)

// ErrCancelled is returned when an upload is cancelled before completion
var ErrCancelled = entities.ErrCancelled

// Options tune a single upload
type Options struct {
	// ChunkSize of zero lets the server pick
	ChunkSize   int64
	Concurrency int
	MaxRetries  uint64
	// OnProgress is called synchronously, never concurrently, with
	// non-decreasing confirmed byte counts
	OnProgress func(Progress)
	Journal    *Journal
}

func (o Options) withDefaults() Options {
	if o.Concurrency < 1 {
		o.Concurrency = DefaultConcurrency
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	return o
}

// Progress is a snapshot of bytes the server has confirmed
type Progress struct {
	UploadID    string
	Bytes       int64
	Total       int64
	Chunks      int
	TotalChunks int
	Done        bool
}

// Percent is 100 only once the upload has been completed
func (p Progress) Percent() float64 {
	if p.Done {
		return 100
	}
	if p.Total <= 0 {
		return 0
	}
	pct := float64(p.Bytes) * 100 / float64(p.Total)
	if pct > 99.9 {
		pct = 99.9
	}
	return pct
}

// UploadError is the terminal failure of an upload
type UploadError struct {
	Reason   string
	Progress Progress
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s at %.1f%% (%d/%d bytes): %v",
		e.Reason, e.Progress.Percent(), e.Progress.Bytes, e.Progress.Total, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Orchestrator runs uploads over a Transport
type Orchestrator struct {
	transport  Transport
	logger     *zap.SugaredLogger
	newBackOff func() backoff.BackOff
}

// NewOrchestrator creates an orchestrator. A nil logger discards logs.
func NewOrchestrator(transport Transport, logger *zap.SugaredLogger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Orchestrator{
		transport: transport,
		logger:    logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

type upload struct {
	id          string
	fingerprint string
	total       int64
	chunkSize   int64
	totalChunks int
	received    []int
}

// Upload sends src and returns the stored file. Cancelling ctx stops new
// chunk attempts, cancels the server session and returns ErrCancelled,
// unless complete already succeeded.
func (o *Orchestrator) Upload(ctx context.Context, src Source, opts Options) (*entities.FileInfo, error) {
	opts = opts.withDefaults()

	up, err := o.open(ctx, src, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &UploadError{Reason: "upload cancelled", Progress: Progress{Total: src.Size()}, Err: ErrCancelled}
		}
		return nil, &UploadError{Reason: "initiate failed", Progress: Progress{Total: src.Size()}, Err: err}
	}

	tr := newTracker(up, opts.OnProgress)
	for _, index := range up.received {
		tr.confirm(index, entities.ExpectedChunkSize(up.total, up.chunkSize, index))
	}

	err = o.sendChunks(ctx, src, up, tr, opts)
	if ctx.Err() != nil {
		return nil, o.abort(up, tr, opts)
	}
	if err != nil {
		return nil, &UploadError{Reason: "chunk upload failed", Progress: tr.snapshot(), Err: err}
	}

	var info *entities.FileInfo
	err = o.retry(ctx, opts, func() error {
		var err error
		info, err = o.transport.Complete(ctx, up.id)
		return err
	}, "complete", up.id)
	// a committed file stands even if ctx was cancelled meanwhile
	if err != nil && ctx.Err() != nil {
		return nil, o.abort(up, tr, opts)
	}
	if err != nil {
		return nil, &UploadError{Reason: "complete failed", Progress: tr.snapshot(), Err: err}
	}

	o.forget(up, opts)
	tr.finish()
	o.logger.Infow("upload completed", "upload_id", up.id, "file_id", info.ID, "size", up.total)
	return info, nil
}

// open resumes the journaled session for src when it is still active,
// otherwise initiates a new one
func (o *Orchestrator) open(ctx context.Context, src Source, opts Options) (*upload, error) {
	fp := fingerprintOf(src)

	if opts.Journal != nil && fp != "" {
		if up := o.resume(ctx, src, fp, opts.Journal); up != nil {
			return up, nil
		}
	}

	var resp *entities.InitiateUploadResponse
	err := o.retry(ctx, opts, func() error {
		var err error
		resp, err = o.transport.Initiate(ctx, &entities.InitiateUploadRequest{
			Filename:  src.Name(),
			TotalSize: src.Size(),
			ChunkSize: opts.ChunkSize,
		})
		return err
	}, "initiate", "")
	if err != nil {
		return nil, err
	}

	up := &upload{
		id:          resp.UploadID,
		fingerprint: fp,
		total:       src.Size(),
		chunkSize:   resp.ChunkSize,
		totalChunks: resp.TotalChunks,
	}
	if opts.Journal != nil && fp != "" {
		entry := &JournalEntry{
			Fingerprint: fp,
			UploadID:    up.id,
			Name:        src.Name(),
			Size:        up.total,
			ChunkSize:   up.chunkSize,
			StartedAt:   time.Now().UTC(),
		}
		if err := opts.Journal.Record(ctx, entry); err != nil {
			o.logger.Warnw("failed to record upload in journal", "upload_id", up.id, "error", err)
		}
	}
	o.logger.Infow("upload initiated", "upload_id", up.id, "filename", src.Name(), "total_chunks", up.totalChunks)
	return up, nil
}

func (o *Orchestrator) resume(ctx context.Context, src Source, fp string, journal *Journal) *upload {
	entry, err := journal.Lookup(ctx, fp)
	if err != nil {
		o.logger.Warnw("failed to read upload journal", "error", err)
		return nil
	}
	if entry == nil {
		return nil
	}

	view, err := o.transport.Status(ctx, entry.UploadID)
	if err != nil || view.Status != entities.UploadStatusActive || view.TotalSize != src.Size() {
		o.logger.Infow("journaled upload cannot be resumed, starting over", "upload_id", entry.UploadID, "error", err)
		if err := journal.Forget(ctx, fp); err != nil {
			o.logger.Warnw("failed to drop journal entry", "upload_id", entry.UploadID, "error", err)
		}
		return nil
	}

	o.logger.Infow("resuming upload", "upload_id", view.UploadID, "uploaded_chunks", view.UploadedChunks, "total_chunks", view.TotalChunks)
	return &upload{
		id:          view.UploadID,
		fingerprint: fp,
		total:       view.TotalSize,
		chunkSize:   view.ChunkSize,
		totalChunks: view.TotalChunks,
		received:    view.ReceivedChunks,
	}
}

func (o *Orchestrator) sendChunks(ctx context.Context, src Source, up *upload, tr *tracker, opts Options) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for index := 1; index <= up.totalChunks; index++ {
		if tr.has(index) {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		index := index
		g.Go(func() error {
			return o.sendChunk(gctx, src, up, index, tr, opts)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) sendChunk(ctx context.Context, src Source, up *upload, index int, tr *tracker, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	size := entities.ExpectedChunkSize(up.total, up.chunkSize, index)
	buf := make([]byte, size)
	n, err := src.ReadAt(buf, int64(index-1)*up.chunkSize)
	if int64(n) != size {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("failed to read chunk %d: %w", index, err)
	}

	// Requests already sent run to completion; cancellation only stops retries
	// and discards the result.
	reqCtx := context.WithoutCancel(ctx)
	err = o.retry(ctx, opts, func() error {
		_, err := o.transport.UploadChunk(reqCtx, up.id, index, buf)
		return err
	}, "chunk", up.id)
	if err != nil {
		return fmt.Errorf("chunk %d: %w", index, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tr.confirm(index, size)
	return nil
}

// retry runs op until it succeeds, fails permanently or ctx is done
func (o *Orchestrator) retry(ctx context.Context, opts Options, op func() error, what, uploadID string) error {
	attempt := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := op()
		if err != nil && !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		o.logger.Warnw("request failed, retrying", "op", what, "upload_id", uploadID, "retry_in", wait, "error", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(o.newBackOff(), opts.MaxRetries), ctx)
	return backoff.RetryNotify(attempt, policy, notify)
}

func (o *Orchestrator) abort(up *upload, tr *tracker, opts Options) error {
	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()

	if err := o.transport.Cancel(ctx, up.id); err != nil {
		o.logger.Warnw("failed to cancel upload on server", "upload_id", up.id, "error", err)
	}
	o.forget(up, opts)
	o.logger.Infow("upload cancelled", "upload_id", up.id)
	return &UploadError{Reason: "upload cancelled", Progress: tr.snapshot(), Err: ErrCancelled}
}

func (o *Orchestrator) forget(up *upload, opts Options) {
	if opts.Journal == nil || up.fingerprint == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()
	if err := opts.Journal.Forget(ctx, up.fingerprint); err != nil {
		o.logger.Warnw("failed to drop journal entry", "upload_id", up.id, "error", err)
	}
}

// tracker serialises progress callbacks so observers see confirmed bytes
// grow monotonically
type tracker struct {
	mu       sync.Mutex
	progress Progress
	seen     map[int]struct{}
	notify   func(Progress)
}

func newTracker(up *upload, notify func(Progress)) *tracker {
	return &tracker{
		progress: Progress{
			UploadID:    up.id,
			Total:       up.total,
			TotalChunks: up.totalChunks,
		},
		seen:   make(map[int]struct{}, up.totalChunks),
		notify: notify,
	}
}

func (t *tracker) has(index int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.seen[index]
	return ok
}

func (t *tracker) confirm(index int, size int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[index]; ok {
		return
	}
	t.seen[index] = struct{}{}
	t.progress.Bytes += size
	t.progress.Chunks++
	if t.notify != nil {
		t.notify(t.progress)
	}
}

func (t *tracker) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.progress.Bytes = t.progress.Total
	t.progress.Chunks = t.progress.TotalChunks
	t.progress.Done = true
	if t.notify != nil {
		t.notify(t.progress)
	}
}

func (t *tracker) snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}
