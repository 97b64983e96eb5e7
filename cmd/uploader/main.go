package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/zots0127/drive/pkg/client"
	"github.com/zots0127/drive/pkg/logger"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "uploader",
		Usage:   "resumable chunked uploads to a drive server",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "http://localhost:8080", EnvVars: []string{"DRIVE_SERVER"}, Usage: "server base URL"},
			&cli.StringFlag{Name: "token", EnvVars: []string{"DRIVE_TOKEN"}, Usage: "bearer token"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log requests and retries"},
		},
		Commands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "upload one or more files",
				ArgsUsage: "FILE...",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "chunk-size", Usage: "chunk size, e.g. 8MiB; empty lets the server decide"},
					&cli.IntFlag{Name: "concurrency", Value: client.DefaultConcurrency, Usage: "chunks in flight per file"},
					&cli.IntFlag{Name: "parallel", Value: 1, Usage: "files uploaded at once"},
					&cli.Uint64Flag{Name: "retries", Value: client.DefaultMaxRetries, Usage: "retries per request"},
					&cli.StringFlag{Name: "journal", Value: defaultJournalDir(), EnvVars: []string{"DRIVE_JOURNAL"}, Usage: "resume journal directory"},
					&cli.BoolFlag{Name: "no-resume", Usage: "do not record or resume uploads"},
				},
				Action: uploadAction,
			},
			{
				Name:      "status",
				Usage:     "show the state of an upload session",
				ArgsUsage: "UPLOAD_ID",
				Action:    statusAction,
			},
			{
				Name:      "cancel",
				Usage:     "cancel an upload session and free its space",
				ArgsUsage: "UPLOAD_ID",
				Action:    cancelAction,
			},
			{
				Name:  "pending",
				Usage: "list uploads recorded in the resume journal",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "journal", Value: defaultJournalDir(), EnvVars: []string{"DRIVE_JOURNAL"}},
				},
				Action: pendingAction,
			},
		},
	}
}

func defaultJournalDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".drive-uploader"
	}
	return filepath.Join(dir, "drive-uploader")
}

func newTransport(c *cli.Context) (*client.HTTPTransport, error) {
	token := c.String("token")
	if token == "" {
		return nil, errors.New("a bearer token is required (--token or DRIVE_TOKEN)")
	}
	return client.NewHTTPTransport(c.String("server"), token, nil), nil
}

func newLogger(c *cli.Context) *zap.SugaredLogger {
	if !c.Bool("verbose") {
		return zap.NewNop().Sugar()
	}
	log, err := logger.New("uploader", logger.Options{Level: "debug", Format: "console", Output: "stderr"})
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return log
}

func uploadAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("no files given", 2)
	}
	transport, err := newTransport(c)
	if err != nil {
		return err
	}

	var chunkSize int64
	if s := c.String("chunk-size"); s != "" {
		n, err := humanize.ParseBytes(s)
		if err != nil {
			return fmt.Errorf("invalid --chunk-size: %w", err)
		}
		chunkSize = int64(n)
	}

	var journal *client.Journal
	if !c.Bool("no-resume") {
		if err := os.MkdirAll(c.String("journal"), 0o700); err != nil {
			return err
		}
		journal, err = client.OpenJournal(c.String("journal"))
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer journal.Close()
	}

	parallel := c.Int("parallel")
	if parallel < 1 {
		parallel = 1
	}
	manager := client.NewManager(client.NewOrchestrator(transport, newLogger(c)), parallel)
	out := newPrinter(c.App.ErrWriter, c.NArg() == 1)

	type started struct {
		src    *client.FileSource
		handle *client.Handle
	}
	var (
		mu     sync.Mutex
		failed int
	)
	finish := func(s started) {
		info, err := s.handle.Wait()
		s.src.Close()
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failed++
			out.fail(s.src.Name(), err)
			return
		}
		out.done(s.src.Name(), info.ID, info.FileSize)
	}

	var wg sync.WaitGroup
	for _, path := range c.Args().Slice() {
		if c.Context.Err() != nil {
			break
		}
		src, err := client.OpenFile(path)
		if err != nil {
			out.fail(path, err)
			mu.Lock()
			failed++
			mu.Unlock()
			continue
		}

		name := src.Name()
		opts := client.Options{
			ChunkSize:   chunkSize,
			Concurrency: c.Int("concurrency"),
			MaxRetries:  c.Uint64("retries"),
			Journal:     journal,
			OnProgress:  func(p client.Progress) { out.progress(name, p) },
		}

		var handle *client.Handle
		for {
			handle, err = manager.Start(c.Context, src, opts)
			if !errors.Is(err, client.ErrTooManyUploads) {
				break
			}
			waitForSlot(c.Context, manager)
		}
		if err != nil {
			src.Close()
			return err
		}

		s := started{src: src, handle: handle}
		wg.Add(1)
		go func() {
			defer wg.Done()
			finish(s)
		}()
	}
	wg.Wait()

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d uploads failed", failed, c.NArg()), 1)
	}
	return nil
}

// waitForSlot blocks until any running upload finishes
func waitForSlot(ctx context.Context, manager *client.Manager) {
	active := manager.Active()
	if len(active) == 0 {
		return
	}
	cases := make(chan struct{}, len(active))
	for _, h := range active {
		h := h
		go func() {
			select {
			case <-h.Done():
			case <-ctx.Done():
			}
			cases <- struct{}{}
		}()
	}
	<-cases
}

func statusAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: uploader status UPLOAD_ID", 2)
	}
	transport, err := newTransport(c)
	if err != nil {
		return err
	}

	view, err := transport.Status(c.Context, c.Args().First())
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "upload:   %s\n", view.UploadID)
	fmt.Fprintf(w, "file:     %s\n", view.Filename)
	fmt.Fprintf(w, "status:   %s\n", view.Status)
	fmt.Fprintf(w, "chunks:   %d/%d (%s each)\n", view.UploadedChunks, view.TotalChunks, humanize.IBytes(uint64(view.ChunkSize)))
	fmt.Fprintf(w, "received: %s of %s\n", humanize.IBytes(uint64(view.UploadedBytes)), humanize.IBytes(uint64(view.TotalSize)))
	fmt.Fprintf(w, "started:  %s\n", humanize.Time(view.CreatedAt))
	fmt.Fprintf(w, "updated:  %s\n", humanize.Time(view.UpdatedAt))
	return nil
}

func cancelAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: uploader cancel UPLOAD_ID", 2)
	}
	transport, err := newTransport(c)
	if err != nil {
		return err
	}

	if err := transport.Cancel(c.Context, c.Args().First()); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "cancelled %s\n", c.Args().First())
	return nil
}

func pendingAction(c *cli.Context) error {
	journal, err := client.OpenJournal(c.String("journal"))
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer journal.Close()

	entries, err := journal.All(c.Context)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.App.Writer, "no pending uploads")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(c.App.Writer, "%s  %-30s  %10s  started %s\n",
			e.UploadID, e.Name, humanize.IBytes(uint64(e.Size)), humanize.Time(e.StartedAt))
	}
	return nil
}

// printer writes progress lines; with a single upload it redraws one line
type printer struct {
	mu     sync.Mutex
	w      io.Writer
	inline bool
	last   map[string]time.Time
}

func newPrinter(w io.Writer, inline bool) *printer {
	if w == nil {
		w = os.Stderr
	}
	return &printer{w: w, inline: inline, last: make(map[string]time.Time)}
}

func (p *printer) progress(name string, pr client.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.inline && time.Since(p.last[name]) < time.Second {
		return
	}
	p.last[name] = time.Now()

	line := fmt.Sprintf("%s  %5.1f%%  %s / %s", name, pr.Percent(),
		humanize.IBytes(uint64(pr.Bytes)), humanize.IBytes(uint64(pr.Total)))
	if p.inline {
		fmt.Fprintf(p.w, "\r%-70s", line)
		return
	}
	fmt.Fprintln(p.w, line)
}

func (p *printer) done(name, fileID string, size int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inline {
		fmt.Fprintln(p.w)
	}
	fmt.Fprintf(p.w, "%s  uploaded as %s (%s)\n", name, fileID, humanize.IBytes(uint64(size)))
}

func (p *printer) fail(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inline {
		fmt.Fprintln(p.w)
	}
	if errors.Is(err, client.ErrCancelled) {
		fmt.Fprintf(p.w, "%s  cancelled\n", name)
		return
	}
	fmt.Fprintf(p.w, "%s  failed: %v\n", name, err)
}
