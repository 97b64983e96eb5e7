package client

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/zots0127/drive/internal/domain/entities"
)

// ErrTooManyUploads is returned by Start when the manager is full
var ErrTooManyUploads = errors.New("too many active uploads")

// Manager tracks the uploads running in this process. Each one is
// cancellable on its own and leaves the table when it finishes.
type Manager struct {
	orchestrator *Orchestrator
	maxActive    int

	mu     sync.Mutex
	active map[string]*Handle
}

// NewManager creates a manager allowing at most maxActive concurrent
// uploads; zero means no limit
func NewManager(orchestrator *Orchestrator, maxActive int) *Manager {
	return &Manager{
		orchestrator: orchestrator,
		maxActive:    maxActive,
		active:       make(map[string]*Handle),
	}
}

// Handle is a running upload
type Handle struct {
	ID string

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	progress Progress
	info     *entities.FileInfo
	err      error
}

// Start runs src in the background
func (m *Manager) Start(ctx context.Context, src Source, opts Options) (*Handle, error) {
	m.mu.Lock()
	if m.maxActive > 0 && len(m.active) >= m.maxActive {
		m.mu.Unlock()
		return nil, ErrTooManyUploads
	}

	uctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		ID:       uuid.NewString(),
		cancel:   cancel,
		done:     make(chan struct{}),
		progress: Progress{Total: src.Size()},
	}
	m.active[h.ID] = h
	m.mu.Unlock()

	report := opts.OnProgress
	opts.OnProgress = func(p Progress) {
		h.mu.Lock()
		h.progress = p
		h.mu.Unlock()
		if report != nil {
			report(p)
		}
	}

	go func() {
		defer cancel()
		info, err := m.orchestrator.Upload(uctx, src, opts)

		h.mu.Lock()
		h.info, h.err = info, err
		h.mu.Unlock()

		m.mu.Lock()
		delete(m.active, h.ID)
		m.mu.Unlock()
		close(h.done)
	}()
	return h, nil
}

// Get returns a running upload by handle id
func (m *Manager) Get(id string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.active[id]
	return h, ok
}

// Active lists the running uploads
func (m *Manager) Active() []*Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	handles := make([]*Handle, 0, len(m.active))
	for _, h := range m.active {
		handles = append(handles, h)
	}
	return handles
}

// CancelAll cancels every running upload and waits for them to stop
func (m *Manager) CancelAll() {
	for _, h := range m.Active() {
		h.Cancel()
	}
	for _, h := range m.Active() {
		<-h.Done()
	}
}

// Cancel requests cancellation. It returns immediately; use Wait for the outcome.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed when the upload has finished
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the upload finishes
func (h *Handle) Wait() (*entities.FileInfo, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.info, h.err
}

// Progress returns the latest confirmed progress
func (h *Handle) Progress() Progress {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.progress
}
