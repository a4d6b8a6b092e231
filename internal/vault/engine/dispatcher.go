package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/hashfs/internal/vault/models"
)

// ErrDispatcherClosed is returned for requests submitted after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// ProgressEvent is one advancement report from a long-running
// operation, keyed by the caller-supplied operation id.
type ProgressEvent struct {
	OperationID string
	Completed   int
	Total       int
	Current     string
}

// Dispatcher serializes engine calls onto a single executor goroutine.
// The engine owns mutable state with no internal locking; the
// dispatcher is what makes that safe. Requests run strictly FIFO: a
// load submitted after a save completes observes the saved version.
//
// Long operations report progress on Events; sends are non-blocking, so
// a slow or absent consumer loses events rather than stalling the
// executor.
type Dispatcher struct {
	eng    *Engine
	tasks  chan func()
	events chan ProgressEvent

	closeOnce sync.Once
	closed    chan struct{}
	drained   chan struct{}
}

// NewDispatcher starts the executor goroutine over eng.
func NewDispatcher(eng *Engine) *Dispatcher {
	d := &Dispatcher{
		eng:     eng,
		tasks:   make(chan func(), 16),
		events:  make(chan ProgressEvent, 64),
		closed:  make(chan struct{}),
		drained: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.drained)
	for {
		select {
		case <-d.closed:
			return
		case task := <-d.tasks:
			task()
		}
	}
}

// Events exposes the progress stream.
func (d *Dispatcher) Events() <-chan ProgressEvent { return d.events }

// Close stops the executor and closes the engine session. Queued but
// unstarted requests fail with ErrDispatcherClosed.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		close(d.closed)
		<-d.drained
		_ = d.eng.Close()
	})
	return nil
}

// submit runs fn on the executor and waits for it. The context bounds
// only the wait for a free slot and the reply, not fn itself: a running
// operation is always driven to completion to preserve invariants.
func submit[T any](ctx context.Context, d *Dispatcher, fn func() (T, error)) (T, error) {
	var zero T
	reply := make(chan struct{})
	var result T
	var err error

	task := func() {
		result, err = fn()
		close(reply)
	}

	select {
	case d.tasks <- task:
	case <-d.closed:
		return zero, ErrDispatcherClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case <-reply:
		return result, err
	case <-d.closed:
		return zero, ErrDispatcherClosed
	}
}

// progress builds a Progress callback that forwards onto the event
// channel without blocking the executor.
func (d *Dispatcher) progress(operationID string) models.Progress {
	if operationID == "" {
		return nil
	}
	return func(completed, total int, current string) {
		ev := ProgressEvent{
			OperationID: operationID,
			Completed:   completed,
			Total:       total,
			Current:     current,
		}
		select {
		case d.events <- ev:
		default:
		}
	}
}

// Init unlocks the vault for the passphrase.
func (d *Dispatcher) Init(ctx context.Context, passphrase string) (*models.InitResult, error) {
	return submit(ctx, d, func() (*models.InitResult, error) {
		return d.eng.Init(ctx, passphrase)
	})
}

// Load reads one version of a file; nil version selects the head.
func (d *Dispatcher) Load(ctx context.Context, filename string, version *int64, validate bool) (*models.LoadResult, error) {
	return submit(ctx, d, func() (*models.LoadResult, error) {
		return d.eng.Load(ctx, filename, version, validate)
	})
}

// Save commits a new version of a file.
func (d *Dispatcher) Save(ctx context.Context, filename string, data []byte, mime string, opts SaveOptions) (*models.SaveResult, error) {
	return submit(ctx, d, func() (*models.SaveResult, error) {
		return d.eng.Save(ctx, filename, data, mime, opts)
	})
}

// Delete removes a file and returns the remaining summaries.
func (d *Dispatcher) Delete(ctx context.Context, filename string) ([]models.FileSummary, error) {
	return submit(ctx, d, func() ([]models.FileSummary, error) {
		if err := d.eng.Delete(ctx, filename); err != nil {
			return nil, err
		}
		return d.eng.filesSummary(), nil
	})
}

// History lists the retained versions of a file.
func (d *Dispatcher) History(ctx context.Context, filename string) ([]models.VersionInfo, error) {
	return submit(ctx, d, func() ([]models.VersionInfo, error) {
		return d.eng.History(ctx, filename)
	})
}

// Rename changes a file's logical name and returns the summaries.
func (d *Dispatcher) Rename(ctx context.Context, oldName, newName string) ([]models.FileSummary, error) {
	return submit(ctx, d, func() ([]models.FileSummary, error) {
		if err := d.eng.Rename(ctx, oldName, newName); err != nil {
			return nil, err
		}
		return d.eng.filesSummary(), nil
	})
}

// Files lists the current file summaries.
func (d *Dispatcher) Files(ctx context.Context) ([]models.FileSummary, error) {
	return submit(ctx, d, func() ([]models.FileSummary, error) {
		return d.eng.Files()
	})
}

// ExportZip packs the vault into a ZIP archive.
func (d *Dispatcher) ExportZip(ctx context.Context, operationID string) ([]byte, error) {
	return submit(ctx, d, func() ([]byte, error) {
		return d.eng.ExportZip(ctx, d.progress(operationID))
	})
}

// ImportZip unpacks an archive into save-ready items.
func (d *Dispatcher) ImportZip(ctx context.Context, archive []byte, operationID string) ([]models.ImportItem, error) {
	return submit(ctx, d, func() ([]models.ImportItem, error) {
		return d.eng.ImportZip(ctx, archive, d.progress(operationID))
	})
}

// ImportFiles shapes loose files into save-ready items.
func (d *Dispatcher) ImportFiles(ctx context.Context, inputs []ImportFileInput, operationID string) ([]models.ImportItem, error) {
	return submit(ctx, d, func() ([]models.ImportItem, error) {
		return d.eng.ImportFiles(ctx, inputs, d.progress(operationID))
	})
}

// IntegrityCheck runs the full vault validation and orphan sweep.
func (d *Dispatcher) IntegrityCheck(ctx context.Context, operationID string) (*models.IntegrityReport, error) {
	return submit(ctx, d, func() (*models.IntegrityReport, error) {
		return d.eng.IntegrityCheck(ctx, d.progress(operationID))
	})
}
