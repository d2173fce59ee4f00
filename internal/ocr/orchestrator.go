package ocr

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LucasKiller/DocLens/internal/config"
	"github.com/LucasKiller/DocLens/internal/domain"
)

// Store is the slice of persistence the orchestrator needs. The DONE
// transition must be atomic: result upsert and status change land together.
type Store interface {
	ClaimDocument(id string) (domain.Document, error)
	MarkFailed(id, reason string) error
	UpsertOcrResultAndMarkDone(id string, res domain.OcrResult) error
}

// Orchestrator owns the document state machine. Uploads enqueue document ids
// without waiting; a bounded worker pool drains the queue so sustained upload
// bursts cannot spawn unbounded OCR engine instances.
type Orchestrator struct {
	store    Store
	provider Provider
	timeout  time.Duration
	workers  int

	queue  chan string
	group  *errgroup.Group
	cancel context.CancelFunc
}

func NewOrchestrator(store Store, provider Provider, cfg config.Config) *Orchestrator {
	workers := cfg.OCRWorkers
	if workers < 1 {
		workers = 1
	}
	queueSize := cfg.OCRQueueSize
	if queueSize < 1 {
		queueSize = 1
	}

	return &Orchestrator{
		store:    store,
		provider: provider,
		timeout:  cfg.OCRTimeout,
		workers:  workers,
		queue:    make(chan string, queueSize),
	}
}

func (o *Orchestrator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel

	group, gctx := errgroup.WithContext(ctx)
	o.group = group

	for i := 0; i < o.workers; i++ {
		group.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case docID := <-o.queue:
					o.Process(gctx, docID)
				}
			}
		})
	}

	log.WithField("workers", o.workers).Info("ocr orchestrator started")
}

// Stop signals the workers and waits for in-flight processing to finish.
func (o *Orchestrator) Stop() {
	if o.cancel == nil {
		return
	}
	o.cancel()
	_ = o.group.Wait()
}

// Enqueue hands a document to the pool without blocking the caller. When the
// queue is saturated the send is parked on its own goroutine until a worker
// frees a slot; the upload request returns immediately and the worker ceiling
// holds, since a parked send runs no engine.
func (o *Orchestrator) Enqueue(docID string) {
	select {
	case o.queue <- docID:
	default:
		log.WithField("document", docID).Warn("ocr queue full, waiting for a worker slot")
		go func() { o.queue <- docID }()
	}
}

// Process drives one document through PROCESSING to a terminal state. It
// never returns an error: there is no caller waiting, so failures are
// recorded on the document itself.
func (o *Orchestrator) Process(ctx context.Context, docID string) {
	logger := log.WithField("document", docID)

	doc, err := o.store.ClaimDocument(docID)
	if errors.Is(err, domain.ErrNotFound) {
		// deleted before processing started; nothing to do
		return
	}
	if errors.Is(err, domain.ErrAlreadyProcessing) {
		logger.Warn("skipping: another processing run holds this document")
		return
	}
	if err != nil {
		logger.WithError(err).Error("failed to claim document")
		return
	}

	runCtx := ctx
	if o.timeout > 0 {
		var cancelRun context.CancelFunc
		runCtx, cancelRun = context.WithTimeout(ctx, o.timeout)
		defer cancelRun()
	}

	started := time.Now()
	extract, err := o.provider.Extract(runCtx, doc.StoragePath)
	if err != nil {
		logger.WithError(err).Error("extraction failed")
		if markErr := o.store.MarkFailed(docID, err.Error()); markErr != nil {
			logger.WithError(markErr).Error("failed to record extraction failure")
		}
		return
	}

	res := domain.OcrResult{
		DocID:      docID,
		Text:       extract.Text,
		Language:   extract.Language,
		Confidence: extract.Confidence,
	}
	if err := o.store.UpsertOcrResultAndMarkDone(docID, res); err != nil {
		logger.WithError(err).Error("failed to persist ocr result")
		if markErr := o.store.MarkFailed(docID, err.Error()); markErr != nil {
			logger.WithError(markErr).Error("failed to record persistence failure")
		}
		return
	}

	logger.WithField("chars", len(extract.Text)).
		WithField("took", time.Since(started).Round(time.Millisecond)).
		Info("document processed")
}
