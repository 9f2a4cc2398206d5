package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shy020501/Video-Automation/internal/models"
)

// Ledger records run state. It is optional.
type Ledger interface {
	CreateRun(ctx context.Context, run *models.Run) error
	UpdateRunStatus(ctx context.Context, id uuid.UUID, status models.RunStatus) error
	SetRunResult(ctx context.Context, id uuid.UUID, job, finalVideoPath, remoteVideoID string) error
	UpdateRunError(ctx context.Context, id uuid.UUID, errorMessage string) error
}

type RunQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*models.RunRequest, error)
}

const (
	dequeueTimeout = 5 * time.Second
	dequeueBackoff = 2 * time.Second
	recordTimeout  = 10 * time.Second
)

// Worker runs pipeline requests one at a time, either from the queue or
// directly from the CLI, and keeps the ledger in sync.
type Worker struct {
	pipeline *Pipeline
	queue    RunQueue
	ledger   Ledger
	logger   *zap.Logger
}

func New(p *Pipeline, q RunQueue, ledger Ledger, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{pipeline: p, queue: q, ledger: ledger, logger: logger}
}

// Start consumes the queue until ctx is cancelled. Runs are serialized.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker shutting down")
			return nil
		default:
		}

		req, err := w.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(dequeueBackoff):
			}
			continue
		}
		if req == nil {
			continue // Queue empty, poll again
		}

		// Failures are already logged and recorded.
		_, _ = w.Execute(ctx, *req)
	}
}

// RunNow records a new run and executes it immediately.
func (w *Worker) RunNow(ctx context.Context, job string, stages models.Stages) (*Result, error) {
	req := models.RunRequest{
		ID:        uuid.New(),
		Job:       job,
		Stages:    stages.String(),
		CreatedAt: time.Now().UTC(),
	}
	if w.ledger != nil {
		run := &models.Run{ID: req.ID, Job: job, Stages: req.Stages, Status: models.RunStatusQueued}
		if err := w.ledger.CreateRun(ctx, run); err != nil {
			w.logger.Warn("failed to record run", zap.Error(err))
		}
	}
	return w.Execute(ctx, req)
}

// Execute runs one request through the pipeline.
func (w *Worker) Execute(ctx context.Context, req models.RunRequest) (*Result, error) {
	log := w.logger.With(zap.String("run_id", req.ID.String()))
	log.Info("processing run", zap.String("job", req.Job), zap.String("stages", req.Stages))

	stages := models.DefaultStages()
	if req.Stages != "" {
		var err error
		if stages, err = models.ParseStages(req.Stages); err != nil {
			w.recordError(ctx, req.ID, err)
			return nil, err
		}
	}

	w.recordStatus(ctx, req.ID, models.RunStatusRunning)

	res, err := w.pipeline.Run(ctx, Request{Job: req.Job, Stages: stages})
	if err != nil {
		log.Error("run failed", zap.Error(err))
		w.recordError(ctx, req.ID, err)
		return res, err
	}

	log.Info("run succeeded", zap.String("job", res.Job), zap.String("final", res.FinalPath))
	if w.ledger != nil {
		rctx, cancel := recordContext(ctx)
		defer cancel()
		if err := w.ledger.SetRunResult(rctx, req.ID, res.Job, res.FinalPath, res.VideoID); err != nil {
			log.Warn("failed to record run result", zap.Error(err))
		}
	}
	return res, nil
}

func (w *Worker) recordStatus(ctx context.Context, id uuid.UUID, status models.RunStatus) {
	if w.ledger == nil {
		return
	}
	if err := w.ledger.UpdateRunStatus(ctx, id, status); err != nil {
		w.logger.Warn("failed to update run status", zap.Error(err))
	}
}

func (w *Worker) recordError(ctx context.Context, id uuid.UUID, runErr error) {
	if w.ledger == nil {
		return
	}
	rctx, cancel := recordContext(ctx)
	defer cancel()
	if err := w.ledger.UpdateRunError(rctx, id, runErr.Error()); err != nil {
		w.logger.Warn("failed to record run error", zap.Error(err))
	}
}

// recordContext outlives a cancelled run so the terminal status still lands
// in the ledger during shutdown.
func recordContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
}
