package jobs

import (
	"context"
	"time"
)

// StartWorker processes pending runs until ctx is done, one at a time.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started", "interval", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("job worker stopping")
			return
		case <-ticker.C:
			for m.ProcessNext(ctx) {
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// ProcessNext claims and runs the oldest pending run. It reports whether a
// run was found.
func (m *Manager) ProcessNext(ctx context.Context) bool {
	run, err := m.repo.ClaimNext(ctx)
	if err != nil {
		m.logger.Error("failed to claim run", "error", err)
		return false
	}
	if run == nil {
		return false
	}

	log := m.logger.With("id", run.ID, "source", run.Source)
	log.Info("processing run")

	summary, err := m.run(ctx, run)
	if err != nil {
		log.Error("run failed", "error", err)
		// The run context may already be cancelled; the status write must
		// still land.
		finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if ferr := m.repo.Fail(finishCtx, run.ID, summary, err); ferr != nil {
			log.Error("failed to mark run as failed", "error", ferr)
		}
		return true
	}

	if err := m.repo.Complete(ctx, run.ID, summary); err != nil {
		log.Error("failed to mark run as completed", "error", err)
		return true
	}

	log.Info("run completed")
	return true
}
