package service

import (
	"context"
	"log"
	"sync"
	"time"

	"loadplan/internal/port"
)

// jobDispatchTimeout bounds one pipeline run. Large documents with the
// full vision budget can take several minutes; this is the hard stop.
const jobDispatchTimeout = 15 * time.Minute

// CalcQueueConfig holds settings for the calculation queue worker.
type CalcQueueConfig struct {
	PollInterval time.Duration
	MaxRetries   int
	Concurrency  int
}

// CalcQueueWorker polls for queued jobs and dispatches them through the
// load calculation pipeline.
type CalcQueueWorker struct {
	jobRepo    port.JobRepository
	jobService JobService
	cfg        CalcQueueConfig
	wg         sync.WaitGroup
}

// NewCalcQueueWorker creates a new CalcQueueWorker.
func NewCalcQueueWorker(jobRepo port.JobRepository, jobService JobService, cfg CalcQueueConfig) *CalcQueueWorker {
	return &CalcQueueWorker{
		jobRepo:    jobRepo,
		jobService: jobService,
		cfg:        cfg,
	}
}

// Start runs the polling loop until ctx is canceled. It blocks until all
// in-flight calculations have finished.
func (w *CalcQueueWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, w.cfg.Concurrency)

	log.Printf("calcQueueWorker: started (poll=%s, concurrency=%d, maxRetries=%d)",
		w.cfg.PollInterval, w.cfg.Concurrency, w.cfg.MaxRetries)

	for {
		select {
		case <-ctx.Done():
			log.Printf("calcQueueWorker: shutting down, waiting for in-flight jobs...")
			w.wg.Wait()
			log.Printf("calcQueueWorker: shutdown complete")
			return
		case <-ticker.C:
			available := w.cfg.Concurrency - len(sem)
			if available <= 0 {
				continue
			}

			jobs, err := w.jobRepo.ClaimQueued(ctx, available)
			if err != nil {
				if ctx.Err() != nil {
					// Context canceled during poll; exit gracefully
					continue
				}
				log.Printf("calcQueueWorker: ClaimQueued error: %v", err)
				continue
			}

			for i := range jobs {
				job := jobs[i] // copy for goroutine; the claim already counted this attempt

				sem <- struct{}{} // acquire
				w.wg.Add(1)
				go func() {
					defer w.wg.Done()
					defer func() { <-sem }() // release

					// Use a fresh context independent of the poll context
					// so in-flight jobs complete even during shutdown.
					jobCtx, cancel := context.WithTimeout(context.Background(), jobDispatchTimeout)
					defer cancel()

					log.Printf("calcQueueWorker: dispatching job %s (attempt %d)", job.ID, job.Attempts)
					w.jobService.ProcessJob(jobCtx, &job, w.cfg.MaxRetries)
				}()
			}
		}
	}
}
