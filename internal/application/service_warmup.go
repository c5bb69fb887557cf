package application

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/millbrook/orderdesk/internal/domain"
)

// RegisterWarmupJob adds or replaces a named warmup job.
func (s *Service) RegisterWarmupJob(job WarmupJob) error {
	if job.Name == "" || job.CacheKey == "" || job.Loader == nil {
		return fmt.Errorf("%w: warmup job needs name, cache key and loader", domain.ErrInvalidInput)
	}
	s.warmupMu.Lock()
	defer s.warmupMu.Unlock()
	s.warmupJobs[job.Name] = job
	return nil
}

// WarmupFailures reports loader failures accumulated since startup.
func (s *Service) WarmupFailures() int64 {
	return s.warmupFailures.Load()
}

func (s *Service) warmupJobList() []WarmupJob {
	s.warmupMu.Lock()
	defer s.warmupMu.Unlock()
	jobs := make([]WarmupJob, 0, len(s.warmupJobs))
	for _, job := range s.warmupJobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].Priority != jobs[j].Priority {
			return jobs[i].Priority > jobs[j].Priority
		}
		return jobs[i].Name < jobs[j].Name
	})
	return jobs
}

// RunWarmup executes all registered jobs in priority order, batched to bound
// load on the origin stores. Only one full warmup runs at a time.
func (s *Service) RunWarmup(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	if !s.warmupActive.CompareAndSwap(false, true) {
		return domain.ErrWarmupInProgress
	}
	defer s.warmupActive.Store(false)

	jobs := s.warmupJobList()
	start := s.nowFn()
	var failures int

	for offset := 0; offset < len(jobs); offset += s.cfg.WarmupBatchSize {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		end := offset + s.cfg.WarmupBatchSize
		if end > len(jobs) {
			end = len(jobs)
		}

		var wg sync.WaitGroup
		results := make([]error, end-offset)
		for i, job := range jobs[offset:end] {
			wg.Add(1)
			go func(i int, job WarmupJob) {
				defer wg.Done()
				results[i] = s.runWarmupJob(ctx, job)
			}(i, job)
		}
		wg.Wait()

		for i, err := range results {
			if err != nil {
				failures++
				s.warmupFailures.Add(1)
				s.logger.WarnContext(ctx, "warmup job failed",
					"operation", "warmup",
					"outcome", "failure",
					"job", jobs[offset+i].Name,
					"error", err,
				)
			}
		}

		if end < len(jobs) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.WarmupBatchDelay):
			}
		}
	}

	s.logger.InfoContext(ctx, "warmup pass finished",
		"operation", "warmup",
		"outcome", "success",
		"jobs", len(jobs),
		"failures", failures,
		"elapsed_ms", s.nowFn().Sub(start).Milliseconds(),
	)
	return nil
}

// RunWarmupJob runs a single registered job by name, bypassing the batch
// scheduler. Used by the admin surface.
func (s *Service) RunWarmupJob(ctx context.Context, name string) error {
	s.warmupMu.Lock()
	job, ok := s.warmupJobs[name]
	s.warmupMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: warmup job %q", domain.ErrNotFound, name)
	}
	if err := s.runWarmupJob(ctx, job); err != nil {
		s.warmupFailures.Add(1)
		return err
	}
	return nil
}

// runWarmupJob loads and caches one key. A panicking loader is contained
// here so one misbehaving job cannot take down a whole pass.
func (s *Service) runWarmupJob(ctx context.Context, job WarmupJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("warmup loader %s panicked: %v", job.Name, r)
		}
	}()

	value, err := job.Loader(ctx)
	if err != nil {
		return fmt.Errorf("warmup loader %s: %w", job.Name, err)
	}
	if value == nil {
		// Nothing to warm; caching a JSON null would poison the key
		// for its full TTL.
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode warmup value %s: %w", job.Name, err)
	}
	s.store.Set(ctx, job.CacheKey, raw, job.Tier.TTL())
	return nil
}

// runLightWarmup reloads only high-priority jobs whose keys have fallen out
// of the cache, leaving still-warm keys untouched.
func (s *Service) runLightWarmup(ctx context.Context) {
	for _, job := range s.warmupJobList() {
		if job.Priority < s.cfg.LightWarmupMinPriority {
			break
		}
		if _, ok := s.store.Get(ctx, job.CacheKey); ok {
			continue
		}
		if err := s.runWarmupJob(ctx, job); err != nil {
			s.warmupFailures.Add(1)
			s.logger.WarnContext(ctx, "light warmup job failed",
				"operation", "light_warmup",
				"outcome", "failure",
				"job", job.Name,
				"error", err,
			)
		}
	}
}

// RunWarmupScheduler drives warmup for a long-lived process: one full pass
// after the startup grace delay, then periodic full passes interleaved with
// lighter top-up passes for the highest-priority keys.
func (s *Service) RunWarmupScheduler(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.cfg.WarmupGraceDelay):
	}

	if err := s.RunWarmup(ctx); err != nil && ctx.Err() == nil {
		s.logger.WarnContext(ctx, "initial warmup pass failed",
			"operation", "warmup_scheduler",
			"outcome", "failure",
			"error", err,
		)
	}

	full := time.NewTicker(s.cfg.WarmupInterval)
	light := time.NewTicker(s.cfg.LightWarmupInterval)
	defer full.Stop()
	defer light.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-full.C:
			if err := s.RunWarmup(ctx); err != nil && ctx.Err() == nil {
				s.logger.WarnContext(ctx, "scheduled warmup pass failed",
					"operation", "warmup_scheduler",
					"outcome", "failure",
					"error", err,
				)
			}
		case <-light.C:
			s.runLightWarmup(ctx)
		}
	}
}
