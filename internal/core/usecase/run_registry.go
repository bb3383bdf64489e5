package usecase

import (
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

// runRegistry holds live AnalysisRun records and is the only place their
// state changes. Every accessor returns a detached snapshot.
type runRegistry struct {
	mu   sync.RWMutex
	runs map[string]*domain.AnalysisRun
	now  func() time.Time
}

func newRunRegistry(now func() time.Time) *runRegistry {
	return &runRegistry{runs: make(map[string]*domain.AnalysisRun), now: now}
}

func (r *runRegistry) create(run domain.AnalysisRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[run.ID]; exists {
		return domain.WrapError(domain.ErrInvalidInput, "register run", fmt.Errorf("run %s already exists", run.ID))
	}
	stored := run.Clone()
	r.runs[run.ID] = &stored
	return nil
}

// adopt registers a run loaded from elsewhere unless one is already tracked.
func (r *runRegistry) adopt(run domain.AnalysisRun) domain.AnalysisRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.runs[run.ID]; ok {
		return existing.Clone()
	}
	stored := run.Clone()
	r.runs[run.ID] = &stored
	return stored.Clone()
}

func (r *runRegistry) get(id string) (domain.AnalysisRun, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return domain.AnalysisRun{}, false
	}
	return run.Clone(), true
}

// start moves a pending run to running with a known block total.
func (r *runRegistry) start(id string, total int) (domain.AnalysisRun, error) {
	return r.mutate(id, "start run", func(run *domain.AnalysisRun) error {
		if run.Status != domain.AnalysisPending {
			return domain.WrapError(domain.ErrInvalidInput, "start run", fmt.Errorf("run %s is %s", id, run.Status))
		}
		if total <= 0 {
			return domain.WrapError(domain.ErrInvalidInput, "start run", fmt.Errorf("total blocks must be positive, got %d", total))
		}
		run.Status = domain.AnalysisRunning
		run.TotalBlocks = total
		return nil
	})
}

// appendBlock enforces the ordered-prefix contract: blocks arrive one at a
// time in sequence order and never exceed the total.
func (r *runRegistry) appendBlock(id string, block domain.ClassifiedBlock) (domain.AnalysisRun, error) {
	return r.mutate(id, "append block", func(run *domain.AnalysisRun) error {
		if run.Status != domain.AnalysisRunning {
			return domain.WrapError(domain.ErrInvalidInput, "append block", fmt.Errorf("run %s is %s", id, run.Status))
		}
		next := len(run.ProcessedBlocks) + 1
		if next > run.TotalBlocks {
			return domain.WrapError(domain.ErrInvalidInput, "append block", fmt.Errorf("run %s already holds all %d blocks", id, run.TotalBlocks))
		}
		if block.Block.SequenceNumber != next {
			return domain.WrapError(domain.ErrInvalidInput, "append block", fmt.Errorf("expected block %d, got %d", next, block.Block.SequenceNumber))
		}
		run.ProcessedBlocks = append(run.ProcessedBlocks, block)
		return nil
	})
}

func (r *runRegistry) complete(id string, result domain.AggregateResult) (domain.AnalysisRun, error) {
	return r.mutate(id, "complete run", func(run *domain.AnalysisRun) error {
		if run.Status == domain.AnalysisRunning && len(run.ProcessedBlocks) != run.TotalBlocks {
			return domain.WrapError(domain.ErrInvalidInput, "complete run", fmt.Errorf("only %d of %d blocks processed", len(run.ProcessedBlocks), run.TotalBlocks))
		}
		rating := result.FinalRating
		confidence := result.ConfidenceScore
		now := r.now()
		run.Status = domain.AnalysisCompleted
		run.FinalRating = &rating
		run.ConfidenceScore = &confidence
		run.ProblemBlockIDs = append([]int(nil), result.ProblemBlockIDs...)
		run.CompletedAt = &now
		return nil
	})
}

func (r *runRegistry) fail(id, reason string) (domain.AnalysisRun, error) {
	return r.mutate(id, "fail run", func(run *domain.AnalysisRun) error {
		now := r.now()
		run.Status = domain.AnalysisFailed
		run.FailureReason = reason
		run.FinalRating = nil
		run.ConfidenceScore = nil
		run.ProblemBlockIDs = nil
		run.CompletedAt = &now
		return nil
	})
}

func (r *runRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, id)
}

// forget drops terminal runs last updated before cutoff.
func (r *runRegistry) forget(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, run := range r.runs {
		if run.Status.Terminal() && run.UpdatedAt.Before(cutoff) {
			delete(r.runs, id)
			n++
		}
	}
	return n
}

func (r *runRegistry) mutate(id, op string, fn func(*domain.AnalysisRun) error) (domain.AnalysisRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return domain.AnalysisRun{}, domain.WrapError(domain.ErrNotFound, op, fmt.Errorf("run %s", id))
	}
	if run.Status.Terminal() {
		return run.Clone(), domain.WrapError(domain.ErrRunFinalized, op, fmt.Errorf("run %s is %s", id, run.Status))
	}
	if err := fn(run); err != nil {
		return run.Clone(), err
	}
	run.UpdatedAt = r.now()
	run.Progress = run.ComputeProgress()
	return run.Clone(), nil
}
