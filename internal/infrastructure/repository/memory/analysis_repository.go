// Package memory holds process-local repositories used when no database is
// configured, e.g. by the CLI and single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

type AnalysisRepository struct {
	mu   sync.RWMutex
	runs map[string]domain.AnalysisRun
}

func NewAnalysisRepository() *AnalysisRepository {
	return &AnalysisRepository{runs: make(map[string]domain.AnalysisRun)}
}

func (r *AnalysisRepository) Create(_ context.Context, run domain.AnalysisRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[run.ID]; exists {
		return domain.WrapError(domain.ErrInvalidInput, "create analysis", fmt.Errorf("analysis %s already exists", run.ID))
	}
	r.runs[run.ID] = run.Clone()
	return nil
}

func (r *AnalysisRepository) Save(_ context.Context, run domain.AnalysisRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[run.ID]; !exists {
		return domain.WrapError(domain.ErrNotFound, "save analysis", fmt.Errorf("analysis %s", run.ID))
	}
	r.runs[run.ID] = run.Clone()
	return nil
}

func (r *AnalysisRepository) GetByID(_ context.Context, id string) (domain.AnalysisRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return domain.AnalysisRun{}, domain.WrapError(domain.ErrNotFound, "get analysis", fmt.Errorf("analysis %s", id))
	}
	return run.Clone(), nil
}
