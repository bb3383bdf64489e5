package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/script-rating/internal/core/domain"
	"github.com/kirillkom/script-rating/internal/core/ports"
)

const inlineTextFilename = "script.txt"

// Submit stores the upload, records a pending run and dispatches it.
func (uc *AnalysisUseCase) Submit(ctx context.Context, req ports.SubmitRequest) (*domain.AnalysisRun, error) {
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit analysis", errors.New("filename is required"))
	}
	if req.Body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit analysis", errors.New("body is required"))
	}
	if req.TargetRating != nil && !req.TargetRating.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit analysis", fmt.Errorf("invalid target rating %d", int(*req.TargetRating)))
	}

	uc.sweep()

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	if err := uc.storage.Save(ctx, storageKey, req.Body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	run, err := uc.registerWithID(ctx, id, filename, req.MimeType, storageKey, req.TargetRating)
	if err != nil {
		return nil, err
	}
	if err := uc.dispatch(ctx, run.ID); err != nil {
		return nil, err
	}

	snapshot, err := uc.GetStatus(ctx, run.ID)
	if err != nil {
		snapshot = run
	}
	return &snapshot, nil
}

// SubmitText submits already normalized text as a plain-text upload.
func (uc *AnalysisUseCase) SubmitText(ctx context.Context, text string, target *domain.Rating) (*domain.AnalysisRun, error) {
	return uc.Submit(ctx, ports.SubmitRequest{
		Filename:     inlineTextFilename,
		MimeType:     "text/plain",
		Body:         strings.NewReader(text),
		TargetRating: target,
	})
}

func (uc *AnalysisUseCase) register(ctx context.Context, filename, mimeType, storageKey string, target *domain.Rating) (domain.AnalysisRun, error) {
	return uc.registerWithID(ctx, uuid.NewString(), filename, mimeType, storageKey, target)
}

func (uc *AnalysisUseCase) registerWithID(
	ctx context.Context,
	id, filename, mimeType, storageKey string,
	target *domain.Rating,
) (domain.AnalysisRun, error) {
	now := uc.now()
	run := domain.AnalysisRun{
		ID:              id,
		Filename:        filename,
		MimeType:        mimeType,
		StoragePath:     storageKey,
		Status:          domain.AnalysisPending,
		TargetRating:    target,
		ProcessedBlocks: []domain.ClassifiedBlock{},
		ProblemBlockIDs: []int{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}.Clone()

	if err := uc.repo.Create(ctx, run); err != nil {
		return domain.AnalysisRun{}, fmt.Errorf("create analysis record: %w", err)
	}
	if err := uc.runs.create(run); err != nil {
		return domain.AnalysisRun{}, err
	}
	return run, nil
}

func (uc *AnalysisUseCase) dispatch(ctx context.Context, id string) error {
	if uc.opts.Dispatch == DispatchQueue {
		if err := uc.queue.PublishAnalysisRequested(ctx, id); err != nil {
			cause := &domain.StageError{Stage: stageDispatch, Err: err}
			_, _ = uc.failRun(ctx, id, uc.now(), cause)
			return domain.WrapError(domain.ErrTemporary, "publish analysis request", err)
		}
		// A worker owns the run from here; status reads go to the repository.
		uc.runs.remove(id)
		return nil
	}

	uc.wg.Add(1)
	go func() {
		defer uc.wg.Done()
		if err := uc.ProcessByID(uc.baseCtx, id); err != nil {
			uc.opts.Logger.Debug("inline analysis ended with error", "analysis_id", id, "error", err)
		}
	}()
	return nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
