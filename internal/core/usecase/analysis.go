package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/script-rating/internal/core/domain"
	"github.com/kirillkom/script-rating/internal/core/ports"
)

const (
	stageParse     = "parse"
	stageSegment   = "segment"
	stageClassify  = "classify"
	stageRecord    = "record"
	stageAggregate = "aggregate"
	stageDispatch  = "dispatch"

	defaultRunRetention = time.Hour
)

type DispatchMode string

const (
	DispatchInline DispatchMode = "inline"
	DispatchQueue  DispatchMode = "queue"
)

type AnalysisOptions struct {
	Dispatch DispatchMode
	// Timeout bounds one run; 0 disables it.
	Timeout time.Duration
	// Retention is how long finished runs stay in memory after their last
	// update. Older runs are still served from the repository.
	Retention time.Duration
	Logger    *slog.Logger
	Observer  ports.AnalysisObserver
	Sinks     []ports.ResultSink
}

type blockClassifier interface {
	Classify(ctx context.Context, block domain.ContentBlock) (domain.ClassifiedBlock, error)
}

// AnalysisUseCase drives script analyses through
// pending -> running -> completed|failed and serves progress snapshots.
type AnalysisUseCase struct {
	repo       ports.AnalysisRepository
	storage    ports.ObjectStorage
	queue      ports.AnalysisQueue
	parser     ports.DocumentParser
	segmenter  ports.Segmenter
	classifier blockClassifier
	runs       *runRegistry
	opts       AnalysisOptions
	now        func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

func NewAnalysisUseCase(
	repo ports.AnalysisRepository,
	storage ports.ObjectStorage,
	queue ports.AnalysisQueue,
	parser ports.DocumentParser,
	segmenter ports.Segmenter,
	classifier blockClassifier,
	opts AnalysisOptions,
) *AnalysisUseCase {
	if opts.Dispatch == "" || (opts.Dispatch == DispatchQueue && queue == nil) {
		opts.Dispatch = DispatchInline
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRunRetention
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}

	now := func() time.Time { return time.Now().UTC() }
	baseCtx, stop := context.WithCancel(context.Background())
	return &AnalysisUseCase{
		repo:       repo,
		storage:    storage,
		queue:      queue,
		parser:     parser,
		segmenter:  segmenter,
		classifier: classifier,
		runs:       newRunRegistry(now),
		opts:       opts,
		now:        now,
		baseCtx:    baseCtx,
		stop:       stop,
	}
}

// GetStatus returns a snapshot of the run. Runs executed by another process
// are read from the repository.
func (uc *AnalysisUseCase) GetStatus(ctx context.Context, analysisID string) (domain.AnalysisRun, error) {
	analysisID = strings.TrimSpace(analysisID)
	if analysisID == "" {
		return domain.AnalysisRun{}, domain.WrapError(domain.ErrInvalidInput, "get analysis status", errors.New("analysis id is required"))
	}
	if run, ok := uc.runs.get(analysisID); ok {
		return run, nil
	}
	run, err := uc.repo.GetByID(ctx, analysisID)
	if err != nil {
		return domain.AnalysisRun{}, fmt.Errorf("load analysis: %w", err)
	}
	return run.Clone(), nil
}

// ProcessByID is the queue consumer entry point: it loads the stored upload,
// parses it and runs the pipeline. Redelivery of a finished run is a no-op.
func (uc *AnalysisUseCase) ProcessByID(ctx context.Context, analysisID string) error {
	uc.sweep()

	run, ok := uc.runs.get(analysisID)
	if !ok {
		loaded, err := uc.repo.GetByID(ctx, analysisID)
		if err != nil {
			return fmt.Errorf("load analysis: %w", err)
		}
		run = uc.runs.adopt(loaded)
	}

	if run.Status.Terminal() {
		uc.opts.Logger.Info("analysis already finished, skipping", "analysis_id", run.ID, "status", run.Status)
		return nil
	}

	started := uc.now()
	uc.opts.Observer.RunStarted()
	if run.Status == domain.AnalysisRunning {
		_, err := uc.failRun(ctx, run.ID, started, &domain.StageError{
			Stage: stageClassify,
			Err:   errors.New("run was interrupted before completion"),
		})
		return err
	}

	doc, err := uc.loadScript(ctx, run)
	if err != nil {
		_, err = uc.failRun(ctx, run.ID, started, &domain.StageError{Stage: stageParse, Err: err})
		return err
	}
	_, err = uc.execute(ctx, run.ID, doc, run.TargetRating, started)
	return err
}

// AnalyzeDocument registers a run for already normalized text and executes
// it synchronously, returning the terminal snapshot.
func (uc *AnalysisUseCase) AnalyzeDocument(
	ctx context.Context,
	filename string,
	doc domain.ScriptText,
	target *domain.Rating,
) (domain.AnalysisRun, error) {
	uc.sweep()

	run, err := uc.register(ctx, filename, "text/plain", "", target)
	if err != nil {
		return domain.AnalysisRun{}, err
	}
	started := uc.now()
	uc.opts.Observer.RunStarted()
	return uc.execute(ctx, run.ID, doc, target, started)
}

// sweep drops finished runs older than the retention window. Every entry
// point calls it, so workers and the CLI stay bounded too.
func (uc *AnalysisUseCase) sweep() {
	if n := uc.runs.forget(uc.now().Add(-uc.opts.Retention)); n > 0 {
		uc.opts.Logger.Debug("finished analyses evicted from memory", "count", n)
	}
}

// Wait blocks until every inline run started so far has finished.
func (uc *AnalysisUseCase) Wait() {
	uc.wg.Wait()
}

// Shutdown stops inline runs from starting new blocks and waits for them.
func (uc *AnalysisUseCase) Shutdown(ctx context.Context) error {
	uc.stop()
	done := make(chan struct{})
	go func() {
		uc.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (uc *AnalysisUseCase) loadScript(ctx context.Context, run domain.AnalysisRun) (domain.ScriptText, error) {
	rc, err := uc.storage.Open(ctx, run.StoragePath)
	if err != nil {
		return domain.ScriptText{}, fmt.Errorf("open stored upload: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.ScriptText{}, fmt.Errorf("read stored upload: %w", err)
	}
	doc, err := uc.parser.Parse(ctx, data, run.MimeType, run.Filename)
	if err != nil {
		return domain.ScriptText{}, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// execute runs segment -> classify (sequentially) -> aggregate for a pending
// run. Cancellation is honoured between blocks only.
func (uc *AnalysisUseCase) execute(
	ctx context.Context,
	id string,
	doc domain.ScriptText,
	target *domain.Rating,
	started time.Time,
) (domain.AnalysisRun, error) {
	if uc.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.opts.Timeout)
		defer cancel()
	}

	blocks, err := uc.segmenter.Segment(doc)
	if err != nil {
		return uc.failRun(ctx, id, started, &domain.StageError{Stage: stageSegment, Err: err})
	}
	if len(blocks) == 0 {
		return uc.completeRun(ctx, id, started, Aggregate(nil, target))
	}

	run, err := uc.runs.start(id, len(blocks))
	if err != nil {
		return uc.failRun(ctx, id, started, &domain.StageError{Stage: stageSegment, Err: err})
	}
	uc.persist(ctx, run)
	uc.opts.Logger.Info("analysis running", "analysis_id", id, "total_blocks", len(blocks))

	classified := make([]domain.ClassifiedBlock, 0, len(blocks))
	for _, block := range blocks {
		if err := ctx.Err(); err != nil {
			return uc.failRun(ctx, id, started, &domain.StageError{
				Stage: stageClassify,
				Block: block.SequenceNumber,
				Err:   fmt.Errorf("run aborted before block started: %w", err),
			})
		}

		blockStarted := time.Now()
		cb, err := uc.classifyBlock(context.WithoutCancel(ctx), block)
		if err != nil {
			return uc.failRun(ctx, id, started, err)
		}
		run, err = uc.runs.appendBlock(id, cb)
		if err != nil {
			return uc.failRun(ctx, id, started, &domain.StageError{Stage: stageRecord, Block: block.SequenceNumber, Err: err})
		}
		uc.opts.Observer.BlockClassified(time.Since(blockStarted), len(cb.Citations))
		uc.persist(ctx, run)
		classified = append(classified, cb)
	}

	result, err := uc.aggregate(classified, target)
	if err != nil {
		return uc.failRun(ctx, id, started, err)
	}
	return uc.completeRun(ctx, id, started, result)
}

func (uc *AnalysisUseCase) classifyBlock(ctx context.Context, block domain.ContentBlock) (cb domain.ClassifiedBlock, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.StageError{Stage: stageClassify, Block: block.SequenceNumber, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	cb, err = uc.classifier.Classify(ctx, block)
	if err != nil {
		return domain.ClassifiedBlock{}, &domain.StageError{Stage: stageClassify, Block: block.SequenceNumber, Err: err}
	}
	return cb, nil
}

func (uc *AnalysisUseCase) aggregate(blocks []domain.ClassifiedBlock, target *domain.Rating) (result domain.AggregateResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.StageError{Stage: stageAggregate, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return Aggregate(blocks, target), nil
}

func (uc *AnalysisUseCase) completeRun(ctx context.Context, id string, started time.Time, result domain.AggregateResult) (domain.AnalysisRun, error) {
	run, err := uc.runs.complete(id, result)
	if err != nil {
		return uc.failRun(ctx, id, started, &domain.StageError{Stage: stageAggregate, Err: err})
	}
	uc.finish(ctx, run, started)
	uc.opts.Logger.Info("analysis completed",
		"analysis_id", id,
		"final_rating", result.FinalRating.String(),
		"confidence", result.ConfidenceScore,
		"problem_blocks", len(result.ProblemBlockIDs),
	)
	return run, nil
}

// failRun records cause as the failure reason and returns it. A run that is
// already terminal keeps its state.
func (uc *AnalysisUseCase) failRun(ctx context.Context, id string, started time.Time, cause error) (domain.AnalysisRun, error) {
	run, err := uc.runs.fail(id, cause.Error())
	if err != nil {
		return run, errors.Join(cause, err)
	}
	uc.finish(ctx, run, started)

	attrs := []any{"analysis_id", id, "error", cause}
	var stageErr *domain.StageError
	if errors.As(cause, &stageErr) {
		attrs = append(attrs, "stage", stageErr.Stage, "block", stageErr.Block)
	}
	uc.opts.Logger.Error("analysis failed", attrs...)
	return run, cause
}

func (uc *AnalysisUseCase) finish(ctx context.Context, run domain.AnalysisRun, started time.Time) {
	uc.persist(ctx, run)
	ctx = context.WithoutCancel(ctx)
	for _, sink := range uc.opts.Sinks {
		if err := sink.DeliverResult(ctx, run); err != nil {
			uc.opts.Logger.Warn("result sink failed", "analysis_id", run.ID, "error", err)
		}
	}
	uc.opts.Observer.RunFinished(run.Status, uc.now().Sub(started), run.FinalRating)
}

// persist writes the snapshot through to the repository. Failures are logged:
// the in-memory registry stays authoritative for this process.
func (uc *AnalysisUseCase) persist(ctx context.Context, run domain.AnalysisRun) {
	if err := uc.repo.Save(context.WithoutCancel(ctx), run); err != nil {
		uc.opts.Logger.Warn("persist analysis snapshot failed", "analysis_id", run.ID, "status", run.Status, "error", err)
	}
}
