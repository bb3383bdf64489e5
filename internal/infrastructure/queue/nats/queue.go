package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/script-rating/internal/core/domain"
	"github.com/kirillkom/script-rating/internal/infrastructure/resilience"
)

const (
	DefaultRequestedSubject = "analyses.requested"
	DefaultCompletedSubject = "analyses.completed"

	workerQueueGroup = "rating-workers"
)

// Queue carries analysis requests to workers and announces finished runs.
type Queue struct {
	conn             *nats.Conn
	requestedSubject string
	completedSubject string
	executor         *resilience.Executor
	logger           *slog.Logger
}

type Options struct {
	RequestedSubject     string
	CompletedSubject     string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("script-rating"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:             conn,
		requestedSubject: orDefault(options.RequestedSubject, DefaultRequestedSubject),
		completedSubject: orDefault(options.CompletedSubject, DefaultCompletedSubject),
		executor:         options.ResilienceExecutor,
		logger:           logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishAnalysisRequested(ctx context.Context, analysisID string) error {
	return q.publish(ctx, "nats.publish_requested", q.requestedSubject, []byte(analysisID))
}

// DeliverResult publishes a compact completion event; it makes the queue a
// ports.ResultSink.
func (q *Queue) DeliverResult(ctx context.Context, run domain.AnalysisRun) error {
	payload, err := json.Marshal(newCompletionEvent(run))
	if err != nil {
		return fmt.Errorf("marshal completion event: %w", err)
	}
	return q.publish(ctx, "nats.publish_completed", q.completedSubject, payload)
}

func (q *Queue) publish(ctx context.Context, operation, subject string, data []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, operation, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(operation, err)
	}
	return nil
}

// SubscribeAnalysisRequested blocks until ctx is done, handing each request
// to handler. Workers share a queue group so each request runs once.
func (q *Queue) SubscribeAnalysisRequested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.requestedSubject, workerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		analysisID := string(msg.Data)
		if err := handler(handlerCtx, analysisID); err != nil {
			q.logger.Error("analysis handler failed", "analysis_id", analysisID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

type completionEvent struct {
	AnalysisID      string                `json:"analysis_id"`
	Status          domain.AnalysisStatus `json:"status"`
	FinalRating     *domain.Rating        `json:"final_rating,omitempty"`
	ConfidenceScore *float64              `json:"confidence_score,omitempty"`
	ProblemBlockIDs []int                 `json:"problem_block_ids"`
	TotalBlocks     int                   `json:"total_blocks"`
	FailureReason   string                `json:"failure_reason,omitempty"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
}

func newCompletionEvent(run domain.AnalysisRun) completionEvent {
	run = run.Clone()
	return completionEvent{
		AnalysisID:      run.ID,
		Status:          run.Status,
		FinalRating:     run.FinalRating,
		ConfidenceScore: run.ConfidenceScore,
		ProblemBlockIDs: run.ProblemBlockIDs,
		TotalBlocks:     run.TotalBlocks,
		FailureReason:   run.FailureReason,
		CompletedAt:     run.CompletedAt,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
