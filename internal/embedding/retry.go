package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"golang.org/x/time/rate"

	"filing-rag/internal/config"
	"filing-rag/internal/models"
)

// ServiceError is returned once an embedding call has failed on every
// attempt. It matches models.ErrEmbeddingService.
type ServiceError struct {
	Attempts int
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("embedding failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ServiceError) Unwrap() []error { return []error{models.ErrEmbeddingService, e.Err} }

// Retrying wraps an embedder with batching, a token bucket and bounded
// exponential backoff.
type Retrying struct {
	next        embeddings.Embedder
	limiter     *rate.Limiter
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	batchSize   int
}

func NewRetrying(next embeddings.Embedder, cfg config.RetryConfig) *Retrying {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	r := &Retrying{
		next:        next,
		limiter:     rate.NewLimiter(limit, burst),
		maxAttempts: max(cfg.MaxAttempts, 1),
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		batchSize:   cfg.BatchSize,
	}
	if r.batchSize <= 0 {
		r.batchSize = 32
	}
	return r
}

// EmbedDocuments embeds texts in batches. The result has one vector per
// input text, in input order, or an error and no vectors at all.
func (r *Retrying) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += r.batchSize {
		end := min(start+r.batchSize, len(texts))
		batch := texts[start:end]
		var vecs [][]float32
		err := r.do(ctx, func(ctx context.Context) error {
			var err error
			vecs, err = r.next.EmbedDocuments(ctx, batch)
			if err == nil && len(vecs) != len(batch) {
				err = fmt.Errorf("got %d vectors for %d texts", len(vecs), len(batch))
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (r *Retrying) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		vec, err = r.next.EmbedQuery(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

func (r *Retrying) do(ctx context.Context, call func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return r.fail(ctx, attempt, err)
		}
		lastErr = call(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return r.fail(ctx, attempt+1, lastErr)
		}
		if attempt == r.maxAttempts-1 {
			break
		}
		delay := r.retryDelay(attempt)
		log.Warn().Err(lastErr).Int("attempt", attempt+1).Dur("delay", delay).Msg("Embedding call failed, retrying")
		select {
		case <-ctx.Done():
			return r.fail(ctx, attempt+1, ctx.Err())
		case <-time.After(delay):
		}
	}
	return &ServiceError{Attempts: r.maxAttempts, Err: lastErr}
}

func (r *Retrying) fail(ctx context.Context, attempts int, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %v", ctxErr, err)
	}
	return &ServiceError{Attempts: attempts, Err: err}
}

func (r *Retrying) retryDelay(attempt int) time.Duration {
	d := r.baseDelay << attempt
	if r.maxDelay > 0 && (d > r.maxDelay || d <= 0) {
		d = r.maxDelay
	}
	return d
}
