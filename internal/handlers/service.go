package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"filing-rag/internal/helper"
	"filing-rag/internal/models"
)

const serviceUnavailableText = "The service is temporarily unavailable. Please try again."

// Service is the caller-facing entry point.
type Service struct {
	chain   *Chain
	timeout time.Duration
}

func NewService(chain *Chain, timeout time.Duration) *Service {
	return &Service{chain: chain, timeout: timeout}
}

// Ask answers one question about entity. Every non-empty question gets an
// answer: handler failures become data-unavailable or service-unavailable
// answers. The only error is ErrEmptyQuestion.
func (s *Service) Ask(ctx context.Context, entity, question string) (models.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return models.Answer{}, models.ErrEmptyQuestion
	}
	requestID, err := helper.GenerateUUID()
	if err != nil {
		requestID = "unknown"
	}
	logger := log.With().Str("request_id", requestID).Logger()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	q := ParseQuestion(entity, question)
	start := time.Now()
	ans, err := s.chain.Route(ctx, q)
	logger.Info().Str("entity", q.Entity).Str("handler", ans.Handler).
		Dur("took", time.Since(start)).Err(err).Msg("Question answered")

	if err != nil {
		ans = failureAnswer(ans.Handler, err)
		if ans.Status == models.StatusServiceUnavailable {
			logger.Error().Err(err).Str("handler", ans.Handler).Msg("Handler failed")
		}
	}
	if ans.Evidence == nil {
		ans.Evidence = []models.Evidence{}
	}
	return ans, nil
}

func failureAnswer(handler string, err error) models.Answer {
	ans := models.Answer{Handler: handler}
	var nf *models.MetricNotFoundError
	switch {
	case errors.As(err, &nf):
		ans.Status = models.StatusDataUnavailable
		what := metricLabel(nf.Metric)
		if nf.Period != 0 {
			what = fmt.Sprintf("%s for %d", what, nf.Period)
		}
		ans.Text = fmt.Sprintf("Data not available: no %s %s on record.", nf.Entity, what)
	case errors.Is(err, models.ErrNoEntityData):
		ans.Status = models.StatusDataUnavailable
		ans.Text = "Data not available: " + err.Error() + "."
	default:
		ans.Status = models.StatusServiceUnavailable
		ans.Text = serviceUnavailableText
	}
	return ans
}
