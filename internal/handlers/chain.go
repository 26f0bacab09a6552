package handlers

import (
	"context"

	"github.com/rs/zerolog/log"

	"filing-rag/internal/models"
)

// Handler is one routing strategy. CanHandle must be cheap and side-effect
// free; Handle does the work.
type Handler struct {
	Name      string
	CanHandle func(q Question) bool
	Handle    func(ctx context.Context, q Question) (models.Answer, error)
	Fallback  bool
}

// Chain routes a question to the first handler that accepts it.
type Chain struct {
	handlers []Handler
}

// NewChain validates the handler order: the last handler, and only the last,
// must be the fallback.
func NewChain(handlers ...Handler) (*Chain, error) {
	if len(handlers) == 0 {
		return nil, models.ConfigError("handler chain is empty")
	}
	names := map[string]bool{}
	for i, h := range handlers {
		if h.Name == "" || h.CanHandle == nil || h.Handle == nil {
			return nil, models.ConfigError("handler %d is incomplete", i)
		}
		if names[h.Name] {
			return nil, models.ConfigError("duplicate handler %q", h.Name)
		}
		names[h.Name] = true
		last := i == len(handlers)-1
		if h.Fallback != last {
			return nil, models.ConfigError("fallback handler must be last, got %q at position %d", h.Name, i)
		}
	}
	return &Chain{handlers: handlers}, nil
}

// Names lists handler names in routing order.
func (c *Chain) Names() []string {
	out := make([]string, len(c.handlers))
	for i, h := range c.handlers {
		out[i] = h.Name
	}
	return out
}

// Route runs exactly one handler. The returned answer carries the handler
// name even when the handler fails; a failure never falls through to the
// next handler.
func (c *Chain) Route(ctx context.Context, q Question) (models.Answer, error) {
	h := c.pick(q)
	log.Debug().Str("handler", h.Name).Str("entity", q.Entity).Msg("Routing question")

	ans, err := h.Handle(ctx, q)
	ans.Handler = h.Name
	if err != nil {
		return ans, err
	}
	if ans.Status == "" {
		ans.Status = models.StatusAnswered
	}
	return ans, nil
}

func (c *Chain) pick(q Question) Handler {
	for _, h := range c.handlers {
		if h.Fallback || h.CanHandle(q) {
			return h
		}
	}
	return c.handlers[len(c.handlers)-1]
}
