package security

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dave593/portalauth/internal/rate"
)

// RateLimitGate counts requests per client address and route class.
type RateLimitGate struct {
	limiter *rate.Limiter
	logger  *slog.Logger
	onLimit func(class RouteClass)
}

// NewRateLimitGate wraps limiter. onLimit, if set, is called for every
// rejected request.
func NewRateLimitGate(limiter *rate.Limiter, logger *slog.Logger, onLimit func(RouteClass)) *RateLimitGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimitGate{limiter: limiter, logger: logger, onLimit: onLimit}
}

func (g *RateLimitGate) Check(ctx context.Context, req *Request) error {
	class := rate.ClassGeneral
	if req.Class == RouteAuth {
		class = rate.ClassAuth
	}

	v, err := g.limiter.Check(ctx, class, req.ClientAddr)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		g.logger.WarnContext(ctx, "rate limit exceeded",
			slog.String("client", req.ClientAddr),
			slog.String("class", string(class)),
			slog.Int("count", v.Count),
			slog.Duration("retry_after", v.RetryAfter),
		)
		if g.onLimit != nil {
			g.onLimit(req.Class)
		}
		return &Failure{
			Code:       CodeRateLimited,
			Message:    "too many requests, try again later",
			RetryAfter: v.RetryAfter,
		}
	default:
		g.logger.ErrorContext(ctx, "rate limit backend failure", slog.String("error", err.Error()))
		return &Failure{Code: CodeInternalError, Message: "request could not be screened"}
	}
}
