package classifier

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	coreerrors "github.com/iamwavecut/phishguard/internal/errors"
	"github.com/iamwavecut/phishguard/internal/observability"
)

// Model is the opaque scorer behind the gateway. Probability is the primary
// path; Binary is the coarse fallback used when the model cannot produce a
// distribution for the text.
type Model interface {
	Probability(ctx context.Context, text string) (float64, error)
	Binary(ctx context.Context, text string) (bool, error)
}

// Gateway converts model output into a spam probability in [0,1]. Scoring is
// pure: persistence of the score is the caller's concern.
type Gateway struct {
	model  Model
	logger *log.Entry
}

func NewGateway(model Model) *Gateway {
	return &Gateway{
		model:  model,
		logger: log.WithField("object", "ClassifierGateway"),
	}
}

// Score returns the spam probability for text. When the probabilistic path
// fails it coerces a binary classification to 0.0 or 1.0, and only surfaces
// ErrScoringUnavailable when both paths error. Callers must treat that
// failure as "no signal".
func (g *Gateway) Score(ctx context.Context, text string) (float64, error) {
	ctx, span := otel.Tracer("classifier").Start(ctx, "score-message")
	defer span.End()

	done := observability.StartScoring()

	prob, err := g.model.Probability(ctx, text)
	if err == nil {
		done("probabilistic")
		return clamp(prob), nil
	}
	g.logger.WithError(err).Debug("probabilistic scoring failed, falling back to binary")

	spam, berr := g.model.Binary(ctx, text)
	if berr != nil {
		done("unavailable")
		observability.Logger.Warn("scoring unavailable",
			zap.NamedError("probability_error", err),
			zap.NamedError("binary_error", berr),
		)
		return 0, errors.Wrapf(coreerrors.ErrScoringUnavailable, "probability: %v; binary: %v", err, berr)
	}
	done("binary")
	if spam {
		return 1.0, nil
	}
	return 0.0, nil
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
