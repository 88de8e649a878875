// Package rewrite applies per-route redact and reveal rules to request
// and response bodies. It backs the rule preview endpoint and the
// rewrite CLI; protocol-aware engines drive the same pipeline against
// live traffic.
package rewrite

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/getmasq/masq/internal/alias"
	"github.com/getmasq/masq/internal/logging"
	"github.com/getmasq/masq/internal/models"
)

// Pipeline binds the two store handles rules can write through.
type Pipeline struct {
	persistent *alias.Store
	volatile   *alias.Store
	logger     *zap.Logger
}

func NewPipeline(persistent, volatile *alias.Store, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		persistent: persistent,
		volatile:   volatile,
		logger:     logger.With(logging.Component("rewrite")),
	}
}

// mapFunc rewrites one located value.
type mapFunc func(ctx context.Context, value string) (string, error)

// Apply runs the rules matching phase against body, in rule order. A
// rule that fails (unusable transformer, body it cannot parse, store
// failure) is logged and skipped so the remaining rules still run; the
// body is left as the previous rule produced it.
func (p *Pipeline) Apply(ctx context.Context, rules []models.RewriteRule, phase models.RewritePhase, body []byte) ([]byte, error) {
	out := body
	for i, rule := range rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if rule.Phase != "" && rule.Phase != phase {
			continue
		}

		rewritten, err := p.applyRule(ctx, rule, out)
		if err != nil {
			p.logger.Warn("rewrite rule skipped",
				zap.Int("rule", i),
				logging.Phase(string(phase)),
				zap.String("transformer", rule.Transformer),
				zap.Error(err))
			continue
		}
		out = rewritten
	}
	return out, nil
}

func (p *Pipeline) applyRule(ctx context.Context, rule models.RewriteRule, body []byte) ([]byte, error) {
	fn, err := p.mapperFor(rule)
	if err != nil {
		return nil, err
	}

	switch rule.Transformer {
	case "json":
		return applyJSON(ctx, body, rule.Targets, fn)
	case "form":
		return applyForm(ctx, body, rule.Targets, fn)
	case "regex":
		return applyRegex(ctx, body, rule.Targets, fn)
	default:
		return nil, errors.Newf("unknown transformer %q", rule.Transformer)
	}
}

func (p *Pipeline) mapperFor(rule models.RewriteRule) (mapFunc, error) {
	store := p.persistent
	if rule.Store == models.StoreVolatile {
		store = p.volatile
	}
	scheme := rule.Scheme
	if scheme == "" {
		scheme = alias.SchemeUUID
	}

	switch rule.Action {
	case models.ActionRedact:
		return func(ctx context.Context, value string) (string, error) {
			if value == "" {
				return value, nil
			}
			rec, created, err := store.Redact(ctx, value, scheme)
			if err != nil {
				return "", err
			}
			if created {
				p.logger.Debug("value redacted",
					logging.Alias(rec.PublicAlias),
					logging.Scheme(scheme))
			}
			return rec.PublicAlias, nil
		}, nil
	case models.ActionReveal:
		return func(ctx context.Context, value string) (string, error) {
			rec, err := store.Reveal(ctx, value)
			if err != nil {
				return "", err
			}
			if rec == nil {
				// Not an alias we know; leave it in place.
				return value, nil
			}
			return rec.Value, nil
		}, nil
	default:
		return nil, errors.Newf("unknown action %q", rule.Action)
	}
}
