// Package evaluator matches an ObjectStorageInput against a set of found
// policies and folds the resulting effects into an allow/deny decision.
package evaluator

import (
	"log/slog"

	"github.com/patsnapops/piam-sub000/internal/domain"
	"github.com/patsnapops/piam-sub000/internal/objectstorage"
	"github.com/patsnapops/piam-sub000/internal/proxyerrors"
)

// Decision is the folded outcome of evaluating every matched effect.
type Decision struct {
	Allowed    bool
	EmitEvents []domain.EmitEvent
	RateLimit  *domain.RateLimit
	Modify     *domain.Modify
}

// Evaluate finds the effect each policy contributes for input, then folds
// the collected effects per SPEC_FULL.md §4.4: empty or any-Deny denies,
// otherwise the Allow set is aggregated.
func Evaluate(input objectstorage.ObjectStorageInput, policies []domain.Policy[*objectstorage.Policy]) (Decision, error) {
	var effects []domain.Effect
	for _, p := range policies {
		if isEmptyModeledPolicy(p) {
			return Decision{}, proxyerrors.NewOtherInternal("policy %s has an empty modeled_policy", p.ID)
		}
		if eff := p.ModeledPolicy.FindEffect(input); eff != nil {
			effects = append(effects, *eff)
		}
	}
	return fold(effects)
}

func isEmptyModeledPolicy(p domain.Policy[*objectstorage.Policy]) bool {
	return p.ModeledPolicy == nil
}

func fold(effects []domain.Effect) (Decision, error) {
	if len(effects) == 0 {
		return Decision{}, proxyerrors.NewEffectNotFound("no policy matched this request")
	}
	var hasAllow bool
	var d Decision
	var rateLimitSeen bool
	for _, e := range effects {
		if e.IsDeny() {
			return Decision{}, proxyerrors.NewEffectNotFound("denied by policy")
		}
		hasAllow = true
		if e.EmitEvent != nil {
			d.EmitEvents = append(d.EmitEvents, *e.EmitEvent)
		}
		if e.RateLimit != nil {
			if !rateLimitSeen {
				d.RateLimit = e.RateLimit
				rateLimitSeen = true
			} else {
				slog.Debug("ignoring rate_limit from a later matching Allow effect",
					"kept_count", d.RateLimit.Count, "kept_duration", d.RateLimit.Duration,
					"ignored_count", e.RateLimit.Count, "ignored_duration", e.RateLimit.Duration)
			}
		}
		if e.Modify != nil && d.Modify == nil {
			d.Modify = e.Modify
		}
	}
	if !hasAllow {
		return Decision{}, proxyerrors.NewEffectNotFound("no policy matched this request")
	}
	d.Allowed = true
	return d, nil
}
