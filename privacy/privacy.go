package privacy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/syssam/orm"
)

// Decisions returned by rules. Rules may wrap them; match with errors.Is.
var (
	// Allow ends the evaluation and accepts the change.
	Allow = errors.New("orm/privacy: allow rule")
	// Deny ends the evaluation and rejects the change.
	Deny = errors.New("orm/privacy: deny rule")
	// Skip passes the change on to the next rule.
	Skip = errors.New("orm/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Rule decides on one pending change. Rules return Allow, Deny, Skip or
// nil, which is treated as Skip.
type Rule = orm.Policy

// RuleFunc adapts a function to a Rule.
type RuleFunc func(context.Context, orm.Change) error

// EvalChange returns f(ctx, c).
func (f RuleFunc) EvalChange(ctx context.Context, c orm.Change) error {
	return f(ctx, c)
}

// AlwaysAllowRule accepts every change.
func AlwaysAllowRule() Rule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule rejects every change.
func AlwaysDenyRule() Rule {
	return fixedDecision{Deny}
}

// ContextRule decides on the context alone.
func ContextRule(eval func(context.Context) error) Rule {
	return RuleFunc(func(ctx context.Context, _ orm.Change) error {
		return eval(ctx)
	})
}

// OnOperation applies rule to changes of the given operations and skips
// the others.
func OnOperation(rule Rule, ops ...orm.Op) Rule {
	return RuleFunc(func(ctx context.Context, c orm.Change) error {
		if c.Op().Is(ops...) {
			return rule.EvalChange(ctx, c)
		}
		return Skip
	})
}

// OnEntity applies rule to changes of the named entities and skips the
// others.
func OnEntity(rule Rule, names ...string) Rule {
	return RuleFunc(func(ctx context.Context, c orm.Change) error {
		if slices.Contains(names, c.EntityName()) {
			return rule.EvalChange(ctx, c)
		}
		return Skip
	})
}

// DenyOperationRule rejects changes of the given operations.
func DenyOperationRule(ops ...orm.Op) Rule {
	rule := RuleFunc(func(_ context.Context, c orm.Change) error {
		return Denyf("orm/privacy: operation %s on %s is not allowed", c.Op(), c.EntityName())
	})
	return OnOperation(rule, ops...)
}

// AllowOperationRule accepts changes of the given operations.
func AllowOperationRule(ops ...orm.Op) Rule {
	rule := RuleFunc(func(context.Context, orm.Change) error {
		return Allow
	})
	return OnOperation(rule, ops...)
}

// Policy is an ordered list of rules. The first decision other than Skip
// is the decision of the policy.
type Policy []Rule

// EvalChange implements orm.Policy.
func (policy Policy) EvalChange(ctx context.Context, c orm.Change) error {
	for _, rule := range policy {
		switch decision := rule.EvalChange(ctx, c); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

// Policies evaluates policies in order. An Allow from one of them accepts
// the change without consulting the rest.
type Policies []orm.Policy

// EvalChange evaluates the policies. A decision attached to the context
// with DecisionContext takes precedence.
func (policies Policies) EvalChange(ctx context.Context, c orm.Change) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, policy := range policies {
		switch decision := policy.EvalChange(ctx, c); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// Denied reports whether a decision returned by a policy rejects the
// change. Nil, Allow and Skip decisions accept it.
func Denied(decision error) bool {
	return decision != nil && !errors.Is(decision, Allow) && !errors.Is(decision, Skip)
}

type decisionCtxKey struct{}

// DecisionContext attaches a decision that overrides Policies evaluation,
// e.g. to let system jobs bypass viewer rules.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext returns the decision attached by DecisionContext.
// An attached Allow is returned as nil.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalChange(context.Context, orm.Change) error {
	return f.decision
}

var (
	_ orm.Policy = Policy(nil)
	_ orm.Policy = Policies(nil)
	_ orm.Policy = RuleFunc(nil)
)
