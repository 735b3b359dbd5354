package runner

import (
	"context"

	"axon/internal/approval"
)

// DecisionPolicy decides whether a tool call may run. The registered callback
// fires once the request is visible to external resolvers, carrying the
// approval id; policies that decide locally never invoke it.
type DecisionPolicy interface {
	Decide(ctx context.Context, req *approval.Request, registered func(id string)) (approval.Decision, error)
}

// BrokerPolicy routes decisions through the approval broker: the request is
// registered, announced via the callback and then awaited until a human
// resolves it or the deadline synthesizes a timeout.
type BrokerPolicy struct {
	Broker *approval.Broker
}

// Decide registers the request and blocks until it is resolved.
func (p *BrokerPolicy) Decide(ctx context.Context, req *approval.Request, registered func(id string)) (approval.Decision, error) {
	id, err := p.Broker.Register(req)
	if err != nil {
		return approval.DecisionRejected, err
	}
	if registered != nil {
		registered(id)
	}
	return p.Broker.AwaitDecision(ctx, id)
}

// AutoPolicy decides without a human: low and medium risk tools are allowed
// once, high and critical are denied. Scheduled runs use it so an unattended
// task can never execute a sensitive tool. Overrides let an administrator pin
// a decision per tool name.
type AutoPolicy struct {
	// Overrides maps tool names to fixed decisions, bypassing the risk rule.
	Overrides map[string]approval.Decision
}

// Decide applies the risk rule, preferring an explicit override.
func (p *AutoPolicy) Decide(_ context.Context, req *approval.Request, _ func(id string)) (approval.Decision, error) {
	if d, ok := p.Overrides[req.Tool]; ok {
		return d, nil
	}
	switch req.Risk {
	case approval.RiskLow, approval.RiskMedium:
		return approval.DecisionOnce, nil
	default:
		return approval.DecisionRejected, nil
	}
}
