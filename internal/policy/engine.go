package policy

import (
	"fmt"
	"strings"

	"github.com/Gao-OS/strata-gateway/internal/taxonomy"
)

// Engine wraps an Evaluator and exposes the three façades the request
// service calls. Each façade selects the relevant input subset, invokes
// Evaluate, and on deny returns a PolicyViolation error whose message
// includes the joined reasons and whose details embed the denial context.
type Engine struct {
	evaluator Evaluator
}

// NewEngine builds an Engine around the given evaluator. Passing nil
// selects the built-in rule-based evaluator.
func NewEngine(evaluator Evaluator) *Engine {
	if evaluator == nil {
		evaluator = &BuiltinEvaluator{}
	}
	return &Engine{evaluator: evaluator}
}

// CheckCommandExecution evaluates whether input's command may run.
func (e *Engine) CheckCommandExecution(input Input) (Decision, error) {
	decision, err := e.evaluator.Evaluate(input)
	if err != nil {
		return Decision{}, taxonomy.New(taxonomy.Internal, "policy evaluation failed: %v", err)
	}
	if !decision.Allow {
		reason := strings.Join(decision.Reasons, ", ")
		message := fmt.Sprintf("Command '%s' execution was denied by policy", input.Command.Name)
		if reason != "" {
			message = fmt.Sprintf("%s: %s", message, reason)
		}
		return decision, taxonomy.New(taxonomy.PolicyViolation, "%s", message).WithDetails(map[string]any{
			"command":   input.Command.Name,
			"reasons":   decision.Reasons,
			"user_id":   input.User.ID,
			"tenant_id": input.User.TenantID,
		})
	}
	return decision, nil
}

// CheckFileAccess evaluates whether input's file operation is allowed.
// No-op (allow) if input.File is nil.
func (e *Engine) CheckFileAccess(input Input) (Decision, error) {
	if input.File == nil {
		return Decision{Allow: true}, nil
	}
	decision, err := e.evaluator.Evaluate(input)
	if err != nil {
		return Decision{}, taxonomy.New(taxonomy.Internal, "policy evaluation failed: %v", err)
	}
	if !decision.Allow {
		reason := strings.Join(decision.Reasons, ", ")
		message := fmt.Sprintf("%s access to file '%s' was denied by policy", input.File.Mode, input.File.Path)
		if reason != "" {
			message = fmt.Sprintf("%s: %s", message, reason)
		}
		return decision, taxonomy.New(taxonomy.PolicyViolation, "%s", message).WithDetails(map[string]any{
			"path":    input.File.Path,
			"mode":    input.File.Mode,
			"reasons": decision.Reasons,
			"user_id": input.User.ID,
		})
	}
	return decision, nil
}

// CheckNetworkAccess evaluates whether input's network request is
// allowed. No-op (allow) if input.Network is nil.
func (e *Engine) CheckNetworkAccess(input Input) (Decision, error) {
	if input.Network == nil {
		return Decision{Allow: true}, nil
	}
	decision, err := e.evaluator.Evaluate(input)
	if err != nil {
		return Decision{}, taxonomy.New(taxonomy.Internal, "policy evaluation failed: %v", err)
	}
	if !decision.Allow {
		reason := strings.Join(decision.Reasons, ", ")
		message := fmt.Sprintf("%s access to host '%s:%d' was denied by policy",
			input.Network.Protocol, input.Network.Host, input.Network.Port)
		if reason != "" {
			message = fmt.Sprintf("%s: %s", message, reason)
		}
		return decision, taxonomy.New(taxonomy.PolicyViolation, "%s", message).WithDetails(map[string]any{
			"host":    input.Network.Host,
			"port":    input.Network.Port,
			"protocol": input.Network.Protocol,
			"reasons": decision.Reasons,
			"user_id": input.User.ID,
		})
	}
	return decision, nil
}
