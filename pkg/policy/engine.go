package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/telemetry"
)

// Guard evaluates the deny rules of every loaded policy before a mutating
// command runs.
type Guard struct {
	policies []*compiledPolicy
	logger   *telemetry.Logger
	now      func() time.Time
}

// compiledPolicy is a policy with its deny query prepared.
type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

// NewGuard compiles the built-in policies and the .rego files below
// policyDir. An empty policyDir loads the built-ins only.
func NewGuard(ctx context.Context, logger *telemetry.Logger, policyDir string) (*Guard, error) {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	g := &Guard{
		logger: logger.NewComponentLogger("policy"),
		now:    time.Now,
	}

	user, err := NewLoader(logger).LoadDir(policyDir)
	if err != nil {
		return nil, engine.NewValidationError("cannot load policies", err).
			WithHelp("Check the policy_dir setting in deployer.yaml.")
	}

	for _, p := range append(BuiltinPolicies(), user...) {
		if err := g.compile(ctx, p); err != nil {
			return nil, engine.NewValidationError(fmt.Sprintf("invalid policy %s", p.Source), err).
				WithHelp("Fix the Rego syntax. Policies must define a 'deny' set of strings or {message, severity} objects.")
		}
	}

	g.logger.WithField("count", len(g.policies)).Debug("policies compiled")
	return g, nil
}

func (g *Guard) compile(ctx context.Context, p Policy) error {
	module, err := ast.ParseModule(p.Name, p.Rego)
	if err != nil {
		return err
	}
	if module == nil {
		return fmt.Errorf("policy %s is empty", p.Name)
	}

	query, err := rego.New(
		rego.Module(p.Source+"/"+p.Name, p.Rego),
		rego.Query(module.Package.Path.String()+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return err
	}

	g.policies = append(g.policies, &compiledPolicy{policy: &p, query: query})
	return nil
}

// Policies returns the loaded policies in evaluation order.
func (g *Guard) Policies() []Policy {
	out := make([]Policy, 0, len(g.policies))
	for _, cp := range g.policies {
		out = append(out, *cp.policy)
	}
	return out
}

// Evaluate runs every policy against in. A policy that fails to evaluate
// denies the command.
func (g *Guard) Evaluate(ctx context.Context, in Input) (*Decision, error) {
	start := g.now()
	if in.Labels == nil {
		in.Labels = map[string]string{}
	}

	d := &Decision{Allowed: true, EvaluatedAt: start}
	for _, cp := range g.policies {
		d.EvaluatedPolicies = append(d.EvaluatedPolicies, cp.policy.Name)

		results, err := cp.query.Eval(ctx, rego.EvalInput(in))
		if err != nil {
			return nil, fmt.Errorf("evaluate policy %s: %w", cp.policy.Name, err)
		}

		for _, r := range results {
			if len(r.Expressions) == 0 {
				continue
			}
			set, ok := r.Expressions[0].Value.([]interface{})
			if !ok {
				continue
			}
			for _, item := range set {
				v := violationFrom(cp.policy, item)
				if v.Severity == SeverityWarning {
					d.Warnings = append(d.Warnings, v)
					continue
				}
				d.Violations = append(d.Violations, v)
				d.Allowed = false
			}
		}
	}

	d.Duration = g.now().Sub(start)
	g.logger.WithFields(map[string]any{
		"command":     in.Command,
		"environment": in.Environment,
		"allowed":     d.Allowed,
		"violations":  len(d.Violations),
		"warnings":    len(d.Warnings),
	}).Debug("policy evaluation completed")

	return d, nil
}

// Check evaluates in and returns a validation error listing the violations
// when the command is denied. Warnings are returned for display.
func (g *Guard) Check(ctx context.Context, in Input) ([]Violation, error) {
	d, err := g.Evaluate(ctx, in)
	if err != nil {
		return nil, engine.NewInternalError("policy evaluation failed", err).WithEnvironment(in.Environment).WithCommand(in.Command)
	}
	if d.Allowed {
		return d.Warnings, nil
	}

	msgs := make([]string, 0, len(d.Violations))
	for _, v := range d.Violations {
		msgs = append(msgs, v.Message)
	}
	return d.Warnings, engine.NewValidationError(
		fmt.Sprintf("%s denied by policy: %s", in.Command, strings.Join(msgs, "; ")), nil,
	).WithCode(engine.ErrCodePolicyDenied).
		WithEnvironment(in.Environment).
		WithCommand(in.Command).
		WithDetail("violations", d.Violations).
		WithHelp("Rerun with --force if the operation is intended, or change the environment labels.")
}

// violationFrom converts one deny set member.
func violationFrom(p *Policy, item interface{}) Violation {
	v := Violation{Policy: p.Name, Severity: p.Severity}
	switch val := item.(type) {
	case string:
		v.Message = val
	case map[string]interface{}:
		if msg, ok := val["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := val["severity"].(string); ok && (sev == string(SeverityWarning) || sev == string(SeverityError)) {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", val)
	}
	return v
}
