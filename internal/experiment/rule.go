package experiment

import (
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// audienceRule wraps a compiled CEL program used for audience targeting
// beyond the built-in userTypes/locations/percentage filters. When nil or
// disabled, Eval always returns true.
type audienceRule struct {
	prog    cel.Program
	enabled bool
}

func compileAudienceRule(expr string) (*audienceRule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &audienceRule{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("user_type", cel.StringType),
		cel.Variable("location", cel.StringType),
		cel.Variable("subject_id", cel.StringType),
		// Caller-supplied context attributes (schema-free).
		cel.Variable("attributes", cel.DynType),
		// Current time in ms for windowed rules.
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return nil, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return nil, err
	}
	return &audienceRule{prog: prog, enabled: true}, nil
}

// Eval evaluates the rule against a request context. Evaluation errors count
// as ineligible.
func (r *audienceRule) Eval(userType, location, subjectID string, attrs map[string]interface{}) bool {
	if r == nil || !r.enabled {
		return true
	}
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	out, _, err := r.prog.Eval(map[string]interface{}{
		"user_type":  userType,
		"location":   location,
		"subject_id": subjectID,
		"attributes": attrs,
		"now_ms":     time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// RuleEligible applies the optional CEL rule. Audiences without a rule
// accept everyone at this stage.
func (ta *TargetAudience) RuleEligible(userType, location, subjectID string, attrs map[string]interface{}) bool {
	if ta == nil {
		return true
	}
	return ta.rule.Eval(userType, location, subjectID, attrs)
}
