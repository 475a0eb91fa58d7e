// Package ethics evaluates the E_AI governance rules. Rules are data: an
// ordered table of threshold conditions over the symbolic context, checked
// in fixed order with first-match-wins semantics. Only halt_output blocks
// delivery; the other actions steer or annotate the pipeline.
package ethics

import (
	"regexp"
	"strconv"
	"strings"

	"evai/internal/logging"
	"evai/internal/types"
)

// Rule is one governance rule: every condition must hold for it to fire.
type Rule struct {
	ID         string
	Conditions []string // "A<0.4" style threshold expressions
	Action     types.EthicsActionKind
	Param      string
}

// DefaultRules returns the E_AI rule table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:         "rule_001",
			Conditions: []string{"A<0.4", "TD>0.7"},
			Action:     types.EthicsSeedInjection,
			Param:      "V_A",
		},
		{
			ID:         "rule_002",
			Conditions: []string{"B>0.5", "TD>0.6"},
			Action:     types.EthicsAlert,
			Param:      "high",
		},
		{
			ID:         "rule_003",
			Conditions: []string{"V_M<0.4", "TD<0.5"},
			Action:     types.EthicsReflectivePrompt,
			Param:      "Regisseur",
		},
		{
			ID:         "rule_004",
			Conditions: []string{"A<0.5", "V_A<0.4"},
			Action:     types.EthicsContextExpansion,
		},
		{
			ID:         "rule_005",
			Conditions: []string{"D_Bc<0.3"},
			Action:     types.EthicsAuditLog,
		},
		{
			ID:         "rule_006",
			Conditions: []string{"A<0.3", "TD>0.8"},
			Action:     types.EthicsHaltOutput,
		},
	}
}

// Engine evaluates a rule table against pipeline context.
type Engine struct {
	rules []Rule
}

// NewEngine creates an engine with the default rule table.
func NewEngine() *Engine {
	return &Engine{rules: DefaultRules()}
}

// NewEngineWithRules creates an engine with a custom table, preserving order.
func NewEngineWithRules(rules []Rule) *Engine {
	return &Engine{rules: rules}
}

// BuildContext maps pipeline state onto the governance vocabulary.
// Protective and risk default to neutral values when the rubric layer
// produced nothing.
func BuildContext(profile types.EAAProfile, tdValue, protective, risk float64, hasRubrics bool) types.EthicsContext {
	dbc := 0.5
	b := 0.0
	if hasRubrics {
		dbc = protective
		b = risk
	}
	return types.EthicsContext{
		A:   profile.Autonomy,
		TD:  tdValue,
		V:   (profile.Agency + profile.Autonomy) / 2,
		VM:  profile.Ownership,
		VA:  profile.Agency,
		DBc: dbc,
		B:   b,
	}
}

var condPattern = regexp.MustCompile(`^([A-Za-z_]+)\s*([<>=]+)\s*([\d.]+)$`)

// paramValue resolves a governance parameter name; ok is false for unknown
// names, which makes the owning condition false rather than panicking.
func paramValue(ctx types.EthicsContext, name string) (float64, bool) {
	switch name {
	case "A":
		return ctx.A, true
	case "TD":
		return ctx.TD, true
	case "V":
		return ctx.V, true
	case "V_M":
		return ctx.VM, true
	case "V_A":
		return ctx.VA, true
	case "D_Bc":
		return ctx.DBc, true
	case "B":
		return ctx.B, true
	default:
		return 0, false
	}
}

// conditionHolds parses and evaluates one threshold expression. Malformed
// conditions are false: a rule that cannot be read must not fire.
func conditionHolds(cond string, ctx types.EthicsContext) bool {
	m := condPattern.FindStringSubmatch(strings.TrimSpace(cond))
	if m == nil {
		logging.EthicsWarn("malformed governance condition: %q", cond)
		return false
	}

	value, ok := paramValue(ctx, m[1])
	if !ok {
		logging.EthicsWarn("unknown governance parameter: %q", m[1])
		return false
	}

	threshold, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return false
	}

	switch m[2] {
	case "<":
		return value < threshold
	case "<=":
		return value <= threshold
	case ">":
		return value > threshold
	case ">=":
		return value >= threshold
	case "=", "==":
		return value == threshold
	default:
		return false
	}
}

// Evaluate walks the table in order and returns the first rule whose
// conditions all hold, or nil when nothing fires. Evaluation short-circuits
// within a rule on the first failed condition.
func (e *Engine) Evaluate(ctx types.EthicsContext) *types.EthicsAction {
	timer := logging.StartTimer(logging.CategoryEthics, "Evaluate")
	defer timer.Stop()

	for _, rule := range e.rules {
		satisfied := true
		for _, cond := range rule.Conditions {
			if !conditionHolds(cond, ctx) {
				satisfied = false
				break
			}
		}
		if !satisfied {
			continue
		}

		action := &types.EthicsAction{
			RuleID: rule.ID,
			Kind:   rule.Action,
			Param:  rule.Param,
		}
		if action.Blocking() {
			logging.EthicsWarn("governance rule %s fired: halt_output", rule.ID)
		} else {
			logging.Ethics("governance rule %s fired: %s(%s)", rule.ID, rule.Action, rule.Param)
		}
		return action
	}

	logging.EthicsDebug("no governance rule fired")
	return nil
}
