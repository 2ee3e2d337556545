package segment

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"mailwave/internal/logger"
	"mailwave/pkg/errors"
	"mailwave/pkg/metrics"
	"mailwave/pkg/models"
)

const (
	ReasonMissingField    = "missing_field"
	ReasonMissingOperator = "missing_operator"
	ReasonUnknownOperator = "unknown_operator"
	ReasonUnknownField    = "unknown_field"
	ReasonMissingRange    = "missing_range"
	ReasonInvalidPattern  = "invalid_pattern"
)

func malformed(rule models.Rule, reason string) error {
	return errors.ErrMalformedRule.
		WithDetail("field", rule.Field).
		WithDetail("operator", rule.Operator).
		WithDetail("reason", reason).
		WithDetail("message", fmt.Sprintf("rule %q %q: %s", rule.Field, rule.Operator, reason))
}

// DropReason extracts the reason recorded on a malformed rule error.
func DropReason(err error) string {
	var appErr *errors.Error
	if errors.As(err, &appErr) {
		if reason, ok := appErr.Details["reason"].(string); ok {
			return reason
		}
	}
	return ""
}

type Compiler struct {
	logger logger.Logger
}

func NewCompiler(log logger.Logger) *Compiler {
	return &Compiler{logger: log}
}

// Compile turns a rule list into a predicate. Malformed rules are logged and
// dropped; an empty or fully dropped list matches every contact.
func (c *Compiler) Compile(ctx context.Context, rules []models.Rule, logic models.Logic) Predicate {
	logic = models.ParseLogic(string(logic))

	preds := make([]Predicate, 0, len(rules))
	for i, rule := range rules {
		p, err := CompileRule(rule)
		if err != nil {
			reason := DropReason(err)
			metrics.IncRuleDropped(reason)
			c.logger.WarnwCtx(ctx, "Dropping malformed segment rule",
				"index", i,
				"field", rule.Field,
				"operator", rule.Operator,
				"reason", reason,
			)
			continue
		}
		preds = append(preds, p)
	}

	metrics.SegmentCompilesTotal.WithLabelValues(string(logic)).Inc()
	return combine(logic, preds)
}

// CompileSegment compiles the top-level rules and every nested group, joining
// them under the segment's logic.
func (c *Compiler) CompileSegment(ctx context.Context, seg *models.Segment) Predicate {
	top := c.Compile(ctx, seg.Rules, seg.Logic)
	if len(seg.NestedRules) == 0 {
		return top
	}

	parts := make([]Predicate, 0, len(seg.NestedRules)+1)
	parts = append(parts, top)
	for _, g := range seg.NestedRules {
		parts = append(parts, c.Compile(ctx, g.Rules, g.Logic))
	}
	return combine(models.ParseLogic(string(seg.Logic)), parts)
}

// CompileRule compiles a single rule or reports why it is malformed.
func CompileRule(rule models.Rule) (Predicate, error) {
	if strings.TrimSpace(rule.Field) == "" {
		return nil, malformed(rule, ReasonMissingField)
	}
	if strings.TrimSpace(rule.Operator) == "" {
		return nil, malformed(rule, ReasonMissingOperator)
	}
	op, ok := ParseOperator(rule.Operator)
	if !ok {
		return nil, malformed(rule, ReasonUnknownOperator)
	}
	f, ok := lookupField(rule.Field)
	if !ok {
		return nil, malformed(rule, ReasonUnknownField)
	}

	cond := &condition{field: f, op: op}

	switch op {
	case OpBetween:
		if rule.ValueRange == nil || rule.ValueRange.From.IsNull() || rule.ValueRange.To.IsNull() {
			return nil, malformed(rule, ReasonMissingRange)
		}
		cond.from = f.coerce(rule.ValueRange.From, op)
		cond.to = f.coerce(rule.ValueRange.To, op)

	case OpIn, OpNotIn:
		cond.set = asSet(f.coerce(rule.Value, op))

	case OpContains:
		if _, isList := rule.Value.AsList(); isList {
			cond.set = asSet(f.coerce(rule.Value, op))
			break
		}
		cond.pattern = regexp.QuoteMeta(rule.Value.Text())
		cond.re = regexp.MustCompile("(?i)" + cond.pattern)

	case OpNotContains:
		cond.pattern = regexp.QuoteMeta(rule.Value.Text())
		cond.re = regexp.MustCompile("(?i)" + cond.pattern)

	case OpRegex:
		re, err := regexp.Compile("(?i)" + rule.Value.Text())
		if err != nil {
			return nil, malformed(rule, ReasonInvalidPattern)
		}
		cond.pattern = rule.Value.Text()
		cond.re = re

	case OpExists:

	default:
		cond.operand = f.coerce(rule.Value, op)
	}

	return cond, nil
}

func asSet(v models.Value) []models.Value {
	if items, ok := v.AsList(); ok {
		return items
	}
	return []models.Value{v}
}
