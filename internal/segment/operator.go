package segment

import "strings"

type Operator uint8

const (
	OpInvalid Operator = iota
	OpEquals
	OpNotEquals
	OpGreaterThan
	OpLessThan
	OpGreaterOrEqual
	OpLessOrEqual
	OpContains
	OpNotContains
	OpExists
	OpBetween
	OpIn
	OpNotIn
	OpRegex
)

var operatorNames = map[string]Operator{
	"equals":      OpEquals,
	"notequals":   OpNotEquals,
	"gt":          OpGreaterThan,
	"lt":          OpLessThan,
	"gte":         OpGreaterOrEqual,
	"lte":         OpLessOrEqual,
	"contains":    OpContains,
	"notcontains": OpNotContains,
	"exists":      OpExists,
	"between":     OpBetween,
	"in":          OpIn,
	"nin":         OpNotIn,
	"regex":       OpRegex,
}

// ParseOperator maps the stored operator name to its tag. Matching is
// case-insensitive so "notEquals" and "notequals" are the same operator.
func ParseOperator(s string) (Operator, bool) {
	op, ok := operatorNames[strings.ToLower(strings.TrimSpace(s))]
	return op, ok
}

func (o Operator) String() string {
	switch o {
	case OpEquals:
		return "equals"
	case OpNotEquals:
		return "notEquals"
	case OpGreaterThan:
		return "gt"
	case OpLessThan:
		return "lt"
	case OpGreaterOrEqual:
		return "gte"
	case OpLessOrEqual:
		return "lte"
	case OpContains:
		return "contains"
	case OpNotContains:
		return "notContains"
	case OpExists:
		return "exists"
	case OpBetween:
		return "between"
	case OpIn:
		return "in"
	case OpNotIn:
		return "nin"
	case OpRegex:
		return "regex"
	default:
		return "invalid"
	}
}

func (o Operator) comparison() bool {
	switch o {
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual, OpBetween:
		return true
	}
	return false
}

// mongoComparison returns the query operator for ordered comparisons.
func (o Operator) mongoComparison() string {
	switch o {
	case OpGreaterThan:
		return "$gt"
	case OpLessThan:
		return "$lt"
	case OpGreaterOrEqual:
		return "$gte"
	case OpLessOrEqual:
		return "$lte"
	}
	return ""
}

func (o Operator) accepts(cmp int) bool {
	switch o {
	case OpGreaterThan:
		return cmp > 0
	case OpLessThan:
		return cmp < 0
	case OpGreaterOrEqual:
		return cmp >= 0
	case OpLessOrEqual:
		return cmp <= 0
	}
	return false
}
