package segment

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"mailwave/pkg/models"
)

// Predicate is a compiled audience condition. Match evaluates a contact in
// memory and Filter renders the same condition as a MongoDB query document.
type Predicate interface {
	Match(c *models.Contact) bool
	Filter() bson.M
}

type matchAll struct{}

func (matchAll) Match(*models.Contact) bool { return true }
func (matchAll) Filter() bson.M             { return bson.M{} }

func MatchAll() Predicate { return matchAll{} }

func IsMatchAll(p Predicate) bool {
	_, ok := p.(matchAll)
	return ok
}

func And(ps ...Predicate) Predicate { return combine(models.LogicAnd, ps) }
func Or(ps ...Predicate) Predicate  { return combine(models.LogicOr, ps) }

type group struct {
	logic    models.Logic
	children []Predicate
}

func combine(logic models.Logic, ps []Predicate) Predicate {
	kept := make([]Predicate, 0, len(ps))
	for _, p := range ps {
		if p == nil {
			continue
		}
		if IsMatchAll(p) {
			if logic == models.LogicOr {
				return matchAll{}
			}
			continue
		}
		kept = append(kept, p)
	}

	switch len(kept) {
	case 0:
		return matchAll{}
	case 1:
		return kept[0]
	}
	return &group{logic: logic, children: kept}
}

func (g *group) Match(c *models.Contact) bool {
	if g.logic == models.LogicOr {
		for _, p := range g.children {
			if p.Match(c) {
				return true
			}
		}
		return false
	}
	for _, p := range g.children {
		if !p.Match(c) {
			return false
		}
	}
	return true
}

func (g *group) Filter() bson.M {
	filters := make(bson.A, len(g.children))
	for i, p := range g.children {
		filters[i] = p.Filter()
	}
	if g.logic == models.LogicOr {
		return bson.M{"$or": filters}
	}
	return bson.M{"$and": filters}
}

type condition struct {
	field   field
	op      Operator
	operand models.Value
	from    models.Value
	to      models.Value
	set     []models.Value
	re      *regexp.Regexp
	pattern string
}

func (c *condition) Match(contact *models.Contact) bool {
	v := c.field.get(contact)

	switch c.op {
	case OpEquals:
		return equalsValue(v, c.operand)
	case OpNotEquals:
		return !equalsValue(v, c.operand)
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
		return compares(v, c.operand, c.op)
	case OpBetween:
		return compares(v, c.from, OpGreaterOrEqual) && compares(v, c.to, OpLessOrEqual)
	case OpIn:
		return inSet(v, c.set)
	case OpNotIn:
		return !inSet(v, c.set)
	case OpContains:
		if c.set != nil {
			return inSet(v, c.set)
		}
		return matchesPattern(v, c.re)
	case OpNotContains:
		return !matchesPattern(v, c.re)
	case OpRegex:
		return matchesPattern(v, c.re)
	case OpExists:
		return !v.IsNull()
	}
	return false
}

func (c *condition) Filter() bson.M {
	path := c.field.path

	switch c.op {
	case OpEquals:
		if c.operand.IsNull() && c.field.kind == kindString {
			return bson.M{path: bson.M{"$in": bson.A{nil, ""}}}
		}
		return bson.M{path: c.operand.Interface()}
	case OpNotEquals:
		if c.operand.IsNull() && c.field.kind == kindString {
			return bson.M{path: bson.M{"$nin": bson.A{nil, ""}}}
		}
		return bson.M{path: bson.M{"$ne": c.operand.Interface()}}
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
		return bson.M{path: bson.M{c.op.mongoComparison(): c.operand.Interface()}}
	case OpBetween:
		return bson.M{path: bson.M{"$gte": c.from.Interface(), "$lte": c.to.Interface()}}
	case OpIn:
		return bson.M{path: bson.M{"$in": setInterface(c.set)}}
	case OpNotIn:
		return bson.M{path: bson.M{"$nin": setInterface(c.set)}}
	case OpContains:
		if c.set != nil {
			return bson.M{path: bson.M{"$in": setInterface(c.set)}}
		}
		return bson.M{path: c.regex()}
	case OpNotContains:
		return bson.M{path: bson.M{"$not": c.regex()}}
	case OpRegex:
		return bson.M{path: c.regex()}
	case OpExists:
		if c.field.kind == kindString {
			return bson.M{path: bson.M{"$exists": true, "$nin": bson.A{nil, ""}}}
		}
		return bson.M{path: bson.M{"$exists": true, "$ne": nil}}
	}
	return bson.M{}
}

func (c *condition) regex() primitive.Regex {
	return primitive.Regex{Pattern: c.pattern, Options: "i"}
}

func setInterface(set []models.Value) bson.A {
	out := make(bson.A, len(set))
	for i, v := range set {
		out[i] = v.Interface()
	}
	return out
}

// elements applies the array rule: a condition on a list-valued field holds
// when it holds for any element.
func elements(v models.Value) []models.Value {
	if items, ok := v.AsList(); ok {
		return items
	}
	return []models.Value{v}
}

func equalsValue(v, operand models.Value) bool {
	if v.Equal(operand) {
		return true
	}
	if _, ok := v.AsList(); !ok {
		return false
	}
	for _, item := range elements(v) {
		if item.Equal(operand) {
			return true
		}
	}
	return false
}

func compares(v, operand models.Value, op Operator) bool {
	for _, item := range elements(v) {
		if cmp, ok := item.Compare(operand); ok && op.accepts(cmp) {
			return true
		}
	}
	return false
}

func inSet(v models.Value, set []models.Value) bool {
	for _, s := range set {
		if equalsValue(v, s) {
			return true
		}
	}
	return false
}

func matchesPattern(v models.Value, re *regexp.Regexp) bool {
	for _, item := range elements(v) {
		if s, ok := item.AsString(); ok && re.MatchString(s) {
			return true
		}
	}
	return false
}
