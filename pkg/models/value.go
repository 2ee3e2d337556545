package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindTime
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindList:
		return "list"
	default:
		return "null"
	}
}

// Value is the closed set of scalar types a custom attribute or a rule
// operand may hold. The zero Value is null.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	t    time.Time
	list []Value
}

func Null() Value            { return Value{} }
func String(s string) Value  { return Value{kind: KindString, str: s} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Time(t time.Time) Value { return Value{kind: KindTime, t: t.UTC()} }
func List(vs ...Value) Value { return Value{kind: KindList, list: vs} }
func Strings(ss []string) Value {
	vs := make([]Value, len(ss))
	for i, s := range ss {
		vs[i] = String(s)
	}
	return List(vs...)
}

// ValueOf converts a decoded JSON or BSON scalar into a Value.
func ValueOf(x interface{}) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return v, nil
	case string:
		return String(v), nil
	case bool:
		return Bool(v), nil
	case float64:
		return Number(v), nil
	case float32:
		return Number(float64(v)), nil
	case int:
		return Number(float64(v)), nil
	case int32:
		return Number(float64(v)), nil
	case int64:
		return Number(float64(v)), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q: %w", v, err)
		}
		return Number(f), nil
	case time.Time:
		return Time(v), nil
	case primitive.DateTime:
		return Time(v.Time()), nil
	case []string:
		return Strings(v), nil
	case []interface{}:
		return listOf(v)
	case primitive.A:
		return listOf(v)
	default:
		return Null(), fmt.Errorf("unsupported value type %T", x)
	}
}

// MustValue is ValueOf for literals known to be supported.
func MustValue(x interface{}) Value {
	v, err := ValueOf(x)
	if err != nil {
		panic(err)
	}
	return v
}

func listOf(xs []interface{}) (Value, error) {
	vs := make([]Value, 0, len(xs))
	for _, x := range xs {
		v, err := ValueOf(x)
		if err != nil {
			return Null(), err
		}
		vs = append(vs, v)
	}
	return List(vs...), nil
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

func (v Value) AsString() (string, bool)  { return v.str, v.kind == KindString }
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }
func (v Value) AsBool() (bool, bool)      { return v.b, v.kind == KindBool }
func (v Value) AsTime() (time.Time, bool) { return v.t, v.kind == KindTime }
func (v Value) AsList() ([]Value, bool)   { return v.list, v.kind == KindList }

// Interface returns the plain Go value, suitable for bson filters and templates.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindTime:
		return v.t
	case KindList:
		out := make([]interface{}, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// Text renders the value for substitution into message content.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		if math.Trunc(v.num) == v.num && math.Abs(v.num) < 1e15 {
			return strconv.FormatInt(int64(v.num), 10)
		}
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.Format(time.RFC3339)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.Text()
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

// Equal reports strict equality. Lists compare element-wise.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindTime:
		return v.t.Equal(o.t)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two values of the same ordered kind. ok is false when the
// kinds differ or are not ordered.
func (v Value) Compare(o Value) (cmp int, ok bool) {
	if v.kind != o.kind {
		return 0, false
	}
	switch v.kind {
	case KindNumber:
		return compareOrdered(v.num, o.num), true
	case KindString:
		return strings.Compare(v.str, o.str), true
	case KindTime:
		return v.t.Compare(o.t), true
	}
	return 0, false
}

func compareOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var x interface{}
	if err := json.Unmarshal(data, &x); err != nil {
		return err
	}
	parsed, err := ValueOf(x)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if v.kind == KindList {
		arr := make(bson.A, len(v.list))
		for i, item := range v.list {
			arr[i] = item
		}
		return bson.MarshalValue(arr)
	}
	return bson.MarshalValue(v.Interface())
}

func (v *Value) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	parsed, err := valueFromRaw(bson.RawValue{Type: t, Value: data})
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func valueFromRaw(rv bson.RawValue) (Value, error) {
	switch rv.Type {
	case bsontype.Null, bsontype.Undefined:
		return Null(), nil
	case bsontype.String:
		return String(rv.StringValue()), nil
	case bsontype.Double:
		return Number(rv.Double()), nil
	case bsontype.Int32:
		return Number(float64(rv.Int32())), nil
	case bsontype.Int64:
		return Number(float64(rv.Int64())), nil
	case bsontype.Decimal128:
		f, err := strconv.ParseFloat(rv.Decimal128().String(), 64)
		if err != nil {
			return Null(), fmt.Errorf("decimal128: %w", err)
		}
		return Number(f), nil
	case bsontype.Boolean:
		return Bool(rv.Boolean()), nil
	case bsontype.DateTime:
		return Time(rv.Time()), nil
	case bsontype.Array:
		items, err := rv.Array().Values()
		if err != nil {
			return Null(), err
		}
		vs := make([]Value, 0, len(items))
		for _, item := range items {
			iv, err := valueFromRaw(item)
			if err != nil {
				return Null(), err
			}
			vs = append(vs, iv)
		}
		return List(vs...), nil
	default:
		return Null(), fmt.Errorf("unsupported bson type %s", rv.Type)
	}
}
