package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestAttributesKeepInsertionOrder(t *testing.T) {
	attrs := NewAttributes()
	attrs.Set("zeta", String("last"))
	attrs.Set("alpha", Number(3))
	attrs.Set("mid", Bool(true))
	attrs.Set("zeta", String("replaced"))

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, attrs.Keys())

	v, ok := attrs.Get("zeta")
	require.True(t, ok)
	assert.Equal(t, "replaced", v.Text())

	attrs.Delete("alpha")
	assert.Equal(t, []string{"zeta", "mid"}, attrs.Keys())
}

func TestAttributesJSONOrder(t *testing.T) {
	raw := `{"plan":"gold","visits":12,"vip":true,"tags":["a","b"],"missing":null}`

	var attrs Attributes
	require.NoError(t, json.Unmarshal([]byte(raw), &attrs))
	assert.Equal(t, []string{"plan", "visits", "vip", "tags", "missing"}, attrs.Keys())

	visits, _ := attrs.Get("visits")
	assert.Equal(t, KindNumber, visits.Kind())

	missing, _ := attrs.Get("missing")
	assert.True(t, missing.IsNull())

	out, err := json.Marshal(attrs)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
	assert.Equal(t, raw, string(out))
}

func TestAttributesBSONPreservesKindsAndOrder(t *testing.T) {
	joined := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	c := NewContact("c1", "a@example.com")
	c.CustomAttributes.Set("tier", String("gold"))
	c.CustomAttributes.Set("joined", Time(joined))
	c.CustomAttributes.Set("score", Number(4.5))

	data, err := bson.Marshal(c)
	require.NoError(t, err)

	var decoded Contact
	require.NoError(t, bson.Unmarshal(data, &decoded))

	assert.Equal(t, []string{"tier", "joined", "score"}, decoded.CustomAttributes.Keys())
	got, _ := decoded.CustomAttributes.Get("joined")
	ts, ok := got.AsTime()
	require.True(t, ok)
	assert.True(t, joined.Equal(ts))
	assert.True(t, decoded.IsValidEmail)
}

func TestValueText(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{"null", Null(), ""},
		{"integer number", Number(42), "42"},
		{"fraction", Number(19.99), "19.99"},
		{"bool", Bool(false), "false"},
		{"list", Strings([]string{"a", "b"}), "a,b"},
		{"time", Time(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)), "2024-01-02T03:04:05Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.value.Text())
		})
	}
}

func TestValueCompare(t *testing.T) {
	cmp, ok := Number(1).Compare(Number(2))
	assert.True(t, ok)
	assert.Equal(t, -1, cmp)

	_, ok = Number(1).Compare(String("1"))
	assert.False(t, ok)

	assert.True(t, Strings([]string{"x"}).Equal(List(String("x"))))
}
