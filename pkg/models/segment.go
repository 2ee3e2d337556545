package models

import (
	"strings"
	"time"
)

type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// ParseLogic is case-insensitive and defaults to AND.
func ParseLogic(s string) Logic {
	if strings.EqualFold(strings.TrimSpace(s), string(LogicOr)) {
		return LogicOr
	}
	return LogicAnd
}

type ValueRange struct {
	From Value `bson:"from" json:"from"`
	To   Value `bson:"to" json:"to"`
}

type Rule struct {
	Field      string      `bson:"field" json:"field"`
	Operator   string      `bson:"operator" json:"operator"`
	Value      Value       `bson:"value" json:"value"`
	ValueRange *ValueRange `bson:"valueRange,omitempty" json:"valueRange,omitempty"`
}

type RuleGroup struct {
	Rules []Rule `bson:"rules" json:"rules"`
	Logic Logic  `bson:"logic" json:"logic"`
}

type SyncFrequency string

const (
	SyncRealtime SyncFrequency = "realtime"
	SyncHourly   SyncFrequency = "hourly"
	SyncDaily    SyncFrequency = "daily"
)

type Segment struct {
	ID               string        `bson:"_id" json:"id"`
	Name             string        `bson:"name" json:"name"`
	Description      string        `bson:"description,omitempty" json:"description,omitempty"`
	Rules            []Rule        `bson:"rules" json:"rules"`
	Logic            Logic         `bson:"logic" json:"logic"`
	NestedRules      []RuleGroup   `bson:"nestedRules,omitempty" json:"nestedRules,omitempty"`
	ContactCount     int64         `bson:"contactCount" json:"contactCount"`
	LastCalculatedAt *time.Time    `bson:"lastCalculatedAt,omitempty" json:"lastCalculatedAt,omitempty"`
	AutoSync         bool          `bson:"autoSync" json:"autoSync"`
	SyncFrequency    SyncFrequency `bson:"syncFrequency,omitempty" json:"syncFrequency,omitempty"`
	IsActive         bool          `bson:"isActive" json:"isActive"`
	CreatedAt        time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time     `bson:"updatedAt" json:"updatedAt"`
}
