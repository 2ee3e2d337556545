package segment

import (
	"time"

	"mailwave/pkg/models"
)

type Template struct {
	Key         string
	Name        string
	Description string
	Rules       []models.Rule
	Logic       models.Logic
}

// Prebuilt returns the stock segment templates with dates resolved against now.
func Prebuilt(now time.Time) []Template {
	return []Template{
		{
			Key:         "vip",
			Name:        "VIP Customers",
			Description: "Customers who have spent $500 or more",
			Rules:       []models.Rule{{Field: "totalSpent", Operator: "gte", Value: models.Number(500)}},
			Logic:       models.LogicAnd,
		},
		{
			Key:         "inactive",
			Name:        "Inactive Users",
			Description: "No activity in the last 90 days",
			Rules:       []models.Rule{{Field: "lastActivityDate", Operator: "lt", Value: models.Time(now.AddDate(0, 0, -90))}},
			Logic:       models.LogicAnd,
		},
		{
			Key:         "abandoned_cart",
			Name:        "Abandoned Cart",
			Description: "Contacts with items left in their cart",
			Rules:       []models.Rule{{Field: "abandonedCartValue", Operator: "gt", Value: models.Number(0)}},
			Logic:       models.LogicAnd,
		},
		{
			Key:         "recent_purchasers",
			Name:        "Recent Purchasers",
			Description: "Ordered within the last 30 days",
			Rules:       []models.Rule{{Field: "lastOrderDate", Operator: "gte", Value: models.Time(now.AddDate(0, 0, -30))}},
			Logic:       models.LogicAnd,
		},
		{
			Key:         "high_engagement",
			Name:        "Highly Engaged",
			Description: "At least 5 opens and 2 clicks",
			Rules: []models.Rule{
				{Field: "emailEngagement.opens", Operator: "gte", Value: models.Number(5)},
				{Field: "emailEngagement.clicks", Operator: "gte", Value: models.Number(2)},
			},
			Logic: models.LogicAnd,
		},
	}
}

// Eligibility is the condition every marketing audience is narrowed by.
func Eligibility() Predicate {
	must := func(field, op string, v models.Value) Predicate {
		p, err := CompileRule(models.Rule{Field: field, Operator: op, Value: v})
		if err != nil {
			panic(err)
		}
		return p
	}
	return And(
		must("isUnsubscribed", "notEquals", models.Bool(true)),
		must("isBounced", "notEquals", models.Bool(true)),
		must("isValidEmail", "equals", models.Bool(true)),
	)
}
