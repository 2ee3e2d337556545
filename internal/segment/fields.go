package segment

import (
	"strconv"
	"strings"
	"time"

	"mailwave/pkg/models"
)

type fieldKind uint8

const (
	kindString fieldKind = iota
	kindNumber
	kindBool
	kindTime
	kindStringList
	kindAttribute
)

type field struct {
	path string
	kind fieldKind
	get  func(c *models.Contact) models.Value
}

const customAttributesPrefix = "customAttributes."

var contactFields = map[string]field{}

func init() {
	str := func(path string, get func(*models.Contact) string) {
		contactFields[path] = field{path, kindString, func(c *models.Contact) models.Value { return optString(get(c)) }}
	}
	num := func(path string, get func(*models.Contact) float64) {
		contactFields[path] = field{path, kindNumber, func(c *models.Contact) models.Value { return models.Number(get(c)) }}
	}
	tm := func(path string, get func(*models.Contact) *time.Time) {
		contactFields[path] = field{path, kindTime, func(c *models.Contact) models.Value { return optTime(get(c)) }}
	}
	flag := func(path string, get func(*models.Contact) bool) {
		contactFields[path] = field{path, kindBool, func(c *models.Contact) models.Value { return models.Bool(get(c)) }}
	}
	list := func(path string, get func(*models.Contact) []string) {
		contactFields[path] = field{path, kindStringList, func(c *models.Contact) models.Value { return models.Strings(get(c)) }}
	}

	str("email", func(c *models.Contact) string { return c.Email })
	str("name", func(c *models.Contact) string { return c.Name })
	str("phone", func(c *models.Contact) string { return c.Phone })
	str("location", func(c *models.Contact) string { return c.Location })
	str("subscriptionStatus", func(c *models.Contact) string { return c.SubscriptionStatus })
	str("source", func(c *models.Contact) string { return c.Source })

	list("tags", func(c *models.Contact) []string { return c.Tags })
	list("categoryInterest", func(c *models.Contact) []string { return c.CategoryInterest })

	num("totalSpent", func(c *models.Contact) float64 { return c.TotalSpent })
	num("cartValue", func(c *models.Contact) float64 { return c.CartValue })
	num("abandonedCartValue", func(c *models.Contact) float64 { return c.AbandonedCartValue })
	num("purchaseCount", func(c *models.Contact) float64 { return float64(c.PurchaseCount) })
	num("averageOrderValue", func(c *models.Contact) float64 { return c.AverageOrderValue })
	num("lastPurchaseValue", func(c *models.Contact) float64 { return c.LastPurchaseValue })
	num("couponUsage", func(c *models.Contact) float64 { return float64(c.CouponUsage) })
	num("emailEngagement.opens", func(c *models.Contact) float64 { return float64(c.EmailEngagement.Opens) })
	num("emailEngagement.clicks", func(c *models.Contact) float64 { return float64(c.EmailEngagement.Clicks) })

	tm("lastOrderDate", func(c *models.Contact) *time.Time { return c.LastOrderDate })
	tm("lastActivityDate", func(c *models.Contact) *time.Time { return c.LastActivityDate })
	tm("lastEmailEngagementDate", func(c *models.Contact) *time.Time { return c.LastEmailEngagementDate })
	tm("createdAt", func(c *models.Contact) *time.Time { return &c.CreatedAt })

	flag("isUnsubscribed", func(c *models.Contact) bool { return c.IsUnsubscribed })
	flag("isBounced", func(c *models.Contact) bool { return c.IsBounced })
	flag("isValidEmail", func(c *models.Contact) bool { return c.IsValidEmail })
}

// lookupField resolves a rule path. customAttributes.<key> is accepted for
// any single-segment key.
func lookupField(path string) (field, bool) {
	if f, ok := contactFields[path]; ok {
		return f, true
	}

	key, ok := strings.CutPrefix(path, customAttributesPrefix)
	if !ok || key == "" || strings.ContainsAny(key, ".$") {
		return field{}, false
	}
	return field{
		path: path,
		kind: kindAttribute,
		get: func(c *models.Contact) models.Value {
			v, _ := c.CustomAttributes.Get(key)
			return v
		},
	}, true
}

// Fields lists the built-in rule paths.
func Fields() []string {
	out := make([]string, 0, len(contactFields))
	for path := range contactFields {
		out = append(out, path)
	}
	return out
}

func optString(s string) models.Value {
	if s == "" {
		return models.Null()
	}
	return models.String(s)
}

func optTime(t *time.Time) models.Value {
	if t == nil {
		return models.Null()
	}
	return models.Time(*t)
}

// coerce normalizes a rule operand for the field it is compared against.
func (f field) coerce(v models.Value, op Operator) models.Value {
	if items, ok := v.AsList(); ok {
		out := make([]models.Value, len(items))
		for i, item := range items {
			out[i] = f.coerce(item, op)
		}
		return models.List(out...)
	}

	s, ok := v.AsString()
	if !ok {
		return v
	}

	if op.comparison() {
		if n, ok := parseNumber(s); ok {
			return models.Number(n)
		}
		if f.kind == kindTime || f.kind == kindAttribute {
			if t, ok := parseTime(s); ok {
				return models.Time(t)
			}
		}
		return v
	}

	switch f.kind {
	case kindNumber:
		if n, ok := parseNumber(s); ok {
			return models.Number(n)
		}
	case kindTime:
		if t, ok := parseTime(s); ok {
			return models.Time(t)
		}
	case kindBool:
		if b, err := strconv.ParseBool(s); err == nil {
			return models.Bool(b)
		}
	case kindString:
		if s == "" {
			return models.Null()
		}
	}
	return v
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	return n, err == nil
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
