package models

import "time"

type Engagement struct {
	Opens  int64 `bson:"opens" json:"opens"`
	Clicks int64 `bson:"clicks" json:"clicks"`
}

type Contact struct {
	ID                      string     `bson:"_id" json:"id"`
	Email                   string     `bson:"email" json:"email"`
	Name                    string     `bson:"name,omitempty" json:"name,omitempty"`
	Phone                   string     `bson:"phone,omitempty" json:"phone,omitempty"`
	Location                string     `bson:"location,omitempty" json:"location,omitempty"`
	Tags                    []string   `bson:"tags" json:"tags"`
	CustomAttributes        Attributes `bson:"customAttributes,omitempty" json:"customAttributes"`
	LastOrderDate           *time.Time `bson:"lastOrderDate,omitempty" json:"lastOrderDate,omitempty"`
	TotalSpent              float64    `bson:"totalSpent" json:"totalSpent"`
	CartValue               float64    `bson:"cartValue" json:"cartValue"`
	AbandonedCartValue      float64    `bson:"abandonedCartValue" json:"abandonedCartValue"`
	PurchaseCount           int64      `bson:"purchaseCount" json:"purchaseCount"`
	AverageOrderValue       float64    `bson:"averageOrderValue" json:"averageOrderValue"`
	LastPurchaseValue       float64    `bson:"lastPurchaseValue" json:"lastPurchaseValue"`
	CategoryInterest        []string   `bson:"categoryInterest" json:"categoryInterest"`
	EmailEngagement         Engagement `bson:"emailEngagement" json:"emailEngagement"`
	CouponUsage             int64      `bson:"couponUsage" json:"couponUsage"`
	LastActivityDate        *time.Time `bson:"lastActivityDate,omitempty" json:"lastActivityDate,omitempty"`
	LastEmailEngagementDate *time.Time `bson:"lastEmailEngagementDate,omitempty" json:"lastEmailEngagementDate,omitempty"`
	SubscriptionStatus      string     `bson:"subscriptionStatus,omitempty" json:"subscriptionStatus,omitempty"`
	Source                  string     `bson:"source,omitempty" json:"source,omitempty"`
	IsUnsubscribed          bool       `bson:"isUnsubscribed" json:"isUnsubscribed"`
	IsBounced               bool       `bson:"isBounced" json:"isBounced"`
	IsValidEmail            bool       `bson:"isValidEmail" json:"isValidEmail"`
	CreatedAt               time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt               time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// NewContact returns a contact with the store defaults applied.
func NewContact(id, email string) *Contact {
	now := time.Now().UTC()
	return &Contact{
		ID:               id,
		Email:            email,
		Tags:             []string{},
		CategoryInterest: []string{},
		CustomAttributes: NewAttributes(),
		IsValidEmail:     true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Eligible reports whether the contact may receive marketing mail.
func (c *Contact) Eligible() bool {
	return !c.IsUnsubscribed && !c.IsBounced && c.IsValidEmail
}
