package models

import "time"

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryBounced   DeliveryStatus = "bounced"
	DeliveryFailed    DeliveryStatus = "failed"
)

type BounceType string

const (
	BounceSoft BounceType = "soft"
	BounceHard BounceType = "hard"
)

type ClickedLink struct {
	URL        string    `bson:"url" json:"url"`
	ClickCount int64     `bson:"clickCount" json:"clickCount"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
}

type TrackingRecord struct {
	TrackingID     string         `bson:"trackingId" json:"trackingId"`
	CampaignID     *string        `bson:"campaignId" json:"campaignId"`
	ContactID      string         `bson:"contactId" json:"contactId"`
	Email          string         `bson:"email" json:"email"`
	DeliveryStatus DeliveryStatus `bson:"deliveryStatus" json:"deliveryStatus"`
	BounceType     BounceType     `bson:"bounceType,omitempty" json:"bounceType,omitempty"`
	BounceReason   string         `bson:"bounceReason,omitempty" json:"bounceReason,omitempty"`
	Opened         bool           `bson:"opened" json:"opened"`
	OpenCount      int64          `bson:"openCount" json:"openCount"`
	FirstOpenedAt  *time.Time     `bson:"firstOpenedAt,omitempty" json:"firstOpenedAt,omitempty"`
	LastOpenedAt   *time.Time     `bson:"lastOpenedAt,omitempty" json:"lastOpenedAt,omitempty"`
	Clicked        bool           `bson:"clicked" json:"clicked"`
	ClickCount     int64          `bson:"clickCount" json:"clickCount"`
	FirstClickedAt *time.Time     `bson:"firstClickedAt,omitempty" json:"firstClickedAt,omitempty"`
	LastClickedAt  *time.Time     `bson:"lastClickedAt,omitempty" json:"lastClickedAt,omitempty"`
	ClickedLinks   []ClickedLink  `bson:"clickedLinks" json:"clickedLinks"`
	SentAt         *time.Time     `bson:"sentAt,omitempty" json:"sentAt,omitempty"`
	CreatedAt      time.Time      `bson:"createdAt" json:"createdAt"`
	ExpiresAt      time.Time      `bson:"expiresAt" json:"expiresAt"`
}
