package models

import "time"

type CampaignStatus string

const (
	CampaignDraft      CampaignStatus = "draft"
	CampaignScheduled  CampaignStatus = "scheduled"
	CampaignProcessing CampaignStatus = "processing"
	CampaignSent       CampaignStatus = "sent"
	CampaignPaused     CampaignStatus = "paused"
	CampaignFailed     CampaignStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignSent || s == CampaignFailed
}

type CampaignType string

const (
	CampaignBroadcast     CampaignType = "broadcast"
	CampaignNewsletter    CampaignType = "newsletter"
	CampaignPromotional   CampaignType = "promotional"
	CampaignAnnouncement  CampaignType = "announcement"
	CampaignFlashSale     CampaignType = "flash_sale"
	CampaignTransactional CampaignType = "transactional"
)

type CampaignStats struct {
	Sent         int64 `bson:"sent" json:"sent"`
	Delivered    int64 `bson:"delivered" json:"delivered"`
	Opens        int64 `bson:"opens" json:"opens"`
	UniqueOpens  int64 `bson:"uniqueOpens" json:"uniqueOpens"`
	Clicks       int64 `bson:"clicks" json:"clicks"`
	UniqueClicks int64 `bson:"uniqueClicks" json:"uniqueClicks"`
	Bounces      int64 `bson:"bounces" json:"bounces"`
	Complaints   int64 `bson:"complaints" json:"complaints"`
	Unsubscribes int64 `bson:"unsubscribes" json:"unsubscribes"`
}

const BlockTypeProduct = "product"

type ProductSelection string

const (
	SelectByCategory  ProductSelection = "category"
	SelectBestSellers ProductSelection = "best_seller"
	SelectManual      ProductSelection = "manual"
)

type BlockSettings struct {
	Selection  ProductSelection `bson:"selectionType,omitempty" json:"selectionType,omitempty"`
	Category   string           `bson:"category,omitempty" json:"category,omitempty"`
	ProductIDs []string         `bson:"productIds,omitempty" json:"productIds,omitempty"`
	Limit      int              `bson:"limit,omitempty" json:"limit,omitempty"`
}

type EmailBlock struct {
	ID       string        `bson:"id" json:"id"`
	Type     string        `bson:"type" json:"type"`
	Content  string        `bson:"content,omitempty" json:"content,omitempty"`
	Settings BlockSettings `bson:"settings" json:"settings"`
}

type Campaign struct {
	ID               string         `bson:"_id" json:"id"`
	Name             string         `bson:"name" json:"name"`
	Type             CampaignType   `bson:"type" json:"type"`
	Subject          string         `bson:"subject" json:"subject"`
	PreviewText      string         `bson:"previewText,omitempty" json:"previewText,omitempty"`
	HTMLContent      string         `bson:"htmlContent" json:"htmlContent"`
	PlainTextContent string         `bson:"plainTextContent,omitempty" json:"plainTextContent,omitempty"`
	SegmentID        string         `bson:"segmentId" json:"segmentId"`
	ScheduledAt      *time.Time     `bson:"scheduledAt,omitempty" json:"scheduledAt,omitempty"`
	Status           CampaignStatus `bson:"status" json:"status"`
	EmailBlocks      []EmailBlock   `bson:"emailBlocks,omitempty" json:"emailBlocks,omitempty"`
	Stats            CampaignStats  `bson:"stats" json:"stats"`
	ABTestID         string         `bson:"abTestId,omitempty" json:"abTestId,omitempty"`
	IsVariant        bool           `bson:"isVariant" json:"isVariant"`
	SentAt           *time.Time     `bson:"sentAt,omitempty" json:"sentAt,omitempty"`
	CreatedAt        time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time      `bson:"updatedAt" json:"updatedAt"`
}

// ProductBlocks returns the blocks that render product widgets.
func (c *Campaign) ProductBlocks() []EmailBlock {
	var out []EmailBlock
	for _, b := range c.EmailBlocks {
		if b.Type == BlockTypeProduct {
			out = append(out, b)
		}
	}
	return out
}

// Stat field names, as stored under "stats." in a campaign document.
const (
	StatSent         = "sent"
	StatDelivered    = "delivered"
	StatOpens        = "opens"
	StatUniqueOpens  = "uniqueOpens"
	StatClicks       = "clicks"
	StatUniqueClicks = "uniqueClicks"
	StatBounces      = "bounces"
	StatComplaints   = "complaints"
	StatUnsubscribes = "unsubscribes"
)
