package models

import "time"

type ABTestStatus string

const (
	ABTestDraft     ABTestStatus = "draft"
	ABTestRunning   ABTestStatus = "running"
	ABTestCompleted ABTestStatus = "completed"
	ABTestPaused    ABTestStatus = "paused"
)

type ABTestType string

const (
	TestSubjectLine ABTestType = "subject_line"
	TestContent     ABTestType = "content"
	TestSendTime    ABTestType = "send_time"
	TestCTA         ABTestType = "cta"
)

type WinningMetric string

const (
	MetricOpenRate       WinningMetric = "open_rate"
	MetricClickRate      WinningMetric = "click_rate"
	MetricConversionRate WinningMetric = "conversion_rate"
)

type Variant struct {
	CampaignID  string  `bson:"campaignId" json:"campaignId"`
	Label       string  `bson:"label" json:"label"`
	Description string  `bson:"description,omitempty" json:"description,omitempty"`
	SegmentSize int64   `bson:"segmentSize" json:"segmentSize"`
	Metric      float64 `bson:"metric" json:"metric"`
}

type WinningStats struct {
	VariantLabel string  `bson:"variantLabel" json:"variantLabel"`
	Metric       float64 `bson:"metric" json:"metric"`
	Improvement  float64 `bson:"improvement" json:"improvement"`
}

type ABTest struct {
	ID            string        `bson:"_id" json:"id"`
	Name          string        `bson:"name" json:"name"`
	TestType      ABTestType    `bson:"testType" json:"testType"`
	Variants      []Variant     `bson:"variants" json:"variants"`
	WinningMetric WinningMetric `bson:"winningMetric" json:"winningMetric"`
	SegmentID     string        `bson:"segmentId" json:"segmentId"`
	Status        ABTestStatus  `bson:"status" json:"status"`
	StartedAt     *time.Time    `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	ClaimedAt     *time.Time    `bson:"claimedAt,omitempty" json:"claimedAt,omitempty"`
	CompletedAt   *time.Time    `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	WinnerID      string        `bson:"winnerId,omitempty" json:"winnerId,omitempty"`
	WinningStats  *WinningStats `bson:"winningStats,omitempty" json:"winningStats,omitempty"`
	CreatedAt     time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time     `bson:"updatedAt" json:"updatedAt"`
}
