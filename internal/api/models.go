package api

import (
	"time"

	"mailwave/pkg/models"
)

type RulesRequest struct {
	Rules []models.Rule `json:"rules"`
	Logic string        `json:"logic"`
	Limit int           `json:"limit,omitempty"`
}

type PrebuiltSegment struct {
	Key         string        `json:"key"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Rules       []models.Rule `json:"rules"`
	Logic       models.Logic  `json:"logic"`
}

type SampleResponse struct {
	Contacts []*models.Contact `json:"contacts"`
	Count    int               `json:"count"`
}

type ScheduleRequest struct {
	ScheduledAt time.Time `json:"scheduledAt"`
}

type CloneRequest struct {
	Name string `json:"name"`
}

type BulkRequest struct {
	SegmentID   string `json:"segmentId" binding:"required"`
	Subject     string `json:"subject" binding:"required"`
	HTMLContent string `json:"htmlContent" binding:"required"`
}

type StartABTestRequest struct {
	StartAt *time.Time `json:"startAt,omitempty"`
}

type CompleteABTestRequest struct {
	WinnerID    string  `json:"winnerId" binding:"required"`
	Improvement float64 `json:"improvement"`
}
