package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EntityCampaign = "campaign"
	EntityABTest   = "abtest"
)

type AuditEntry struct {
	ID         string                 `json:"id"`
	EntityType string                 `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	Action     string                 `json:"action"`
	FromStatus string                 `json:"fromStatus,omitempty"`
	ToStatus   string                 `json:"toStatus,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Actor      string                 `json:"actor"`
	Timestamp  time.Time              `json:"timestamp"`
}

type Auditor interface {
	Log(ctx context.Context, entry AuditEntry) error
}

// AuditLogger appends lifecycle transitions to campaign_audit_logs.
type AuditLogger struct {
	db *sql.DB
}

func NewAuditLogger(db *sql.DB) *AuditLogger {
	return &AuditLogger{db: db}
}

func (a *AuditLogger) Log(ctx context.Context, entry AuditEntry) error {
	query := `
		INSERT INTO campaign_audit_logs (id, entity_type, entity_id, action, from_status, to_status, details, actor, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	id := entry.ID
	if id == "" {
		id = uuid.New().String()
	}

	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
	}

	actor := entry.Actor
	if actor == "" {
		actor = "system"
	}

	timestamp := entry.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	_, err := a.db.ExecContext(ctx, query,
		id, entry.EntityType, entry.EntityID, entry.Action,
		nullString(entry.FromStatus), nullString(entry.ToStatus),
		details, actor, timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to log audit entry: %w", err)
	}
	return nil
}

// List returns the most recent entries for one entity.
func (a *AuditLogger) List(ctx context.Context, entityType, entityID string, limit int) ([]AuditEntry, error) {
	query := `
		SELECT id, entity_type, entity_id, action, from_status, to_status, details, actor, timestamp
		FROM campaign_audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY timestamp DESC
		LIMIT $3
	`

	rows, err := a.db.QueryContext(ctx, query, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			e        AuditEntry
			from, to sql.NullString
			details  []byte
		)
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &from, &to, &details, &e.Actor, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		e.FromStatus = from.String
		e.ToStatus = to.String
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
