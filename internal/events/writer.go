package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Lifecycle event types appended by the engine.
const (
	TypeCreated           = "opportunity.created"
	TypeUpdated           = "opportunity.updated"
	TypeStatusChanged     = "opportunity.status.changed"
	TypeSubmitted         = "opportunity.submitted"
	TypeCancelled         = "opportunity.cancelled"
	TypeReactivated       = "opportunity.reactivated"
	TypeArchitectSelected = "opportunity.architect.selected"
	TypeCompleted         = "opportunity.completed"
	TypeCloned            = "opportunity.cloned"
	TypeAttachmentAdded   = "opportunity.attachment.added"
	TypeAttachmentRemoved = "opportunity.attachment.removed"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event row inside the caller's transaction so the event
// commits or rolls back with the state change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, opportunityID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,opportunity_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(opportunityID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
