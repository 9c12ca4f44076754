package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"oppline/internal/domain"
)

// The audit tables are insert-only. Nothing in this package updates or
// deletes status_history or change_records rows; row id order is insertion
// order.

func (r Repo) InsertStatusHistory(ctx context.Context, tx *sql.Tx, h domain.StatusHistory) error {
	var from any
	if h.FromStatus != nil {
		from = string(*h.FromStatus)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO status_history(opportunity_id,from_status,to_status,changed_by,reason,notes,ts) VALUES (?,?,?,?,?,?,?)`,
		h.OpportunityID, from, h.ToStatus, h.ChangedBy, h.Reason, nullable(h.Notes), h.TS)
	return err
}

func (r Repo) ListStatusHistory(ctx context.Context, opportunityID string) ([]domain.StatusHistory, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,opportunity_id,from_status,to_status,changed_by,reason,notes,ts FROM status_history WHERE opportunity_id=? ORDER BY id ASC`, opportunityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StatusHistory
	for rows.Next() {
		var h domain.StatusHistory
		var from, notes sql.NullString
		if err := rows.Scan(&h.ID, &h.OpportunityID, &from, &h.ToStatus, &h.ChangedBy, &h.Reason, &notes, &h.TS); err != nil {
			return nil, err
		}
		if from.Valid {
			s := domain.Status(from.String)
			h.FromStatus = &s
		}
		if notes.Valid {
			h.Notes = notes.String
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// ListStatusHistoryTx reads history inside the caller's transaction, used by
// the reactivation target walk.
func (r Repo) ListStatusHistoryTx(ctx context.Context, tx *sql.Tx, opportunityID string) ([]domain.StatusHistory, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,opportunity_id,from_status,to_status,changed_by,reason,notes,ts FROM status_history WHERE opportunity_id=? ORDER BY id ASC`, opportunityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StatusHistory
	for rows.Next() {
		var h domain.StatusHistory
		var from, notes sql.NullString
		if err := rows.Scan(&h.ID, &h.OpportunityID, &from, &h.ToStatus, &h.ChangedBy, &h.Reason, &notes, &h.TS); err != nil {
			return nil, err
		}
		if from.Valid {
			s := domain.Status(from.String)
			h.FromStatus = &s
		}
		if notes.Valid {
			h.Notes = notes.String
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func (r Repo) InsertChangeRecord(ctx context.Context, tx *sql.Tx, c domain.ChangeRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO change_records(opportunity_id,field_changed,old_value,new_value,changed_by,reason,ts) VALUES (?,?,?,?,?,?,?)`,
		c.OpportunityID, c.FieldChanged, c.OldValue, c.NewValue, c.ChangedBy, nullable(c.Reason), c.TS)
	return err
}

type ChangeRecordFilters struct {
	OpportunityID string
	Field         string
	Limit         int
	CursorID      int64
}

func (r Repo) ListChangeRecords(ctx context.Context, f ChangeRecordFilters) ([]domain.ChangeRecord, error) {
	clauses := []string{"opportunity_id=?"}
	args := []any{f.OpportunityID}
	if f.Field != "" {
		clauses = append(clauses, "field_changed=?")
		args = append(args, f.Field)
	}
	if f.CursorID > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.CursorID)
	}
	query := `SELECT id,opportunity_id,field_changed,old_value,new_value,changed_by,reason,ts FROM change_records WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChangeRecord
	for rows.Next() {
		var c domain.ChangeRecord
		var reason sql.NullString
		if err := rows.Scan(&c.ID, &c.OpportunityID, &c.FieldChanged, &c.OldValue, &c.NewValue, &c.ChangedBy, &reason, &c.TS); err != nil {
			return nil, err
		}
		if reason.Valid {
			c.Reason = reason.String
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, opportunityID, evtType string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, opportunityID, evtType)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, opportunityID, evtType string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if opportunityID != "" {
		clauses = append(clauses, "opportunity_id=?")
		args = append(args, opportunityID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,opportunity_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id,ts,type,opportunity_id,entity_kind,entity_id,actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`
	return r.queryEvents(ctx, query, cursor, limit)
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var oppID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &oppID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if oppID.Valid {
			e.OpportunityID = oppID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
