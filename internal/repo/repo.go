package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"oppline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means the opportunity changed under the caller; the save was
	// attempted against a stale version.
	ErrConflict = errors.New("version conflict")
)

const opportunityColumns = `id,title,description,customer_id,sales_manager_id,arr_cents,priority,status,notes,version,
selected_architect_id,completion_date,cancellation_date,cancellation_reason,reactivation_deadline,
problem_statement_json,timeline_json,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(row rowScanner) (domain.Opportunity, error) {
	var o domain.Opportunity
	var notes, architect, completion, cancellation, cancelReason, deadline, problemJSON, timelineJSON sql.NullString
	err := row.Scan(&o.ID, &o.Title, &o.Description, &o.CustomerID, &o.SalesManagerID, &o.ARRCents,
		&o.Priority, &o.Status, &notes, &o.Version,
		&architect, &completion, &cancellation, &cancelReason, &deadline,
		&problemJSON, &timelineJSON, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	if notes.Valid {
		o.Notes = notes.String
	}
	if architect.Valid {
		o.SelectedArchitectID = &architect.String
	}
	if completion.Valid {
		o.CompletionDate = &completion.String
	}
	if cancellation.Valid {
		o.CancellationDate = &cancellation.String
	}
	if cancelReason.Valid {
		o.CancellationReason = &cancelReason.String
	}
	if deadline.Valid {
		o.ReactivationDeadline = &deadline.String
	}
	if problemJSON.Valid && problemJSON.String != "" {
		var ps domain.ProblemStatement
		if err := json.Unmarshal([]byte(problemJSON.String), &ps); err != nil {
			return o, fmt.Errorf("decode problem statement: %w", err)
		}
		o.ProblemStatement = &ps
	}
	if timelineJSON.Valid && timelineJSON.String != "" {
		var tl domain.TimelineSpecification
		if err := json.Unmarshal([]byte(timelineJSON.String), &tl); err != nil {
			return o, fmt.Errorf("decode timeline: %w", err)
		}
		o.Timeline = &tl
	}
	return o, nil
}

func (r Repo) InsertOpportunity(ctx context.Context, tx *sql.Tx, o domain.Opportunity) error {
	problemJSON, err := marshalOptional(o.ProblemStatement)
	if err != nil {
		return err
	}
	timelineJSON, err := marshalOptional(o.Timeline)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO opportunities(id,title,description,customer_id,sales_manager_id,arr_cents,priority,status,notes,version,
selected_architect_id,completion_date,cancellation_date,cancellation_reason,reactivation_deadline,
problem_statement_json,timeline_json,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.Title, o.Description, o.CustomerID, o.SalesManagerID, o.ARRCents, o.Priority, o.Status,
		nullable(o.Notes), o.Version,
		nullableStringPtr(o.SelectedArchitectID), nullableStringPtr(o.CompletionDate),
		nullableStringPtr(o.CancellationDate), nullableStringPtr(o.CancellationReason),
		nullableStringPtr(o.ReactivationDeadline),
		problemJSON, timelineJSON, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	return r.replaceSkills(ctx, tx, o.ID, o.Skills)
}

// UpdateOpportunity saves with compare-and-swap on the version the caller
// loaded. On success the stored row carries o.Version+1 and o is updated to
// match; zero affected rows means a concurrent writer won and ErrConflict is
// returned.
func (r Repo) UpdateOpportunity(ctx context.Context, tx *sql.Tx, o *domain.Opportunity) error {
	problemJSON, err := marshalOptional(o.ProblemStatement)
	if err != nil {
		return err
	}
	timelineJSON, err := marshalOptional(o.Timeline)
	if err != nil {
		return err
	}
	newVersion := o.Version + 1
	res, err := tx.ExecContext(ctx, `UPDATE opportunities SET title=?, description=?, customer_id=?, sales_manager_id=?, arr_cents=?, priority=?, status=?, notes=?, version=?,
selected_architect_id=?, completion_date=?, cancellation_date=?, cancellation_reason=?, reactivation_deadline=?,
problem_statement_json=?, timeline_json=?, updated_at=?
WHERE id=? AND version=?`,
		o.Title, o.Description, o.CustomerID, o.SalesManagerID, o.ARRCents, o.Priority, o.Status,
		nullable(o.Notes), newVersion,
		nullableStringPtr(o.SelectedArchitectID), nullableStringPtr(o.CompletionDate),
		nullableStringPtr(o.CancellationDate), nullableStringPtr(o.CancellationReason),
		nullableStringPtr(o.ReactivationDeadline),
		problemJSON, timelineJSON, o.UpdatedAt,
		o.ID, o.Version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	o.Version = newVersion
	return r.replaceSkills(ctx, tx, o.ID, o.Skills)
}

func (r Repo) GetOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	o, err := scanOpportunity(r.DB.QueryRowContext(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id=?`, id))
	if err != nil {
		return o, err
	}
	o.Skills, err = r.listSkills(ctx, r.DB.QueryContext, id)
	return o, err
}

func (r Repo) GetOpportunityTx(ctx context.Context, tx *sql.Tx, id string) (domain.Opportunity, error) {
	o, err := scanOpportunity(tx.QueryRowContext(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id=?`, id))
	if err != nil {
		return o, err
	}
	o.Skills, err = r.listSkills(ctx, tx.QueryContext, id)
	return o, err
}

type OpportunityFilters struct {
	Status          string
	Priority        string
	CustomerID      string
	SalesManagerID  string
	Query           string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListOpportunities(ctx context.Context, f OpportunityFilters) ([]domain.Opportunity, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.CustomerID != "" {
		clauses = append(clauses, "customer_id=?")
		args = append(args, f.CustomerID)
	}
	if f.SalesManagerID != "" {
		clauses = append(clauses, "sales_manager_id=?")
		args = append(args, f.SalesManagerID)
	}
	if f.Query != "" {
		clauses = append(clauses, "(title LIKE ? OR description LIKE ?)")
		pattern := "%" + f.Query + "%"
		args = append(args, pattern, pattern)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + opportunityColumns + ` FROM opportunities ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Skills, err = r.listSkills(ctx, r.DB.QueryContext, res[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM opportunities GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

type queryFunc func(ctx context.Context, query string, args ...any) (*sql.Rows, error)

func (r Repo) listSkills(ctx context.Context, query queryFunc, opportunityID string) ([]domain.SkillRequirement, error) {
	rows, err := query(ctx, `SELECT name,category,importance,proficiency FROM skill_requirements WHERE opportunity_id=? ORDER BY name_key, category`, opportunityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var skills []domain.SkillRequirement
	for rows.Next() {
		var s domain.SkillRequirement
		var prof sql.NullString
		if err := rows.Scan(&s.Name, &s.Category, &s.Importance, &prof); err != nil {
			return nil, err
		}
		if prof.Valid {
			p := domain.Proficiency(prof.String)
			s.Proficiency = &p
		}
		skills = append(skills, s)
	}
	return skills, rows.Err()
}

func (r Repo) replaceSkills(ctx context.Context, tx *sql.Tx, opportunityID string, skills []domain.SkillRequirement) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM skill_requirements WHERE opportunity_id=?`, opportunityID); err != nil {
		return err
	}
	for _, s := range skills {
		var prof any
		if s.Proficiency != nil {
			prof = string(*s.Proficiency)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO skill_requirements(opportunity_id,name,name_key,category,importance,proficiency) VALUES (?,?,?,?,?,?)`,
			opportunityID, s.Name, strings.ToLower(s.Name), s.Category, s.Importance, prof); err != nil {
			return err
		}
	}
	return nil
}

func marshalOptional(v any) (any, error) {
	switch t := v.(type) {
	case *domain.ProblemStatement:
		if t == nil {
			return nil, nil
		}
	case *domain.TimelineSpecification:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
