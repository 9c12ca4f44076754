package repo

import (
	"context"
	"database/sql"

	"oppline/internal/domain"
)

func (r Repo) InsertAttachment(ctx context.Context, tx *sql.Tx, a domain.Attachment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO attachments(id,opportunity_id,file_name,file_type,file_size,url,uploaded_by,uploaded_at,removed) VALUES (?,?,?,?,?,?,?,?,0)`,
		a.ID, a.OpportunityID, a.FileName, nullable(a.FileType), a.FileSize, a.URL, a.UploadedBy, a.UploadedAt)
	return err
}

// MarkAttachmentRemoved soft-removes an attachment; the metadata row stays
// for audit purposes.
func (r Repo) MarkAttachmentRemoved(ctx context.Context, tx *sql.Tx, opportunityID, attachmentID string) error {
	res, err := tx.ExecContext(ctx, `UPDATE attachments SET removed=1 WHERE id=? AND opportunity_id=? AND removed=0`, attachmentID, opportunityID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetAttachment(ctx context.Context, id string) (domain.Attachment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,opportunity_id,file_name,file_type,file_size,url,uploaded_by,uploaded_at,removed FROM attachments WHERE id=?`, id)
	var a domain.Attachment
	var fileType sql.NullString
	var removed int
	err := row.Scan(&a.ID, &a.OpportunityID, &a.FileName, &fileType, &a.FileSize, &a.URL, &a.UploadedBy, &a.UploadedAt, &removed)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if fileType.Valid {
		a.FileType = fileType.String
	}
	a.Removed = removed != 0
	return a, nil
}

func (r Repo) ListAttachments(ctx context.Context, opportunityID string, includeRemoved bool) ([]domain.Attachment, error) {
	query := `SELECT id,opportunity_id,file_name,file_type,file_size,url,uploaded_by,uploaded_at,removed FROM attachments WHERE opportunity_id=?`
	if !includeRemoved {
		query += ` AND removed=0`
	}
	query += ` ORDER BY uploaded_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, opportunityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		var fileType sql.NullString
		var removed int
		if err := rows.Scan(&a.ID, &a.OpportunityID, &a.FileName, &fileType, &a.FileSize, &a.URL, &a.UploadedBy, &a.UploadedAt, &removed); err != nil {
			return nil, err
		}
		if fileType.Valid {
			a.FileType = fileType.String
		}
		a.Removed = removed != 0
		res = append(res, a)
	}
	return res, rows.Err()
}
