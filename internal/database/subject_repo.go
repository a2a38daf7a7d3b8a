package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"launchpad-deployment/internal/models"
)

// SubjectRepo stores deployment subjects in the apps table.
type SubjectRepo struct {
	DB *sql.DB
}

const subjectColumns = `id, name, source_path, framework, status, live_url, provider, created_at, updated_at`

// Create inserts s and fills in its id and timestamps.
func (r *SubjectRepo) Create(ctx context.Context, s *models.Subject) error {
	if s.Name == "" || s.SourcePath == "" {
		return fmt.Errorf("name and source path are required: %w", models.ErrInvalidArgument)
	}
	if s.Framework == "" {
		s.Framework = models.FrameworkUnknown
	}
	if s.Status == "" {
		s.Status = models.SubjectDraft
	}
	if s.Provider == "" {
		s.Provider = models.ProviderVercel
	}
	now := time.Now().UTC()

	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO apps (name, source_path, framework, status, live_url, provider, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Name, s.SourcePath, s.Framework, s.Status, s.LiveURL, s.Provider, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert app: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert app: %w", err)
	}

	s.ID = id
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

func (r *SubjectRepo) LoadSubject(ctx context.Context, id int64) (*models.Subject, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+subjectColumns+` FROM apps WHERE id = ?`, id)

	var s models.Subject
	err := row.Scan(&s.ID, &s.Name, &s.SourcePath, &s.Framework, &s.Status, &s.LiveURL, &s.Provider, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("app %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load app %d: %w", id, err)
	}
	return &s, nil
}

// SaveSubject writes back the mutable fields of s.
func (r *SubjectRepo) SaveSubject(ctx context.Context, s *models.Subject) error {
	s.UpdatedAt = time.Now().UTC()

	res, err := r.DB.ExecContext(ctx,
		`UPDATE apps SET name = ?, source_path = ?, framework = ?, status = ?, live_url = ?, provider = ?, updated_at = ?
		 WHERE id = ?`,
		s.Name, s.SourcePath, s.Framework, s.Status, s.LiveURL, s.Provider, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update app %d: %w", s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update app %d: %w", s.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("app %d: %w", s.ID, models.ErrNotFound)
	}
	return nil
}
