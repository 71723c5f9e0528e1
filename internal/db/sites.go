package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/outreach-agent/internal/apperrors"
	"github.com/jonathan/outreach-agent/internal/types"
)

const siteColumns = `id, prospect_id, status, url, headline, body, error, created_at, updated_at`

func collectSite(row pgx.CollectableRow) (types.GeneratedSite, error) {
	var (
		s      types.GeneratedSite
		status string
	)
	err := row.Scan(&s.ID, &s.ProspectID, &status, &s.URL, &s.Headline, &s.Body, &s.Error, &s.CreatedAt, &s.UpdatedAt)
	s.Status = types.SiteStatus(status)
	return s, err
}

// CreateSite inserts a pending site for a prospect.
func (db *DB) CreateSite(ctx context.Context, prospectID uuid.UUID) (*types.GeneratedSite, error) {
	s := &types.GeneratedSite{ID: uuid.New(), ProspectID: prospectID, Status: types.SitePending}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO generated_sites (id, prospect_id, status) VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		s.ID, prospectID, string(types.SitePending),
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create site: %w", err)
	}
	return s, nil
}

// CompleteSite writes the generated content and marks a pending site ready.
func (db *DB) CompleteSite(ctx context.Context, id uuid.UUID, content types.SiteContent) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE generated_sites
		 SET status = $1, url = $2, headline = $3, body = $4, updated_at = NOW()
		 WHERE id = $5 AND status = $6`,
		string(types.SiteReady), content.URL, content.Headline, content.Body, id, string(types.SitePending))
	if err != nil {
		return fmt.Errorf("failed to complete site: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &apperrors.ConflictError{Message: fmt.Sprintf("site %s is not pending", id)}
	}
	return nil
}

// FailSite marks a pending site failed.
func (db *DB) FailSite(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE generated_sites SET status = $1, error = $2, updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		string(types.SiteFailed), reason, id, string(types.SitePending))
	if err != nil {
		return fmt.Errorf("failed to mark site failed: %w", err)
	}
	return nil
}

// ListSites returns a prospect's sites, newest first.
func (db *DB) ListSites(ctx context.Context, prospectID uuid.UUID) ([]types.GeneratedSite, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+siteColumns+` FROM generated_sites WHERE prospect_id = $1 ORDER BY created_at DESC, id`,
		prospectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	sites, err := pgx.CollectRows(rows, collectSite)
	if err != nil {
		return nil, fmt.Errorf("failed to scan sites: %w", err)
	}
	return sites, nil
}
