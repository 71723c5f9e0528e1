package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/outreach-agent/internal/apperrors"
	"github.com/jonathan/outreach-agent/internal/types"
)

const prospectColumns = `id, vendor_id, name, stage, prospect_type, contact_email, contact_phone, website, created_at, updated_at`

func scanProspect(row pgx.Row) (*types.Prospect, error) {
	var (
		p            types.Prospect
		stage, pType string
	)
	if err := row.Scan(&p.ID, &p.VendorID, &p.Name, &stage, &pType,
		&p.ContactEmail, &p.ContactPhone, &p.Website, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Stage = types.Stage(stage)
	p.Type = types.ProspectType(pType)
	return &p, nil
}

func collectProspect(row pgx.CollectableRow) (types.Prospect, error) {
	p, err := scanProspect(row)
	if err != nil {
		return types.Prospect{}, err
	}
	return *p, nil
}

// GetProspect returns a prospect by ID.
func (db *DB) GetProspect(ctx context.Context, id uuid.UUID) (*types.Prospect, error) {
	p, err := scanProspect(db.pool.QueryRow(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperrors.NotFoundError{Entity: "prospect", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prospect: %w", err)
	}
	return p, nil
}

// ListProspects returns prospects ordered by most recently updated.
func (db *DB) ListProspects(ctx context.Context, filter types.ProspectFilter) ([]types.Prospect, error) {
	query := `SELECT ` + prospectColumns + ` FROM prospects`
	var args []any
	if filter.Stage != "" {
		args = append(args, string(filter.Stage))
		query += " WHERE stage = $1"
	}
	args = append(args, clampLimit(filter.Limit, 100, 1000))
	query += fmt.Sprintf(" ORDER BY updated_at DESC, id LIMIT $%d", len(args))

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list prospects: %w", err)
	}
	prospects, err := pgx.CollectRows(rows, collectProspect)
	if err != nil {
		return nil, fmt.Errorf("failed to scan prospects: %w", err)
	}
	return prospects, nil
}

// TransitionProspect locks the prospect row, lets apply decide the new stage and
// build the activity event, then writes both in the same transaction.
// An error from apply aborts the transaction and is returned unchanged.
func (db *DB) TransitionProspect(
	ctx context.Context,
	id uuid.UUID,
	apply func(p *types.Prospect) (*types.ActivityEvent, error),
) (*types.Prospect, error) {
	var updated *types.Prospect
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		p, err := scanProspect(tx.QueryRow(ctx,
			`SELECT `+prospectColumns+` FROM prospects WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return &apperrors.NotFoundError{Entity: "prospect", ID: id.String()}
		}
		if err != nil {
			return fmt.Errorf("failed to lock prospect: %w", err)
		}

		ev, err := apply(p)
		if err != nil {
			return err
		}

		if err := tx.QueryRow(ctx,
			`UPDATE prospects SET stage = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at`,
			string(p.Stage), id,
		).Scan(&p.UpdatedAt); err != nil {
			return fmt.Errorf("failed to update prospect stage: %w", err)
		}

		if err := insertActivity(ctx, tx, ev); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetOrCreateProspect returns the prospect for rec.VendorID, creating it in the
// new stage if absent. onCreate builds the event recorded with a creation.
func (db *DB) GetOrCreateProspect(
	ctx context.Context,
	rec types.VendorRecord,
	onCreate func(p *types.Prospect) *types.ActivityEvent,
) (*types.Prospect, bool, error) {
	var (
		result  *types.Prospect
		created bool
	)
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		pType := rec.Type
		if pType == "" {
			pType = types.ProspectVendor
		}
		p, err := scanProspect(tx.QueryRow(ctx,
			`INSERT INTO prospects (id, vendor_id, name, stage, prospect_type, contact_email, contact_phone, website)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (vendor_id) DO NOTHING
			 RETURNING `+prospectColumns,
			uuid.New(), rec.VendorID, rec.Name, string(types.StageNew), string(pType),
			rec.ContactEmail, rec.ContactPhone, rec.Website,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			existing, err := scanProspect(tx.QueryRow(ctx,
				`SELECT `+prospectColumns+` FROM prospects WHERE vendor_id = $1`, rec.VendorID))
			if err != nil {
				return fmt.Errorf("failed to load existing prospect: %w", err)
			}
			result = existing
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to create prospect: %w", err)
		}

		if onCreate != nil {
			if err := insertActivity(ctx, tx, onCreate(p)); err != nil {
				return err
			}
		}
		result, created = p, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

// EligibleProspects returns a deterministic, bounded batch of prospects
// matching any of the query's criteria.
func (db *DB) EligibleProspects(ctx context.Context, q types.EligibilityQuery) ([]types.Prospect, error) {
	if len(q.Criteria) == 0 || q.Limit <= 0 {
		return nil, nil
	}

	var (
		conds []string
		args  []any
	)
	for _, c := range q.Criteria {
		args = append(args, string(c.Stage))
		cond := fmt.Sprintf("stage = $%d", len(args))
		if !c.UpdatedBefore.IsZero() {
			args = append(args, c.UpdatedBefore.UTC())
			cond += fmt.Sprintf(" AND updated_at <= $%d", len(args))
		}
		conds = append(conds, "("+cond+")")
	}

	order := make([]string, len(types.Stages))
	for i, st := range types.Stages {
		order[i] = string(st)
	}
	args = append(args, order)
	orderArg := len(args)
	args = append(args, q.Limit)

	query := fmt.Sprintf(`SELECT %s FROM prospects
		WHERE %s
		ORDER BY array_position($%d::text[], stage), updated_at, id
		LIMIT $%d`,
		prospectColumns, strings.Join(conds, " OR "), orderArg, len(args))

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select eligible prospects: %w", err)
	}
	prospects, err := pgx.CollectRows(rows, collectProspect)
	if err != nil {
		return nil, fmt.Errorf("failed to scan eligible prospects: %w", err)
	}
	return prospects, nil
}
