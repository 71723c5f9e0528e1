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

const campaignColumns = `id, prospect_id, vendor_id, name, description, status, contract_address, activated_at, created_at, updated_at`

func scanCampaign(row pgx.Row) (*types.Campaign, error) {
	var (
		c      types.Campaign
		status string
	)
	if err := row.Scan(&c.ID, &c.ProspectID, &c.VendorID, &c.Name, &c.Description, &status,
		&c.ContractAddress, &c.ActivatedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = types.CampaignStatus(status)
	return &c, nil
}

func collectCampaign(row pgx.CollectableRow) (types.Campaign, error) {
	c, err := scanCampaign(row)
	if err != nil {
		return types.Campaign{}, err
	}
	return *c, nil
}

// CreateCampaign inserts a campaign. The ID and timestamps are filled in.
func (db *DB) CreateCampaign(ctx context.Context, c *types.Campaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = types.CampaignDraft
	}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO campaigns (id, prospect_id, vendor_id, name, description, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		c.ID, c.ProspectID, c.VendorID, c.Name, c.Description, string(c.Status),
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetCampaign returns a campaign by ID.
func (db *DB) GetCampaign(ctx context.Context, id uuid.UUID) (*types.Campaign, error) {
	c, err := scanCampaign(db.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperrors.NotFoundError{Entity: "campaign", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return c, nil
}

// ListCampaigns returns campaigns ordered by most recently updated.
func (db *DB) ListCampaigns(ctx context.Context, filter types.CampaignFilter) ([]types.Campaign, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ProspectID != nil {
		args = append(args, *filter.ProspectID)
		conds = append(conds, fmt.Sprintf("prospect_id = $%d", len(args)))
	}
	query := `SELECT ` + campaignColumns + ` FROM campaigns`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, clampLimit(filter.Limit, 100, 1000))
	query += fmt.Sprintf(" ORDER BY updated_at DESC, id LIMIT $%d", len(args))

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	campaigns, err := pgx.CollectRows(rows, collectCampaign)
	if err != nil {
		return nil, fmt.Errorf("failed to scan campaigns: %w", err)
	}
	return campaigns, nil
}

// ClaimCampaignActivation moves a draft or suggested campaign to activating and
// returns it as it was before the claim. Any other status is a conflict.
func (db *DB) ClaimCampaignActivation(ctx context.Context, id uuid.UUID) (*types.Campaign, error) {
	var before *types.Campaign
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		c, err := scanCampaign(tx.QueryRow(ctx,
			`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return &apperrors.NotFoundError{Entity: "campaign", ID: id.String()}
		}
		if err != nil {
			return fmt.Errorf("failed to lock campaign: %w", err)
		}
		if !c.Status.CanActivate() {
			return &apperrors.ConflictError{Message: fmt.Sprintf("campaign %s is %s and cannot be activated", id, c.Status)}
		}
		if _, err := tx.Exec(ctx,
			`UPDATE campaigns SET status = $1, updated_at = NOW() WHERE id = $2`,
			string(types.CampaignActivating), id); err != nil {
			return fmt.Errorf("failed to claim campaign activation: %w", err)
		}
		before = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return before, nil
}

// CompleteCampaignActivation marks an activating campaign active and records ev
// in the same transaction.
func (db *DB) CompleteCampaignActivation(
	ctx context.Context,
	id uuid.UUID,
	contractAddress *string,
	ev *types.ActivityEvent,
) (*types.Campaign, error) {
	var activated *types.Campaign
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		c, err := scanCampaign(tx.QueryRow(ctx,
			`UPDATE campaigns
			 SET status = $1, contract_address = $2, activated_at = NOW(), updated_at = NOW()
			 WHERE id = $3 AND status = $4
			 RETURNING `+campaignColumns,
			string(types.CampaignActive), contractAddress, id, string(types.CampaignActivating)))
		if errors.Is(err, pgx.ErrNoRows) {
			return &apperrors.ConflictError{Message: fmt.Sprintf("campaign %s is not being activated", id)}
		}
		if err != nil {
			return fmt.Errorf("failed to activate campaign: %w", err)
		}
		if err := insertActivity(ctx, tx, ev); err != nil {
			return err
		}
		activated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return activated, nil
}

// ReleaseCampaignActivation returns an activating campaign to its prior status.
func (db *DB) ReleaseCampaignActivation(ctx context.Context, id uuid.UUID, prior types.CampaignStatus) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE campaigns SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		string(prior), id, string(types.CampaignActivating))
	if err != nil {
		return fmt.Errorf("failed to release campaign activation: %w", err)
	}
	return nil
}

// CreateOrder places an order against an active campaign and records ev with it.
func (db *DB) CreateOrder(ctx context.Context, o *types.Order, ev *types.ActivityEvent) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return db.inTx(ctx, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM campaigns WHERE id = $1 FOR SHARE`, o.CampaignID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return &apperrors.NotFoundError{Entity: "campaign", ID: o.CampaignID.String()}
		}
		if err != nil {
			return fmt.Errorf("failed to lock campaign: %w", err)
		}
		if types.CampaignStatus(status) != types.CampaignActive {
			return &apperrors.ConflictError{Message: fmt.Sprintf("campaign %s is %s, orders require an active campaign", o.CampaignID, status)}
		}

		if o.Status == "" {
			o.Status = types.OrderPlaced
		}
		if err := tx.QueryRow(ctx,
			`INSERT INTO orders (id, campaign_id, sku, quantity, payer, status)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING created_at`,
			o.ID, o.CampaignID, o.SKU, o.Quantity, o.Payer, o.Status,
		).Scan(&o.CreatedAt); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		return insertActivity(ctx, tx, ev)
	})
}
