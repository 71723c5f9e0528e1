package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jonathan/outreach-agent/internal/types"
)

const seedAgentState = `INSERT INTO agent_state (id, status, updated_by) VALUES (1, $1, $2) ON CONFLICT (id) DO NOTHING`

// GetAgentState returns the agent state, initializing it to running on first use.
func (db *DB) GetAgentState(ctx context.Context) (types.AgentState, error) {
	def := types.DefaultAgentState()
	if _, err := db.pool.Exec(ctx, seedAgentState, string(def.Status), string(def.UpdatedBy)); err != nil {
		return types.AgentState{}, fmt.Errorf("failed to initialize agent state: %w", err)
	}

	var (
		state            types.AgentState
		status, updateBy string
	)
	err := db.pool.QueryRow(ctx, `SELECT status, updated_by, updated_at FROM agent_state WHERE id = 1`).
		Scan(&status, &updateBy, &state.UpdatedAt)
	if err != nil {
		return types.AgentState{}, fmt.Errorf("failed to read agent state: %w", err)
	}
	state.Status = types.AgentStatus(status)
	state.UpdatedBy = types.Actor(updateBy)
	return state, nil
}

// SetAgentStatus changes the agent status and records ev when the status actually
// changes. It reports whether a change happened.
func (db *DB) SetAgentStatus(ctx context.Context, status types.AgentStatus, actor types.Actor, ev *types.ActivityEvent) (bool, error) {
	changed := false
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		def := types.DefaultAgentState()
		if _, err := tx.Exec(ctx, seedAgentState, string(def.Status), string(def.UpdatedBy)); err != nil {
			return fmt.Errorf("failed to initialize agent state: %w", err)
		}

		var current string
		if err := tx.QueryRow(ctx, `SELECT status FROM agent_state WHERE id = 1 FOR UPDATE`).Scan(&current); err != nil {
			return fmt.Errorf("failed to lock agent state: %w", err)
		}
		if types.AgentStatus(current) == status {
			return nil
		}

		if _, err := tx.Exec(ctx,
			`UPDATE agent_state SET status = $1, updated_by = $2, updated_at = NOW() WHERE id = 1`,
			string(status), string(actor)); err != nil {
			return fmt.Errorf("failed to update agent state: %w", err)
		}
		if err := insertActivity(ctx, tx, ev); err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}
