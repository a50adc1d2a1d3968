package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mfreeman451/lineradar/pkg/models"
)

func (db *DB) LoadContexts(ctx context.Context) ([]models.ProductionContext, error) {
	rows, err := db.QueryContext(ctx, `SELECT data FROM production_context ORDER BY equipment_code`)
	if err != nil {
		return nil, fmt.Errorf("%w contexts: %w", errFailedToQuery, err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.ProductionContext

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("%w context: %w", errFailedToScan, err)
		}

		var pc models.ProductionContext
		if err := json.Unmarshal([]byte(data), &pc); err != nil {
			return nil, fmt.Errorf("%w context: %w", errFailedToScan, err)
		}

		out = append(out, pc)
	}

	return out, rows.Err()
}

// GetContext returns models.ErrNotFound when no row exists.
func (db *DB) GetContext(ctx context.Context, equipmentCode string) (models.ProductionContext, error) {
	var data string

	err := db.QueryRowContext(ctx, db.rebind(`SELECT data FROM production_context WHERE equipment_code = ?`),
		equipmentCode).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ProductionContext{}, fmt.Errorf("%w: context %s", models.ErrNotFound, equipmentCode)
	}

	if err != nil {
		return models.ProductionContext{}, fmt.Errorf("%w context: %w", errFailedToQuery, err)
	}

	var pc models.ProductionContext
	if err := json.Unmarshal([]byte(data), &pc); err != nil {
		return models.ProductionContext{}, fmt.Errorf("%w context: %w", errFailedToScan, err)
	}

	return pc, nil
}

// SaveContext writes next if the stored version still equals
// expectedVersion and appends entry to the history in the same transaction.
func (db *DB) SaveContext(ctx context.Context, next models.ProductionContext, expectedVersion int64,
	entry models.ContextHistory) (err error) {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("%w context: %w", errFailedToEncode, err)
	}

	snapshot, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return fmt.Errorf("%w history: %w", errFailedToEncode, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToBeginTx, err)
	}
	defer func() { db.rollbackOnError(tx, err) }()

	var res sql.Result

	if expectedVersion == 0 {
		res, err = tx.ExecContext(ctx, db.rebind(`
			INSERT INTO production_context (equipment_code, version, data, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (equipment_code) DO NOTHING`),
			next.EquipmentCode, next.Version, string(data), next.UpdatedAt)
	} else {
		res, err = tx.ExecContext(ctx, db.rebind(`
			UPDATE production_context
			SET version = ?, data = ?, updated_at = ?
			WHERE equipment_code = ? AND version = ?`),
			next.Version, string(data), next.UpdatedAt, next.EquipmentCode, expectedVersion)
	}

	if err != nil {
		return fmt.Errorf("%w context: %w", errFailedToInsert, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if n == 0 {
		err = fmt.Errorf("%w: %s expected version %d", models.ErrVersionConflict, next.EquipmentCode, expectedVersion)
		return err
	}

	if _, err = tx.ExecContext(ctx, db.rebind(`
		INSERT INTO production_context_history (equipment_code, version, reason, source, snapshot, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		entry.EquipmentCode, entry.Version, entry.Reason, entry.Source, string(snapshot), entry.RecordedAt); err != nil {
		return fmt.Errorf("%w history: %w", errFailedToInsert, err)
	}

	return tx.Commit()
}

// ListHistory returns the newest entries first.
func (db *DB) ListHistory(ctx context.Context, equipmentCode string, limit int) ([]models.ContextHistory, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.QueryContext(ctx, db.rebind(`
		SELECT id, equipment_code, version, reason, source, snapshot, recorded_at
		FROM production_context_history
		WHERE equipment_code = ?
		ORDER BY id DESC
		LIMIT ?`), equipmentCode, limit)
	if err != nil {
		return nil, fmt.Errorf("%w history: %w", errFailedToQuery, err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.ContextHistory

	for rows.Next() {
		var (
			h        models.ContextHistory
			snapshot string
		)

		if err := rows.Scan(&h.ID, &h.EquipmentCode, &h.Version, &h.Reason, &h.Source, &snapshot, &h.RecordedAt); err != nil {
			return nil, fmt.Errorf("%w history: %w", errFailedToScan, err)
		}

		if err := json.Unmarshal([]byte(snapshot), &h.Snapshot); err != nil {
			return nil, fmt.Errorf("%w history: %w", errFailedToScan, err)
		}

		out = append(out, h)
	}

	return out, rows.Err()
}
