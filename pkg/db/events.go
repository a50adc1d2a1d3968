package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mfreeman451/lineradar/pkg/models"
)

// SaveDowntime inserts or updates a downtime event.
func (db *DB) SaveDowntime(ctx context.Context, d models.DowntimeEvent) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("%w downtime: %w", errFailedToEncode, err)
	}

	var end sql.NullTime
	if d.End != nil {
		end = sql.NullTime{Time: *d.End, Valid: true}
	}

	if _, err := db.ExecContext(ctx, db.rebind(`
		INSERT INTO downtime_events (id, equipment_code, category, start_time, end_time, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			category = excluded.category,
			end_time = excluded.end_time,
			data = excluded.data`),
		d.ID, d.EquipmentCode, string(d.Category), d.Start, end, string(data)); err != nil {
		return fmt.Errorf("%w downtime: %w", errFailedToInsert, err)
	}

	return nil
}

// OpenDowntime returns the open downtime of an equipment, or nil.
func (db *DB) OpenDowntime(ctx context.Context, equipmentCode string) (*models.DowntimeEvent, error) {
	var data string

	err := db.QueryRowContext(ctx, db.rebind(`
		SELECT data FROM downtime_events
		WHERE equipment_code = ? AND end_time IS NULL
		ORDER BY start_time DESC
		LIMIT 1`), equipmentCode).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w downtime: %w", errFailedToQuery, err)
	}

	var d models.DowntimeEvent
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return nil, fmt.Errorf("%w downtime: %w", errFailedToScan, err)
	}

	return &d, nil
}

// SaveAndon inserts or updates an andon event.
func (db *DB) SaveAndon(ctx context.Context, ev *models.AndonEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w andon: %w", errFailedToEncode, err)
	}

	if _, err := db.ExecContext(ctx, db.rebind(`
		INSERT INTO andon_events (id, equipment_code, status, priority, created_at, updated_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at,
			data = excluded.data`),
		ev.ID, ev.EquipmentCode, string(ev.Status), string(ev.Priority), ev.CreatedAt, ev.UpdatedAt, string(data)); err != nil {
		return fmt.Errorf("%w andon: %w", errFailedToInsert, err)
	}

	return nil
}

// GetAndon returns nil, nil for an unknown id.
func (db *DB) GetAndon(ctx context.Context, id string) (*models.AndonEvent, error) {
	var data string

	err := db.QueryRowContext(ctx, db.rebind(`SELECT data FROM andon_events WHERE id = ?`), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w andon: %w", errFailedToQuery, err)
	}

	var ev models.AndonEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return nil, fmt.Errorf("%w andon: %w", errFailedToScan, err)
	}

	return &ev, nil
}

// ListActiveAndons returns the events not yet resolved or cancelled, oldest first.
func (db *DB) ListActiveAndons(ctx context.Context) ([]models.AndonEvent, error) {
	rows, err := db.QueryContext(ctx, db.rebind(`
		SELECT data FROM andon_events
		WHERE status NOT IN (?, ?)
		ORDER BY created_at, id`),
		string(models.AndonResolved), string(models.AndonCancelled))
	if err != nil {
		return nil, fmt.Errorf("%w andons: %w", errFailedToQuery, err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.AndonEvent

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("%w andon: %w", errFailedToScan, err)
		}

		var ev models.AndonEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("%w andon: %w", errFailedToScan, err)
		}

		out = append(out, ev)
	}

	return out, rows.Err()
}
