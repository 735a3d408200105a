package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository defines the persistence operations behind a Registry.
type Repository interface {
	// ListDevices returns every device ordered by name.
	ListDevices(ctx context.Context) ([]Device, error)

	// CreateDevice inserts a device.
	CreateDevice(ctx context.Context, d *Device) error

	// UpdateDevice overwrites the mutable fields of an existing device.
	// Returns ErrDeviceNotFound if the device does not exist.
	UpdateDevice(ctx context.Context, d *Device) error

	// DeleteDevice removes a device and, by cascade, its entities.
	DeleteDevice(ctx context.Context, id string) error

	// ListEntities returns every registered entity.
	ListEntities(ctx context.Context) ([]Entity, error)

	// CreateEntity inserts an entity.
	CreateEntity(ctx context.Context, e *Entity) error

	// DeleteEntity removes an entity by entity id.
	// Returns ErrEntityNotFound if it does not exist.
	DeleteEntity(ctx context.Context, entityID string) error

	// InsertClick records a click event and sets its ID.
	InsertClick(ctx context.Context, ev *ClickEvent) error

	// ListClicks returns the newest click events of a device, newest first.
	ListClicks(ctx context.Context, deviceID string, limit int) ([]ClickEvent, error)

	// PruneClicks keeps only the newest keep events of a device.
	PruneClicks(ctx context.Context, deviceID string, keep int) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, config_entry_id, mac, host, name, model, manufacturer, sw_version, created_at, updated_at`

// ListDevices returns every device ordered by name.
func (r *SQLiteRepository) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var (
			d                Device
			created, updated string
		)
		if err := rows.Scan(&d.ID, &d.ConfigEntryID, &d.MAC, &d.Host, &d.Name, &d.Model,
			&d.Manufacturer, &d.SWVersion, &created, &updated); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		d.CreatedAt = parseTime(created)
		d.UpdatedAt = parseTime(updated)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// CreateDevice inserts a device.
func (r *SQLiteRepository) CreateDevice(ctx context.Context, d *Device) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ConfigEntryID, d.MAC, d.Host, d.Name, d.Model, d.Manufacturer, d.SWVersion,
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// UpdateDevice overwrites the mutable fields of an existing device.
func (r *SQLiteRepository) UpdateDevice(ctx context.Context, d *Device) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET config_entry_id = ?, mac = ?, host = ?, name = ?, model = ?,
			manufacturer = ?, sw_version = ?, updated_at = ?
		WHERE id = ?`,
		d.ConfigEntryID, d.MAC, d.Host, d.Name, d.Model, d.Manufacturer, d.SWVersion,
		formatTime(d.UpdatedAt), d.ID)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	return requireRow(res, ErrDeviceNotFound)
}

// DeleteDevice removes a device and its entities.
func (r *SQLiteRepository) DeleteDevice(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireRow(res, ErrDeviceNotFound)
}

// ListEntities returns every registered entity.
func (r *SQLiteRepository) ListEntities(ctx context.Context) ([]Entity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_id, unique_id, domain, platform, device_id, name, disabled_by_default, created_at
		FROM entities
		ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var (
			e        Entity
			deviceID sql.NullString
			disabled int
			created  string
		)
		if err := rows.Scan(&e.EntityID, &e.UniqueID, &e.Domain, &e.Platform, &deviceID,
			&e.Name, &disabled, &created); err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		e.DeviceID = deviceID.String
		e.DisabledByDefault = disabled != 0
		e.CreatedAt = parseTime(created)
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}
	return entities, nil
}

// CreateEntity inserts an entity.
func (r *SQLiteRepository) CreateEntity(ctx context.Context, e *Entity) error {
	var deviceID any
	if e.DeviceID != "" {
		deviceID = e.DeviceID
	}
	disabled := 0
	if e.DisabledByDefault {
		disabled = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entities (entity_id, unique_id, domain, platform, device_id, name, disabled_by_default, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EntityID, e.UniqueID, e.Domain, e.Platform, deviceID, e.Name, disabled, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting entity: %w", err)
	}
	return nil
}

// DeleteEntity removes an entity by entity id.
func (r *SQLiteRepository) DeleteEntity(ctx context.Context, entityID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entities WHERE entity_id = ?`, entityID)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	return requireRow(res, ErrEntityNotFound)
}

// InsertClick records a click event.
func (r *SQLiteRepository) InsertClick(ctx context.Context, ev *ClickEvent) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO click_events (device_id, channel, click_type, fired_at)
		VALUES (?, ?, ?, ?)`,
		ev.DeviceID, ev.Channel, ev.ClickType, formatTime(ev.FiredAt))
	if err != nil {
		return fmt.Errorf("inserting click event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading click event id: %w", err)
	}
	ev.ID = id
	return nil
}

// ListClicks returns the newest click events of a device, newest first.
func (r *SQLiteRepository) ListClicks(ctx context.Context, deviceID string, limit int) ([]ClickEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, channel, click_type, fired_at
		FROM click_events
		WHERE device_id = ?
		ORDER BY id DESC
		LIMIT ?`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying click events: %w", err)
	}
	defer rows.Close()

	var events []ClickEvent
	for rows.Next() {
		var (
			ev    ClickEvent
			fired string
		)
		if err := rows.Scan(&ev.ID, &ev.DeviceID, &ev.Channel, &ev.ClickType, &fired); err != nil {
			return nil, fmt.Errorf("scanning click event: %w", err)
		}
		ev.FiredAt = parseTime(fired)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating click events: %w", err)
	}
	return events, nil
}

// PruneClicks keeps only the newest keep events of a device.
func (r *SQLiteRepository) PruneClicks(ctx context.Context, deviceID string, keep int) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM click_events
		WHERE device_id = ? AND id NOT IN (
			SELECT id FROM click_events WHERE device_id = ? ORDER BY id DESC LIMIT ?
		)`, deviceID, deviceID, keep)
	if err != nil {
		return fmt.Errorf("pruning click events: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

var _ Repository = (*SQLiteRepository)(nil)
