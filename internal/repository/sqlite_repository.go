package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

// ErrDeviceNotFound is returned by GetDevice for an unknown uuid.
var ErrDeviceNotFound = errors.New("device not found")

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// every connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)
	repo := &SQLiteRepository{db: db}
	if err := repo.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS devices (
			uuid TEXT PRIMARY KEY,
			host TEXT,
			friendly_name TEXT,
			manufacturer TEXT,
			model_name TEXT,
			first_seen TEXT NOT NULL,
			last_seen TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS service_definitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_uuid TEXT NOT NULL REFERENCES devices(uuid) ON DELETE CASCADE,
			service_type TEXT NOT NULL,
			location TEXT NOT NULL,
			UNIQUE(device_uuid, service_type)
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sid TEXT,
			seq INTEGER NOT NULL,
			nt TEXT,
			nts TEXT,
			properties TEXT,
			body BLOB,
			remote_addr TEXT,
			received_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_sid ON events(sid);`,
	}
	for _, q := range queries {
		if _, err := r.db.Exec(q); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

// SaveDevice inserts or updates a device. First seen is kept from the first
// save, and the location of an already stored service type is never replaced.
// Empty descriptive fields do not overwrite stored ones.
func (r *SQLiteRepository) SaveDevice(device *model.DeviceRecord) error {
	if device == nil || device.UUID == "" {
		return fmt.Errorf("device uuid is required")
	}
	now := time.Now()
	firstSeen, lastSeen := device.FirstSeen, device.LastSeen
	if firstSeen.IsZero() {
		firstSeen = now
	}
	if lastSeen.IsZero() {
		lastSeen = now
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO devices (uuid, host, friendly_name, manufacturer, model_name, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			host = COALESCE(NULLIF(excluded.host, ''), devices.host),
			friendly_name = COALESCE(NULLIF(excluded.friendly_name, ''), devices.friendly_name),
			manufacturer = COALESCE(NULLIF(excluded.manufacturer, ''), devices.manufacturer),
			model_name = COALESCE(NULLIF(excluded.model_name, ''), devices.model_name),
			last_seen = excluded.last_seen;`,
		device.UUID,
		device.Host,
		device.FriendlyName,
		device.Manufacturer,
		device.ModelName,
		firstSeen.Format(time.RFC3339Nano),
		lastSeen.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save device %s: %w", device.UUID, err)
	}

	for _, def := range device.Services {
		_, err := tx.Exec(
			`INSERT INTO service_definitions (device_uuid, service_type, location) VALUES (?, ?, ?);`,
			device.UUID, def.ServiceType, def.Location,
		)
		if err != nil {
			var sqliteErr sqlite3.Error
			if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
				continue // service type already known for this device
			}
			return fmt.Errorf("failed to save service %s: %w", def.ServiceType, err)
		}
	}
	return tx.Commit()
}

// GetDevice returns a device with its service definitions.
func (r *SQLiteRepository) GetDevice(uuid string) (*model.DeviceRecord, error) {
	row := r.db.QueryRow(`SELECT uuid, host, friendly_name, manufacturer, model_name, first_seen, last_seen
		FROM devices WHERE uuid = ?`, uuid)
	device, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, uuid)
	}
	if err != nil {
		return nil, err
	}
	if device.Services, err = r.ServiceDefinitions(uuid); err != nil {
		return nil, err
	}
	return device, nil
}

// Devices returns every stored device ordered by first sighting.
func (r *SQLiteRepository) Devices() ([]*model.DeviceRecord, error) {
	rows, err := r.db.Query(`SELECT uuid, host, friendly_name, manufacturer, model_name, first_seen, last_seen
		FROM devices ORDER BY first_seen, uuid`)
	if err != nil {
		return nil, err
	}
	var devices []*model.DeviceRecord
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, device := range devices {
		if device.Services, err = r.ServiceDefinitions(device.UUID); err != nil {
			return nil, err
		}
	}
	return devices, nil
}

// ServiceDefinitions returns the service definitions of a device in the order
// they were first stored.
func (r *SQLiteRepository) ServiceDefinitions(uuid string) ([]model.ServiceDefinition, error) {
	rows, err := r.db.Query(`SELECT service_type, location FROM service_definitions
		WHERE device_uuid = ? ORDER BY id`, uuid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []model.ServiceDefinition
	for rows.Next() {
		var def model.ServiceDefinition
		if err := rows.Scan(&def.ServiceType, &def.Location); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// AddEvent stores a received notification.
func (r *SQLiteRepository) AddEvent(n model.Notification) error {
	properties, err := json.Marshal(n.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}
	receivedAt := n.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	_, err = r.db.Exec(
		`INSERT INTO events (sid, seq, nt, nts, properties, body, remote_addr, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
		n.SID,
		n.Seq,
		n.NT,
		n.NTS,
		string(properties),
		n.Body,
		n.RemoteAddr,
		receivedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Events returns stored notifications oldest first. With a limit only the
// most recent matching events are returned.
func (r *SQLiteRepository) Events(filter EventFilter) ([]model.Notification, error) {
	query := `SELECT sid, seq, nt, nts, properties, body, remote_addr, received_at FROM events`
	var (
		conditions []string
		params     []interface{}
	)
	if filter.SID != "" {
		conditions = append(conditions, "sid = ?")
		params = append(params, filter.SID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		params = append(params, filter.Limit)
	}

	rows, err := r.db.Query(query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Notification
	for rows.Next() {
		var (
			n                        model.Notification
			sid, nt, nts, remoteAddr sql.NullString
			properties               sql.NullString
			receivedAt               string
		)
		if err := rows.Scan(&sid, &n.Seq, &nt, &nts, &properties, &n.Body, &remoteAddr, &receivedAt); err != nil {
			return nil, err
		}
		n.SID, n.NT, n.NTS, n.RemoteAddr = sid.String, nt.String, nts.String, remoteAddr.String
		n.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt)
		if properties.Valid && properties.String != "" && properties.String != "null" {
			if err := json.Unmarshal([]byte(properties.String), &n.Properties); err != nil {
				log.Warn().Err(err).Str("sid", n.SID).Msg("Failed to decode stored event properties")
			}
		}
		events = append(events, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(s scanner) (*model.DeviceRecord, error) {
	var (
		device                                      model.DeviceRecord
		host, friendlyName, manufacturer, modelName sql.NullString
		firstSeen, lastSeen                         string
	)
	if err := s.Scan(&device.UUID, &host, &friendlyName, &manufacturer, &modelName, &firstSeen, &lastSeen); err != nil {
		return nil, err
	}
	device.Host = host.String
	device.FriendlyName = friendlyName.String
	device.Manufacturer = manufacturer.String
	device.ModelName = modelName.String
	device.FirstSeen, _ = time.Parse(time.RFC3339Nano, firstSeen)
	device.LastSeen, _ = time.Parse(time.RFC3339Nano, lastSeen)
	return &device, nil
}
