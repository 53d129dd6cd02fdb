package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

// Repository stores audit events in sequence order
type Repository interface {
	Append(ctx context.Context, event *models.AuditEvent) error
	GetLastEvent(ctx context.Context) (*models.AuditEvent, error)
	Query(ctx context.Context, query *models.AuditQuery) ([]*models.AuditEvent, int, error)
	GetEventRange(ctx context.Context, fromSeq, toSeq int64) ([]*models.AuditEvent, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS device_audit_events (
	id          UUID PRIMARY KEY,
	sequence    BIGINT NOT NULL UNIQUE,
	prev_hash   BYTEA,
	event_hash  BYTEA NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL,
	event_type  TEXT NOT NULL,
	severity    TEXT NOT NULL,
	device_id   TEXT NOT NULL,
	host        TEXT,
	device_type TEXT,
	session_id  UUID,
	action      TEXT,
	result      TEXT NOT NULL,
	details     JSONB,
	transport   TEXT,
	request_id  TEXT
);
CREATE INDEX IF NOT EXISTS idx_device_audit_events_device ON device_audit_events (device_id, sequence);
CREATE INDEX IF NOT EXISTS idx_device_audit_events_timestamp ON device_audit_events (timestamp);
`

const selectColumns = `id, sequence, prev_hash, event_hash, timestamp, event_type, severity,
	device_id, host, device_type, session_id, action, result, details, transport, request_id`

// PostgresRepository stores audit events in PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL audit repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the audit table when it does not exist
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}

// Append inserts a sealed event
func (r *PostgresRepository) Append(ctx context.Context, event *models.AuditEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO device_audit_events (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		event.ID,
		event.Sequence,
		event.PrevHash,
		event.EventHash,
		event.Timestamp,
		event.EventType,
		event.Severity,
		event.DeviceID,
		event.Host,
		event.DeviceType,
		event.SessionID,
		event.Action,
		event.Result,
		details,
		event.Transport,
		event.RequestID,
	)
	return err
}

// GetLastEvent returns the event with the highest sequence, or nil when the
// table is empty
func (r *PostgresRepository) GetLastEvent(ctx context.Context) (*models.AuditEvent, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM device_audit_events ORDER BY sequence DESC LIMIT 1`)
	event, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return event, err
}

// Query returns one page of matching events, newest first, and the total
// number of matches
func (r *PostgresRepository) Query(ctx context.Context, query *models.AuditQuery) ([]*models.AuditEvent, int, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	if query.From != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", argIndex))
		args = append(args, *query.From)
		argIndex++
	}
	if query.To != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp <= $%d", argIndex))
		args = append(args, *query.To)
		argIndex++
	}
	if query.DeviceID != "" {
		conditions = append(conditions, fmt.Sprintf("device_id = $%d", argIndex))
		args = append(args, query.DeviceID)
		argIndex++
	}
	if len(query.EventTypes) > 0 {
		types := make([]string, len(query.EventTypes))
		for i, t := range query.EventTypes {
			types[i] = string(t)
		}
		conditions = append(conditions, fmt.Sprintf("event_type = ANY($%d)", argIndex))
		args = append(args, types)
		argIndex++
	}
	if query.Result != "" {
		conditions = append(conditions, fmt.Sprintf("result = $%d", argIndex))
		args = append(args, query.Result)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM device_audit_events %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataQuery := fmt.Sprintf(`SELECT %s FROM device_audit_events %s ORDER BY sequence DESC LIMIT $%d OFFSET $%d`,
		selectColumns, whereClause, argIndex, argIndex+1)
	args = append(args, query.Limit, query.Offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	events, err := collectEvents(rows)
	return events, total, err
}

// GetEventRange returns events with fromSeq <= sequence <= toSeq in order
func (r *PostgresRepository) GetEventRange(ctx context.Context, fromSeq, toSeq int64) ([]*models.AuditEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM device_audit_events
		WHERE sequence >= $1 AND sequence <= $2
		ORDER BY sequence ASC
	`, fromSeq, toSeq)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]*models.AuditEvent, error) {
	defer rows.Close()

	events := make([]*models.AuditEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEvent(row pgx.Row) (*models.AuditEvent, error) {
	var event models.AuditEvent
	var detailsJSON []byte
	var host, deviceType, action, transport, requestID *string

	err := row.Scan(
		&event.ID,
		&event.Sequence,
		&event.PrevHash,
		&event.EventHash,
		&event.Timestamp,
		&event.EventType,
		&event.Severity,
		&event.DeviceID,
		&host,
		&deviceType,
		&event.SessionID,
		&action,
		&event.Result,
		&detailsJSON,
		&transport,
		&requestID,
	)
	if err != nil {
		return nil, err
	}

	event.Host = deref(host)
	event.DeviceType = deref(deviceType)
	event.Action = deref(action)
	event.Transport = deref(transport)
	event.RequestID = deref(requestID)
	// Hashes are computed over UTC nanoseconds
	event.Timestamp = event.Timestamp.UTC()

	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &event.Details); err != nil {
			return nil, fmt.Errorf("unmarshal audit details: %w", err)
		}
	}
	return &event, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// InMemoryRepository keeps audit events in process memory
type InMemoryRepository struct {
	mu     sync.RWMutex
	events []*models.AuditEvent
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// Append stores an event. Sequences must increase strictly.
func (r *InMemoryRepository) Append(ctx context.Context, event *models.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.events); n > 0 && r.events[n-1].Sequence >= event.Sequence {
		return fmt.Errorf("sequence %d already stored", event.Sequence)
	}
	r.events = append(r.events, event)
	return nil
}

// GetLastEvent returns the newest event or nil
func (r *InMemoryRepository) GetLastEvent(ctx context.Context) (*models.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.events) == 0 {
		return nil, nil
	}
	return r.events[len(r.events)-1], nil
}

// Query returns one page of matching events, newest first
func (r *InMemoryRepository) Query(ctx context.Context, query *models.AuditQuery) ([]*models.AuditEvent, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*models.AuditEvent, 0)
	for _, event := range r.events {
		if matchesQuery(event, query) {
			matched = append(matched, event)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Sequence > matched[j].Sequence })

	total := len(matched)
	start := int(query.Offset)
	if start > total {
		start = total
	}
	end := total
	if query.Limit > 0 && start+query.Limit < end {
		end = start + query.Limit
	}
	return matched[start:end], total, nil
}

// GetEventRange returns events with fromSeq <= sequence <= toSeq in order
func (r *InMemoryRepository) GetEventRange(ctx context.Context, fromSeq, toSeq int64) ([]*models.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]*models.AuditEvent, 0)
	for _, event := range r.events {
		if event.Sequence >= fromSeq && event.Sequence <= toSeq {
			events = append(events, event)
		}
	}
	return events, nil
}

func matchesQuery(event *models.AuditEvent, query *models.AuditQuery) bool {
	if query.From != nil && event.Timestamp.Before(*query.From) {
		return false
	}
	if query.To != nil && event.Timestamp.After(*query.To) {
		return false
	}
	if query.DeviceID != "" && event.DeviceID != query.DeviceID {
		return false
	}
	if query.Result != "" && event.Result != query.Result {
		return false
	}
	if len(query.EventTypes) > 0 {
		found := false
		for _, t := range query.EventTypes {
			if event.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
