package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/threattrace/threattrace/internal/database"
	"github.com/threattrace/threattrace/internal/model"
)

// AuditRepository handles security audit trail persistence. The table is
// append-only: nothing in the application updates or deletes rows, and the
// BIGSERIAL seq column defines the chain's total order.
type AuditRepository struct {
	db *database.Postgres
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *database.Postgres) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditColumns = `seq, event_id, timestamp, action, status, severity, source,
	target, user_id, role, ip, user_agent, details, prev_hash, event_hash`

// Insert appends a new audit event and fills in its assigned seq
func (r *AuditRepository) Insert(ctx context.Context, e *model.AuditEvent) error {
	detailsJSON, err := json.Marshal(e.Details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	query := `
		INSERT INTO audit_events (event_id, timestamp, action, status, severity, source,
		    target, user_id, role, ip, user_agent, details, prev_hash, event_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING seq
	`
	err = r.db.QueryRowContext(ctx, query,
		e.EventID,
		e.Timestamp,
		e.Action,
		e.Status,
		e.Severity,
		e.Source,
		e.Target,
		e.UserID,
		e.Role,
		e.IP,
		e.UserAgent,
		detailsJSON,
		e.PrevHash,
		e.EventHash,
	).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Latest returns the most recently appended event, or ErrNotFound for an
// empty ledger. The caller reads its event_hash as the next prev_hash.
func (r *AuditRepository) Latest(ctx context.Context) (*model.AuditEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM audit_events ORDER BY seq DESC LIMIT 1`, auditColumns)
	return r.scanEvent(r.db.QueryRowContext(ctx, query))
}

// CountFilter selects the events a pattern check counts inside its window
type CountFilter struct {
	Actions []string
	Status  string
	IP      string
	UserID  string
	Since   time.Time
}

// Count returns the number of events matching f. Pattern checks run this
// fresh on every evaluation; correctness rests on the persisted ledger, not
// on in-memory counters.
func (r *AuditRepository) Count(ctx context.Context, f CountFilter) (int, error) {
	if len(f.Actions) == 0 {
		return 0, fmt.Errorf("%w: count filter needs at least one action", ErrInvalidInput)
	}

	conds := []string{"action = ANY($1)", "timestamp >= $2"}
	args := []interface{}{pq.Array(f.Actions), f.Since}

	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.IP != "" {
		args = append(args, f.IP)
		conds = append(conds, fmt.Sprintf("ip = $%d", len(args)))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}

	query := "SELECT COUNT(*) FROM audit_events WHERE " + strings.Join(conds, " AND ")

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

// ListFilter narrows and pages audit trail retrieval
type ListFilter struct {
	Action  string
	Status  string
	UserID  string
	IP      string
	From    *time.Time
	To      *time.Time
	Page    int
	PerPage int
}

// List returns events newest-first with the total match count for pagination
func (r *AuditRepository) List(ctx context.Context, f ListFilter) ([]model.AuditEvent, int, error) {
	conds := []string{"TRUE"}
	args := []interface{}{}

	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.IP != "" {
		add("ip = $%d", f.IP)
	}
	if f.From != nil {
		add("timestamp >= $%d", *f.From)
	}
	if f.To != nil {
		add("timestamp <= $%d", *f.To)
	}

	where := strings.Join(conds, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_events WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit events: %w", err)
	}

	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 || f.PerPage > 200 {
		f.PerPage = 50
	}
	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)

	query := fmt.Sprintf(
		`SELECT %s FROM audit_events WHERE %s ORDER BY timestamp DESC, seq DESC LIMIT $%d OFFSET $%d`,
		auditColumns, where, len(args)-1, len(args),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	events, err := r.scanEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// ListAscending returns every event in chain order, for verification
func (r *AuditRepository) ListAscending(ctx context.Context) ([]model.AuditEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM audit_events ORDER BY seq ASC`, auditColumns)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()
	return r.scanEvents(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *AuditRepository) scanEvent(row rowScanner) (*model.AuditEvent, error) {
	var e model.AuditEvent
	var detailsJSON []byte
	err := row.Scan(
		&e.Seq,
		&e.EventID,
		&e.Timestamp,
		&e.Action,
		&e.Status,
		&e.Severity,
		&e.Source,
		&e.Target,
		&e.UserID,
		&e.Role,
		&e.IP,
		&e.UserAgent,
		&detailsJSON,
		&e.PrevHash,
		&e.EventHash,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit event: %w", err)
	}
	if len(detailsJSON) > 0 {
		// UseNumber keeps numeric details as their literal digits. A plain
		// Unmarshal would hand back float64s, and integers past 2^53 would
		// re-hash to a different digest than the one stored with the entry.
		dec := json.NewDecoder(bytes.NewReader(detailsJSON))
		dec.UseNumber()
		if err := dec.Decode(&e.Details); err != nil {
			return nil, fmt.Errorf("failed to decode audit event details: %w", err)
		}
	}
	e.Timestamp = e.Timestamp.UTC()
	return &e, nil
}

func (r *AuditRepository) scanEvents(rows *sql.Rows) ([]model.AuditEvent, error) {
	events := []model.AuditEvent{}
	for rows.Next() {
		e, err := r.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}
	return events, nil
}
