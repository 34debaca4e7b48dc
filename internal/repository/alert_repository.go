package repository

import (
	"context"
	"fmt"

	"github.com/threattrace/threattrace/internal/database"
	"github.com/threattrace/threattrace/internal/model"
)

// AlertRepository handles system alert persistence
type AlertRepository struct {
	db *database.Postgres
}

// NewAlertRepository creates a new AlertRepository
func NewAlertRepository(db *database.Postgres) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts a new alert
func (r *AlertRepository) Create(ctx context.Context, a *model.Alert) error {
	query := `
		INSERT INTO system_alerts (id, title, message, severity, source, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.Title,
		a.Message,
		a.Severity,
		a.Source,
		a.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// ListRecent returns the most recent alerts, newest first
func (r *AlertRepository) ListRecent(ctx context.Context, limit int) ([]model.Alert, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT id, title, message, severity, source, timestamp
		FROM system_alerts
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	alerts := []model.Alert{}
	for rows.Next() {
		var a model.Alert
		if err := rows.Scan(&a.ID, &a.Title, &a.Message, &a.Severity, &a.Source, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return alerts, nil
}
