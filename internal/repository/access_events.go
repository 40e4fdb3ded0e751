package repository

import (
	"context"

	"github.com/NelsonFranklinWere/emil/backend/internal/domain"
)

func (r *Repository) InsertAccessEvent(ctx context.Context, event *domain.AccessEvent) error {
	query := `
		INSERT INTO access_events (id, reason, path, ip, subject, email, role, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	args := []any{event.ID, event.Reason, event.Path, event.IP, event.Subject, event.Email, event.Role, event.OccurredAt}
	_, err := r.dbpool.ExecContext(ctx, query, args...)
	return err
}

// ListAccessEvents returns the newest events first.
func (r *Repository) ListAccessEvents(ctx context.Context, limit int) ([]*domain.AccessEvent, error) {
	query := `
		SELECT id, reason, path, ip, subject, email, role, occurred_at
		FROM access_events
		ORDER BY occurred_at DESC
		LIMIT $1
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*domain.AccessEvent{}
	for rows.Next() {
		e := &domain.AccessEvent{}
		dst := []any{&e.ID, &e.Reason, &e.Path, &e.IP, &e.Subject, &e.Email, &e.Role, &e.OccurredAt}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}
