package resource

import (
	"context"
	"database/sql"

	"github.com/not-mt/zapd/errors"
)

// WidgetStore persists widgets as plain relational rows.
type WidgetStore struct{}

// NewWidgetStore creates a widget repository
func NewWidgetStore() *WidgetStore {
	return &WidgetStore{}
}

// Kind returns the widget resource kind
func (s *WidgetStore) Kind() Kind {
	return KindWidgets
}

const widgetColumns = `id, name, height, mass, force, created_at, updated_at`

// scanWidget scans one widget row into a Record
func scanWidget(row interface{ Scan(dest ...interface{}) error }) (*Record, error) {
	var rec Record
	var height, mass sql.NullString

	err := row.Scan(&rec.ID, &rec.Name, &height, &mass, &rec.Force, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if height.Valid {
		rec.Height = &height.String
	}
	if mass.Valid {
		rec.Mass = &mass.String
	}

	return &rec, nil
}

// GetByID retrieves a widget by ID
func (s *WidgetStore) GetByID(ctx context.Context, q Querier, id int64) (*Record, error) {
	query := `SELECT ` + widgetColumns + ` FROM widgets WHERE id = ?`

	rec, err := scanWidget(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("widget %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get widget")
	}

	return rec, nil
}

// List returns widgets ordered by ID
func (s *WidgetStore) List(ctx context.Context, q Querier, limit, offset int) ([]*Record, error) {
	query := `SELECT ` + widgetColumns + ` FROM widgets ORDER BY id LIMIT ? OFFSET ?`

	rows, err := q.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list widgets")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanWidget(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan widget")
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating widgets")
	}

	return records, nil
}

// Create inserts a new widget and returns the stored record
func (s *WidgetStore) Create(ctx context.Context, q Querier, rec *Record) (*Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	query := `INSERT INTO widgets (name, height, mass, force) VALUES (?, ?, ?, ?)`

	height := sql.NullString{}
	if rec.Height != nil {
		height = sql.NullString{String: *rec.Height, Valid: true}
	}
	mass := sql.NullString{}
	if rec.Mass != nil {
		mass = sql.NullString{String: *rec.Mass, Valid: true}
	}

	result, err := q.ExecContext(ctx, query, rec.Name, height, mass, rec.Force)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create widget")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get widget id")
	}

	return s.GetByID(ctx, q, id)
}

// Update replaces a widget's mutable fields and returns the stored record
func (s *WidgetStore) Update(ctx context.Context, q Querier, rec *Record) (*Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	query := `
		UPDATE widgets
		SET name = ?,
		    height = ?,
		    mass = ?,
		    force = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	height := sql.NullString{}
	if rec.Height != nil {
		height = sql.NullString{String: *rec.Height, Valid: true}
	}
	mass := sql.NullString{}
	if rec.Mass != nil {
		mass = sql.NullString{String: *rec.Mass, Valid: true}
	}

	result, err := q.ExecContext(ctx, query, rec.Name, height, mass, rec.Force, rec.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update widget")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return nil, errors.NewNotFoundError("widget %d", rec.ID)
	}

	return s.GetByID(ctx, q, rec.ID)
}

// Delete removes a widget
func (s *WidgetStore) Delete(ctx context.Context, q Querier, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM widgets WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete widget")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("widget %d", id)
	}

	return nil
}

// IncrementForce applies force += delta to a widget
func (s *WidgetStore) IncrementForce(ctx context.Context, q Querier, id int64, delta int64) error {
	query := `UPDATE widgets SET force = force + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := q.ExecContext(ctx, query, delta, id)
	if err != nil {
		return errors.Wrap(err, "failed to increment widget force")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("widget %d", id)
	}

	return nil
}
