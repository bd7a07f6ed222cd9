package resource

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/not-mt/zapd/errors"
)

// GadgetStore persists gadgets as JSON documents in a single doc column,
// read and mutated through the sqlite json1 extension.
type GadgetStore struct{}

// NewGadgetStore creates a gadget repository
func NewGadgetStore() *GadgetStore {
	return &GadgetStore{}
}

// Kind returns the gadget resource kind
func (s *GadgetStore) Kind() Kind {
	return KindGadgets
}

// gadgetDoc is the JSON shape stored in the doc column
type gadgetDoc struct {
	Name   string  `json:"name"`
	Height *string `json:"height,omitempty"`
	Mass   *string `json:"mass,omitempty"`
	Force  int64   `json:"force"`
}

const gadgetColumns = `id, doc, created_at, updated_at`

// scanGadget scans one gadget row and unpacks its document
func scanGadget(row interface{ Scan(dest ...interface{}) error }) (*Record, error) {
	var rec Record
	var doc string

	err := row.Scan(&rec.ID, &doc, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	var fields gadgetDoc
	if err := json.Unmarshal([]byte(doc), &fields); err != nil {
		return nil, errors.Wrap(err, "failed to decode gadget doc")
	}

	rec.Name = fields.Name
	rec.Height = fields.Height
	rec.Mass = fields.Mass
	rec.Force = fields.Force

	return &rec, nil
}

// encodeGadget packs record fields into the stored document shape
func encodeGadget(rec *Record) (string, error) {
	data, err := json.Marshal(gadgetDoc{
		Name:   rec.Name,
		Height: rec.Height,
		Mass:   rec.Mass,
		Force:  rec.Force,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to encode gadget doc")
	}
	return string(data), nil
}

// GetByID retrieves a gadget by ID
func (s *GadgetStore) GetByID(ctx context.Context, q Querier, id int64) (*Record, error) {
	query := `SELECT ` + gadgetColumns + ` FROM gadgets WHERE id = ?`

	rec, err := scanGadget(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("gadget %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get gadget")
	}

	return rec, nil
}

// List returns gadgets ordered by ID
func (s *GadgetStore) List(ctx context.Context, q Querier, limit, offset int) ([]*Record, error) {
	query := `SELECT ` + gadgetColumns + ` FROM gadgets ORDER BY id LIMIT ? OFFSET ?`

	rows, err := q.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list gadgets")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanGadget(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan gadget")
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating gadgets")
	}

	return records, nil
}

// Create inserts a new gadget document and returns the stored record
func (s *GadgetStore) Create(ctx context.Context, q Querier, rec *Record) (*Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	doc, err := encodeGadget(rec)
	if err != nil {
		return nil, err
	}

	result, err := q.ExecContext(ctx, `INSERT INTO gadgets (doc) VALUES (?)`, doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gadget")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get gadget id")
	}

	return s.GetByID(ctx, q, id)
}

// Update replaces a gadget's document and returns the stored record
func (s *GadgetStore) Update(ctx context.Context, q Querier, rec *Record) (*Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	doc, err := encodeGadget(rec)
	if err != nil {
		return nil, err
	}

	query := `UPDATE gadgets SET doc = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := q.ExecContext(ctx, query, doc, rec.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update gadget")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return nil, errors.NewNotFoundError("gadget %d", rec.ID)
	}

	return s.GetByID(ctx, q, rec.ID)
}

// Delete removes a gadget
func (s *GadgetStore) Delete(ctx context.Context, q Querier, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM gadgets WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete gadget")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("gadget %d", id)
	}

	return nil
}

// IncrementForce applies force += delta inside the stored document.
// The mutation happens in SQL via json_set so concurrent increments
// cannot lose updates by writing back a stale document.
func (s *GadgetStore) IncrementForce(ctx context.Context, q Querier, id int64, delta int64) error {
	query := `
		UPDATE gadgets
		SET doc = json_set(doc, '$.force', COALESCE(json_extract(doc, '$.force'), 0) + ?),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := q.ExecContext(ctx, query, delta, id)
	if err != nil {
		return errors.Wrap(err, "failed to increment gadget force")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("gadget %d", id)
	}

	return nil
}
