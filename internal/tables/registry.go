// Package tables tracks the restaurant's physical tables and their
// occupancy state.
package tables

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tableside/internal/apperr"
	"tableside/internal/database"
	"tableside/internal/models"
)

// Registry reads and updates tables in PostgreSQL.
type Registry struct {
	db *database.DB
}

// NewRegistry creates a table registry.
func NewRegistry(db *database.DB) *Registry {
	return &Registry{db: db}
}

// FindTable resolves a table by id.
func (r *Registry) FindTable(ctx context.Context, id string) (*models.Table, error) {
	var table models.Table
	err := r.db.QueryRow(ctx, database.GetTableSQL, id).Scan(
		&table.ID,
		&table.TableNumber,
		&table.Capacity,
		&table.IsOccupied,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("table not found with id %s", id)
		}
		return nil, fmt.Errorf("failed to query table: %w", err)
	}
	return &table, nil
}

// ListTables returns all tables.
func (r *Registry) ListTables(ctx context.Context) ([]models.Table, error) {
	rows, err := r.db.Query(ctx, database.ListTablesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []models.Table
	for rows.Next() {
		var table models.Table
		if err := rows.Scan(
			&table.ID,
			&table.TableNumber,
			&table.Capacity,
			&table.IsOccupied,
		); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, table)
	}
	return tables, rows.Err()
}

// SetOccupied flips the occupancy flag for a table.
func (r *Registry) SetOccupied(ctx context.Context, id string, occupied bool) error {
	if err := r.db.Exec(ctx, database.SetTableOccupiedSQL, id, occupied); err != nil {
		return fmt.Errorf("failed to update table occupancy: %w", err)
	}
	return nil
}
