package mapping

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BaseStorePG keeps base datasets in a variable_mapping table:
//
//	variable_mapping(id, project, position, organ_system, group_name,
//	                 variable, epic_id, pdms_id, unit, status)
//
// Rows with project = '' are shared by every project.
type BaseStorePG struct{ pool *pgxpool.Pool }

func NewBaseStorePG(pool *pgxpool.Pool) *BaseStorePG {
	return &BaseStorePG{pool: pool}
}

const baseCols = `id::text, COALESCE(organ_system, ''), COALESCE(group_name, ''), COALESCE(variable, ''),
	COALESCE(epic_id, ''), COALESCE(pdms_id, ''), COALESCE(unit, ''), COALESCE(status, '')`

func (s *BaseStorePG) scanRow(row pgx.Row) (Row, error) {
	var r Row
	err := row.Scan(&r.MappingID, &r.OrganSystem, &r.Group, &r.Variable,
		&r.EpicID, &r.PDMSID, &r.Unit, &r.Status)
	return r, err
}

// Load implements BaseSource. Project rows follow the shared rows in
// position order.
func (s *BaseStorePG) Load(ctx context.Context, _, project string) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+baseCols+` FROM variable_mapping
		WHERE project = $1 OR project = ''
		ORDER BY (project <> ''), position, id`, project)
	if err != nil {
		return nil, fmt.Errorf("query variable_mapping: %w: %w", ErrDataUnavailable, err)
	}
	defer rows.Close()

	var items []Row
	for rows.Next() {
		r, err := s.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan variable_mapping: %w: %w", ErrDataUnavailable, err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variable_mapping: %w: %w", ErrDataUnavailable, err)
	}
	return AssignBaseKeys(items), nil
}

// Replace swaps the base rows of project ("" for the shared set) for rows
// in one transaction. Rows without a variable name are skipped. It returns
// the number of rows written.
func (s *BaseStorePG) Replace(ctx context.Context, project string, rows []Row) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM variable_mapping WHERE project = $1`, project); err != nil {
		return 0, fmt.Errorf("clear variable_mapping for %q: %w", project, err)
	}

	batch := &pgx.Batch{}
	n := 0
	for _, r := range Normalize(rows) {
		if r.Variable == "" {
			continue
		}
		batch.Queue(`INSERT INTO variable_mapping
			(project, position, organ_system, group_name, variable, epic_id, pdms_id, unit, status)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''))`,
			project, n, r.OrganSystem, r.Group, r.Variable, r.EpicID, r.PDMSID, r.Unit, r.Status)
		n++
	}
	if n > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, fmt.Errorf("insert variable_mapping rows: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit variable_mapping: %w", err)
	}
	return n, nil
}
