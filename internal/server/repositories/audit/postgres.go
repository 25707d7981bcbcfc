package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/cipherbox/internal/dbx"
	"github.com/dmitrijs2005/cipherbox/internal/server/models"
)

const filterClause = `
	WHERE owner_id = $1
	  AND ($2 = '' OR action = $2)
	  AND ($3 = '' OR filename ILIKE '%' || $3 || '%')`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, rec *models.AuditRecord) error {
	query := `
		INSERT INTO audit_log (owner_id, action, filename, outcome, created_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		rec.Owner, rec.Action, rec.Filename, rec.Outcome, rec.Timestamp, rec.Origin.IP, rec.Origin.UserAgent,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, f models.AuditFilter) ([]models.AuditRecord, error) {
	query := `
		SELECT id, owner_id, action, filename, outcome, created_at, ip_address, user_agent
		FROM audit_log` + filterClause + `
		ORDER BY created_at DESC, id DESC
		LIMIT $4 OFFSET $5
	`
	offset := (f.Page - 1) * f.Limit
	rows, err := r.db.QueryContext(ctx, query, f.Owner, string(f.Action), likeEscaper.Replace(f.Search), f.Limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.AuditRecord
	for rows.Next() {
		var (
			rec             models.AuditRecord
			action, outcome string
		)
		if err := rows.Scan(&rec.ID, &rec.Owner, &action, &rec.Filename, &outcome, &rec.Timestamp, &rec.Origin.IP, &rec.Origin.UserAgent); err != nil {
			return nil, err
		}
		rec.Action = models.ActionKind(action)
		rec.Outcome = models.Outcome(outcome)
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Count(ctx context.Context, f models.AuditFilter) (int, error) {
	query := `SELECT COUNT(*) FROM audit_log` + filterClause

	var n int
	if err := r.db.QueryRowContext(ctx, query, f.Owner, string(f.Action), likeEscaper.Replace(f.Search)).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
