// Package ledger keeps a Postgres record of generated artifacts and marks
// them once the sweeper has removed their directories.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"stagegen/pkg/db"
	"stagegen/services/generator"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Ledger records generations. Inserts go through gorm, reads through scany.
type Ledger struct {
	pool  *pgxpool.Pool
	orm   *gorm.DB
	newID func() uuid.UUID
	now   func() time.Time
}

// New builds a Ledger over an open pool.
func New(pool *pgxpool.Pool) (*Ledger, error) {
	if pool == nil {
		return nil, errors.New("database pool is required")
	}
	orm, err := db.OpenORM(pool)
	if err != nil {
		return nil, err
	}
	return &Ledger{pool: pool, orm: orm, newID: uuid.New, now: time.Now}, nil
}

// RecordGeneration stores res and one row per stage in a single transaction.
func (l *Ledger) RecordGeneration(ctx context.Context, res *generator.Result) error {
	if l == nil {
		return errors.New("nil ledger")
	}
	if res == nil {
		return errors.New("nil result")
	}
	gen, artifacts := toModels(res, l.newID)
	return l.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&gen).Error; err != nil {
			return fmt.Errorf("insert generation: %w", err)
		}
		if len(artifacts) == 0 {
			return nil
		}
		if err := tx.Create(&artifacts).Error; err != nil {
			return fmt.Errorf("insert artifacts: %w", err)
		}
		return nil
	})
}

func toModels(res *generator.Result, newID func() uuid.UUID) (generationModel, []artifactModel) {
	links := datatypes.JSONMap{}
	for stage, url := range res.Links() {
		links[stage] = url
	}
	gen := generationModel{
		ID:             newID(),
		ProductID:      res.Parameters.ProductID,
		GUID:           res.Parameters.GUID,
		Serial:         res.Parameters.Serial,
		DescriptorPath: res.Descriptor.Path,
		DescriptorSize: res.Descriptor.Size,
		Links:          links,
		CreatedAt:      res.CreatedAt,
	}
	artifacts := make([]artifactModel, 0, len(res.Stages))
	for _, s := range res.Stages {
		artifacts = append(artifacts, artifactModel{
			ID:           newID(),
			GenerationID: gen.ID,
			Stage:        s.Stage,
			URL:          s.URL,
			Path:         s.Path,
			Dir:          s.Dir,
			CreatedAt:    res.CreatedAt,
		})
	}
	return gen, artifacts
}

// ClampLimit bounds a caller-supplied page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Recent returns the newest generations first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Generation, error) {
	if l == nil {
		return nil, errors.New("nil ledger")
	}
	var rows []Generation
	err := db.Select(ctx, l.pool, &rows, `
SELECT g.id, g.product_id, g.guid, g.serial, g.links, g.created_at,
       COUNT(a.swept_at)::int AS swept_count
FROM generations g
LEFT JOIN generation_artifacts a ON a.generation_id = g.id
GROUP BY g.id
ORDER BY g.created_at DESC
LIMIT $1
`, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("select generations: %w", err)
	}
	if rows == nil {
		rows = []Generation{}
	}
	return rows, nil
}

// MarkSwept stamps every artifact stored under dir.
func (l *Ledger) MarkSwept(ctx context.Context, dir string) (int64, error) {
	if l == nil {
		return 0, errors.New("nil ledger")
	}
	tag, err := db.Exec(ctx, l.pool, `
UPDATE generation_artifacts
SET swept_at = $1
WHERE dir = $2 AND swept_at IS NULL
`, l.now().UTC(), dir)
	if err != nil {
		return 0, fmt.Errorf("mark swept %s: %w", dir, err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the database connection.
func (l *Ledger) Ping(ctx context.Context) error {
	if l == nil {
		return errors.New("nil ledger")
	}
	return db.Ping(ctx, l.pool)
}
