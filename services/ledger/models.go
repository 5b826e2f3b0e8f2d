package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type generationModel struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey"`
	ProductID      string            `gorm:"type:text;not null"`
	GUID           string            `gorm:"type:text;not null"`
	Serial         string            `gorm:"type:text;not null"`
	DescriptorPath string            `gorm:"type:text;not null"`
	DescriptorSize int64             `gorm:"type:bigint;not null"`
	Links          datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt      time.Time         `gorm:"type:timestamptz;not null"`
}

func (generationModel) TableName() string { return "generations" }

type artifactModel struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	GenerationID uuid.UUID  `gorm:"type:uuid;not null"`
	Stage        string     `gorm:"type:text;not null"`
	URL          string     `gorm:"type:text;not null"`
	Path         string     `gorm:"type:text;not null"`
	Dir          string     `gorm:"type:text;not null"`
	CreatedAt    time.Time  `gorm:"type:timestamptz;not null"`
	SweptAt      *time.Time `gorm:"type:timestamptz"`
}

func (artifactModel) TableName() string { return "generation_artifacts" }

// Generation is a ledger row as returned by Recent.
type Generation struct {
	ID         uuid.UUID         `db:"id" json:"id"`
	ProductID  string            `db:"product_id" json:"productId"`
	GUID       string            `db:"guid" json:"guid"`
	Serial     string            `db:"serial" json:"serial"`
	Links      map[string]string `db:"links" json:"links"`
	CreatedAt  time.Time         `db:"created_at" json:"createdAt"`
	SweptCount int               `db:"swept_count" json:"sweptCount"`
}
