package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type Generation struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey"`
	ProductID      string            `gorm:"type:text;not null;index"`
	GUID           string            `gorm:"type:text;not null"`
	Serial         string            `gorm:"type:text;not null"`
	DescriptorPath string            `gorm:"type:text;not null"`
	DescriptorSize int64             `gorm:"type:bigint;not null"`
	Links          datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt      time.Time         `gorm:"type:timestamptz;not null;default:now();index"`
}

type GenerationArtifact struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	GenerationID uuid.UUID  `gorm:"type:uuid;not null;index"`
	Stage        string     `gorm:"type:text;not null"`
	URL          string     `gorm:"type:text;not null"`
	Path         string     `gorm:"type:text;not null"`
	Dir          string     `gorm:"type:text;not null;index"`
	CreatedAt    time.Time  `gorm:"type:timestamptz;not null;default:now()"`
	SweptAt      *time.Time `gorm:"type:timestamptz"`
	Generation   Generation `gorm:"foreignKey:GenerationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func openTx(tx *sql.Tx) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openTx(tx)
	if err != nil {
		return err
	}

	// The foreign key on generation_artifacts is created with the table.
	return gormDB.WithContext(ctx).AutoMigrate(
		&Generation{},
		&GenerationArtifact{},
	)
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openTx(tx)
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(
		&GenerationArtifact{},
		&Generation{},
	)
}
