package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/carefill/carefill/internal/config"
	"github.com/carefill/carefill/internal/domain"
	"github.com/carefill/carefill/internal/domain/fulfillment"
	"github.com/carefill/carefill/internal/domain/notification"
	"github.com/carefill/carefill/internal/domain/patient"
	"github.com/carefill/carefill/internal/domain/prescription"
)

func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:      gormlogger.Default.LogMode(gormlogger.Silent),
		PrepareStmt: true,
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: cfg.DSN(),
	}), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

func Migrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("running database migrations")
	start := time.Now()

	schemas := []string{"clinical", "auth", "audit"} // logical namespace
	for _, schema := range schemas {
		if err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)).Error; err != nil {
			return fmt.Errorf("creating schema %s: %w", schema, err)
		}
	}

	models := []any{
		&domain.User{},
		&domain.AuditLog{},
		&patient.Patient{},
		&prescription.Prescription{},
		&fulfillment.Request{},
		&notification.Notification{},
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}

	log.Info("migrations completed", zap.Duration("duration", time.Since(start)))
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []struct {
		name  string
		query string
	}{
		// Backs the one-active-medication-request-per-prescription guard at
		// the storage layer; the service checks first, this closes the race.
		{
			name:  "idx_fulfillment_active_prescription",
			query: `CREATE UNIQUE INDEX IF NOT EXISTS idx_fulfillment_active_prescription ON clinical.fulfillment_requests (prescription_id, patient_id) WHERE deleted_at IS NULL AND type = 'medication' AND status <> 'cancelled' AND prescription_id IS NOT NULL`,
		},
		{
			name:  "idx_fulfillment_provider_open",
			query: `CREATE INDEX IF NOT EXISTS idx_fulfillment_provider_open ON clinical.fulfillment_requests (assigned_provider_id, status) WHERE deleted_at IS NULL AND status NOT IN ('completed', 'cancelled')`,
		},
		{
			name:  "idx_fulfillment_patient",
			query: `CREATE INDEX IF NOT EXISTS idx_fulfillment_patient ON clinical.fulfillment_requests (patient_id, created_at) WHERE deleted_at IS NULL`,
		},
		{
			name:  "idx_notifications_recipient_unread",
			query: `CREATE INDEX IF NOT EXISTS idx_notifications_recipient_unread ON clinical.notifications (recipient, created_at) WHERE read = false`,
		},
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.query).Error; err != nil {
			return fmt.Errorf("creating index %s: %w", idx.name, err)
		}
	}

	return nil
}
