// Package indexstore keeps a queryable index of scanned runs and device
// timings in sqlite or postgres.
package indexstore

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ethpandaops/stressoor/pkg/config"
	"github.com/ethpandaops/stressoor/pkg/summary"
)

// Store provides persistence for indexed runs.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	UpsertRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, kernel string) ([]Run, error)

	ReplaceDevices(ctx context.Context, root string, devices []Device) error
	ListDevices(ctx context.Context, root string, phase summary.Phase) ([]Device, error)

	IndexCollection(ctx context.Context, c *summary.Collection) (int, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new index Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "indexstore"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening index database: %w", err)
	}

	if s.cfg.Driver == "sqlite" {
		// A single connection keeps in-memory databases coherent.
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Run{},
		&Device{},
	); err != nil {
		return fmt.Errorf("running index migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).
		Info("Index database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// UpsertRun inserts or updates a run record keyed by root + file. Every
// column is overwritten on update, zero values included.
func (s *store) UpsertRun(ctx context.Context, run *Run) error {
	if run.IndexedAt.IsZero() {
		run.IndexedAt = time.Now().UTC()
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "root"}, {Name: "file"}},
			UpdateAll: true,
		}).
		Create(run)
	if result.Error != nil {
		return fmt.Errorf("upserting run: %w", result.Error)
	}

	return nil
}

// ListRuns returns the runs of a kernel, or of every kernel when kernel
// is empty, in report order.
func (s *store) ListRuns(ctx context.Context, kernel string) ([]Run, error) {
	q := s.db.WithContext(ctx)
	if kernel != "" {
		q = q.Where("kernel = ?", kernel)
	}

	var runs []Run
	if err := q.
		Order("kernel, host, mode, date, time").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

// ReplaceDevices swaps the device table of a root in one transaction.
func (s *store) ReplaceDevices(ctx context.Context, root string, devices []Device) error {
	const batchSize = 100

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("root = ?", root).Delete(&Device{}).Error; err != nil {
			return fmt.Errorf("deleting devices: %w", err)
		}

		if len(devices) == 0 {
			return nil
		}

		for i := range devices {
			devices[i].ID = 0
			devices[i].Root = root
		}

		if err := tx.CreateInBatches(devices, batchSize).Error; err != nil {
			return fmt.Errorf("inserting devices: %w", err)
		}

		return nil
	})
}

// ListDevices returns the devices of a root and phase, worst time first.
func (s *store) ListDevices(ctx context.Context, root string, phase summary.Phase) ([]Device, error) {
	var devices []Device
	if err := s.db.WithContext(ctx).
		Where("root = ? AND phase = ?", root, string(phase)).
		Order("worst DESC, name").
		Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	return devices, nil
}

// IndexCollection stores every run of a scan and, when devices were
// extracted, replaces the root's device table. It returns the number of
// runs written.
func (s *store) IndexCollection(ctx context.Context, c *summary.Collection) (int, error) {
	for _, r := range c.Runs {
		if err := s.UpsertRun(ctx, NewRun(c.Root, r)); err != nil {
			return 0, fmt.Errorf("indexing %s: %w", r.File, err)
		}
	}

	if c.Options.Devices && c.Devices != nil {
		all := c.Devices.All()
		devices := make([]Device, 0, len(all))

		for _, d := range all {
			devices = append(devices, NewDevice(c.Root, d))
		}

		if err := s.ReplaceDevices(ctx, c.Root, devices); err != nil {
			return 0, err
		}
	}

	s.log.WithFields(logrus.Fields{
		"root": c.Root,
		"runs": len(c.Runs),
	}).Info("Indexed collection")

	return len(c.Runs), nil
}
