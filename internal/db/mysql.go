package db

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"sugang/internal/config"
	"sugang/internal/model"
)

// NewMySQL returns a connected GORM DB instance with a bounded connection pool.
func NewMySQL(cfg config.MySQLConfig, log *zap.Logger) (*gorm.DB, error) {
	// TranslateError maps driver errors such as duplicate keys to gorm sentinels.
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("mysql handle: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	log.Info("mysql connected", zap.Int("max_open_conns", maxOpen))
	return db, nil
}

// Migrate creates or updates the tables. With reset set, existing tables are
// dropped first.
func Migrate(db *gorm.DB, reset bool, log *zap.Logger) error {
	if reset {
		log.Warn("dropping tables before migration")
		for _, table := range []interface{}{&model.Course{}, &model.User{}} {
			if err := db.Migrator().DropTable(table); err != nil {
				log.Warn("drop table failed", zap.Error(err))
			}
		}
	}

	if err := db.AutoMigrate(&model.User{}, &model.Course{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
