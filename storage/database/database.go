package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"

	"SkillSwap/config"
	pkgdb "SkillSwap/pkg/database"
	"SkillSwap/pkg/logger"
)

var (
	db     *gorm.DB
	dbOnce sync.Once
	dbErr  error
)

func Init() error {
	dbOnce.Do(func() {
		cfg := config.Cfg
		gormCfg := &gorm.Config{
			Logger:                                   newLogger(),
			DisableForeignKeyConstraintWhenMigrating: true,
			PrepareStmt:                              true,
			SkipDefaultTransaction:                   true,
			TranslateError:                           true,
		}

		var gormDB *gorm.DB
		gormDB, dbErr = gorm.Open(postgres.Open(cfg.GetDSN()), gormCfg)
		if dbErr != nil {
			logger.Logger.Error("Failed to open database", zap.String("host", cfg.PostgreSQLHost), zap.Error(dbErr))
			return
		}

		if replicas := cfg.ReplicaDSNs(); len(replicas) > 0 {
			if dbErr = registerReplicas(gormDB, replicas); dbErr != nil {
				logger.Logger.Error("Failed to register read replicas", zap.Error(dbErr))
				return
			}
			logger.Logger.Info("Read replicas registered", zap.Int("count", len(replicas)))
		}

		if dbErr = pkgdb.WithDefaultOTELPlugin(gormDB, cfg.ServiceName); dbErr != nil {
			logger.Logger.Error("Failed to register gorm otel plugin", zap.Error(dbErr))
			return
		}

		sqlDB, err := gormDB.DB()
		if err != nil {
			dbErr = err
			logger.Logger.Error("Failed to get sql.DB from gorm", zap.Error(err))
			return
		}

		configureConnectionPool(sqlDB)

		if err := sqlDB.Ping(); err != nil {
			dbErr = err
			logger.Logger.Error("Failed to ping database", zap.Error(err))
			return
		}

		db = gormDB
		if err := Migrate(); err != nil {
			dbErr = fmt.Errorf("failed to run database migration: %w", err)
			return
		}
		logger.Logger.Info("Database initialized successfully")
	})

	return dbErr
}

// registerReplicas 读走副本，写走主库
func registerReplicas(gormDB *gorm.DB, dsns []string) error {
	dialectors := make([]gorm.Dialector, 0, len(dsns))
	for _, dsn := range dsns {
		dialectors = append(dialectors, postgres.Open(dsn))
	}

	cfg := config.Cfg
	return gormDB.Use(
		dbresolver.Register(dbresolver.Config{
			Replicas: dialectors,
			Policy:   dbresolver.RandomPolicy{},
		}).
			SetMaxIdleConns(cfg.PostgreSQLMaxIdle).
			SetMaxOpenConns(cfg.PostgreSQLMaxOpen).
			SetConnMaxIdleTime(10 * time.Minute).
			SetConnMaxLifetime(2 * time.Hour),
	)
}

func DB() *gorm.DB {
	return db
}

func Close(ctx context.Context) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- sqlDB.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func configureConnectionPool(sqlDB *sql.DB) {
	cfg := config.Cfg

	sqlDB.SetMaxIdleConns(cfg.PostgreSQLMaxIdle)
	sqlDB.SetMaxOpenConns(cfg.PostgreSQLMaxOpen)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	sqlDB.SetConnMaxLifetime(2 * time.Hour)
}
