package database

import (
	"time"

	gormlogger "gorm.io/gorm/logger"

	"SkillSwap/config"
	"SkillSwap/pkg/logger"
)

func newLogger() gormlogger.Interface {
	var level gormlogger.LogLevel
	switch config.Cfg.LoggerLevel {
	case "DEBUG":
		level = gormlogger.Info
	case "WARN":
		level = gormlogger.Warn
	case "ERROR":
		level = gormlogger.Error
	default:
		level = gormlogger.Warn
	}

	return gormlogger.New(zapWriter{}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

type zapWriter struct{}

func (zapWriter) Printf(format string, args ...interface{}) {
	logger.Logger.Sugar().Infof(format, args...)
}
