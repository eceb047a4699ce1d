package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cppla/bharatinvest/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var db *gorm.DB

// InitDatabase establishes a connection to MySQL using configuration values and migrates the given models.
func InitDatabase(modelDefs ...interface{}) *gorm.DB {
	if db != nil {
		return db
	}

	cfg := Get()
	var dsn string
	if cfg.DatabaseURI != "" {
		dsn = cfg.DatabaseURI
	} else {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)
	}

	// Configure GORM logger: derive level from app LogLevel and raise slow-sql threshold to reduce noise
	gLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             2 * time.Second, // consider slower queries only
			LogLevel:                  toGormLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gormCfg := &gorm.Config{
		Logger:                                   gLogger,
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	}

	var err error
	db, err = gorm.Open(mysql.Open(dsn), gormCfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get sql.DB: %v", err)
	}

	// 连接池参数：适中规模 + 更积极的连接回收，减少“bad idle connection”噪音
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	// 主动限制单连接的最大空闲时长，避免被服务端 wait_timeout 回收导致的“bad connection”日志
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	// 启动期做一次 Ping，提前暴露网络/认证问题（否则错误可能延后到第一次查询）
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("database ping failed: %v", err)
	}

	if err := migrate(db, modelDefs...); err != nil {
		log.Fatalf("schema migration failed: %v", err)
	}

	return db
}

// toGormLogLevel maps application LogLevel to GORM's logger level.
func toGormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		// GORM 'Info' shows SQL; use with caution
		return logger.Info
	case "info", "":
		// Suppress per-statement logs; keep warnings (including slow SQL)
		return logger.Warn
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}

// DB provides access to initialized gorm DB instance.
func DB() *gorm.DB {
	if db == nil {
		log.Fatal("database not initialized, call InitDatabase first")
	}
	return db
}

// migrate creates missing tables and adds columns introduced after a table was created. Existing
// columns are never altered or dropped.
func migrate(db *gorm.DB, modelDefs ...interface{}) error {
	for _, model := range modelDefs {
		if !db.Migrator().HasTable(model) {
			if err := db.AutoMigrate(model); err != nil {
				return fmt.Errorf("auto migrate %T: %w", model, err)
			}
			continue
		}
		for _, field := range additiveColumns[fmt.Sprintf("%T", model)] {
			if db.Migrator().HasColumn(model, field) {
				continue
			}
			if err := db.Migrator().AddColumn(model, field); err != nil {
				log.Printf("failed to add column %s to %T: %v", field, model, err)
			}
		}
	}
	return nil
}

// additiveColumns lists fields that older deployments may lack, keyed by model type.
var additiveColumns = map[string][]string{
	fmt.Sprintf("%T", &models.Account{}):     {"SchemaVersion", "NextSeq", "CheckpointSeq", "CheckpointBalance", "CheckpointDeposits", "LastDerivedAt", "WithdrawalPinHash", "IsBanned"},
	fmt.Sprintf("%T", &models.Transaction{}): {"Seq", "Reference", "ResolvedAt"},
}
