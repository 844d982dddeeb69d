package database

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/CertFox/app/models"
	"github.com/ManuelReschke/CertFox/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

// GetDB returns the relational database handle, nil when the mongo store is used
func GetDB() *gorm.DB {
	return DB
}

// Models lists every table managed by AutoMigrate
func Models() []interface{} {
	return []interface{}{
		&models.Plan{},
		&models.Organization{},
		&models.Admin{},
		&models.Invoice{},
		&models.InvoiceSequence{},
		&models.LedgerEntry{},
		&models.BillingWebhookEvent{},
	}
}

func gormConfig() *gorm.Config {
	cfg := &gorm.Config{TranslateError: true}
	if !env.IsDev() {
		cfg.Logger = logger.Default.LogMode(logger.Warn)
	}
	return cfg
}

// SetupDatabase connects to MySQL, or to a SQLite file when DB_DRIVER=sqlite
func SetupDatabase() {
	if env.GetEnv("DB_DRIVER", "mysql") == "sqlite" {
		db, err := OpenSQLite(env.GetEnv("DB_PATH", "certfox.db"))
		if err != nil {
			panic(err)
		}
		DB = db
		return
	}

	var err error
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,   // data source name
			DefaultStringSize:         256,   // default size for string fields
			DisableDatetimePrecision:  true,  // disable datetime precision, which not supported before MySQL 5.6
			DontSupportRenameIndex:    true,  // drop & create when rename index, rename index not supported before MySQL 5.7, MariaDB
			DontSupportRenameColumn:   true,  // `change` when rename column, rename column not supported before MySQL 8, MariaDB
			SkipInitializeWithVersion: false, // auto configure based on currently MySQL version
		}), gormConfig())
		if err == nil {
			if env.GetEnv("DB_AUTO_MIGRATE", "true") == "true" {
				if err = DB.AutoMigrate(Models()...); err != nil {
					panic(err)
				}
			}
			log.Infof("[Database] Connected to MySQL at %s", env.GetEnv("DB_HOST", "127.0.0.1"))
			return
		}

		log.Warnf("[Database] Failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Infof("[Database] Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

// OpenSQLite opens and migrates a SQLite database. Use ":memory:" for tests.
func OpenSQLite(path string) (*gorm.DB, error) {
	cfg := gormConfig()
	cfg.Logger = logger.Default.LogMode(logger.Silent)
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// one connection keeps an in-memory database shared and serializes writers
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return db, nil
}
