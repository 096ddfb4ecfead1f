package db

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DatabaseConnection struct {
	db    *gorm.DB
	sqlDb *sql.DB
}

var (
	connection     *DatabaseConnection
	connectionOnce sync.Once
)

// Connection returns the process-wide database handle, initializing it
// lazily on first use. The teacher's own db/connection.go declares
// `var Connection = InitDb()` but every call site invokes it as a function
// (`db.Connection()`) — a latent inconsistency resolved here in favor of
// the call-site convention, via sync.Once instead of var-init-time.
func Connection() *DatabaseConnection {
	connectionOnce.Do(func() {
		connection = initDB()
	})
	return connection
}

func initDB() *DatabaseConnection {
	viper.AutomaticEnv()

	dbType := viper.GetString("database.type")
	if dbType == "" {
		dbType = "sqlite"
	}

	var dialector gorm.Dialector
	switch dbType {
	case "sqlite":
		path := viper.GetString("database.sqlite.path")
		if path == "" {
			path = "reconctl.db"
		}
		dialector = sqlite.Open(path)
	case "postgres":
		dsn := viper.GetString("database.postgres.dsn")
		if dsn == "" {
			log.Fatalf("No Postgres DSN provided")
		}
		dialector = postgres.Open(dsn)
	default:
		log.Fatalf("Unknown database type: %s", dbType)
	}

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)

	gormDB, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		panic("failed to connect database")
	}

	if err := gormDB.AutoMigrate(&User{}, &Target{}, &Scan{}, &Finding{}, &Report{}); err != nil {
		panic("failed to migrate database: " + err.Error())
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		panic("failed to get underlying sql.DB")
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(80)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &DatabaseConnection{db: gormDB, sqlDb: sqlDB}
}

var testDBCounter int64

// NewForTesting builds a standalone, in-memory sqlite-backed connection,
// migrated the same way initDB migrates a real one — the db-package
// equivalent of kvb.NewWithClient, for tests in other packages that need a
// real *DatabaseConnection without touching the process-wide singleton.
// Each call gets its own named in-memory database so parallel tests never
// share state.
func NewForTesting() *DatabaseConnection {
	n := atomic.AddInt64(&testDBCounter, 1)
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", n)
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		panic("failed to open in-memory database: " + err.Error())
	}
	if err := gormDB.AutoMigrate(&User{}, &Target{}, &Scan{}, &Finding{}, &Report{}); err != nil {
		panic("failed to migrate in-memory database: " + err.Error())
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		panic("failed to get underlying sql.DB: " + err.Error())
	}
	return &DatabaseConnection{db: gormDB, sqlDb: sqlDB}
}
