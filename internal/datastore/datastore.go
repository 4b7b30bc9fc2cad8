// Package datastore opens the relational database shared by the scan log
// and the species catalog. SQLite and MySQL are supported through gorm.
package datastore

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/plantid/internal/conf"
	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/logger"
)

// DefaultSlowQueryThreshold is the duration above which queries are logged as slow.
const DefaultSlowQueryThreshold = 200 * time.Millisecond

const (
	dbTypeSQLite = "SQLite"
	dbTypeMySQL  = "MySQL"
)

// Store wraps the gorm connection used by the scan log. The catalog
// shares the same *gorm.DB.
type Store struct {
	DB     *gorm.DB
	dbType string
	log    logger.Logger
}

// Open connects to the backend enabled in settings and migrates the scan table.
func Open(settings *conf.Settings, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Global().Module("datastore")
	}

	switch {
	case settings.Output.MySQL.Enabled:
		my := settings.Output.MySQL
		return OpenMySQL(MySQLConfig{
			Username: my.Username,
			Password: my.Password,
			Host:     my.Host,
			Port:     my.Port,
			Database: my.Database,
		}, log)
	case settings.Output.SQLite.Enabled:
		return OpenSQLite(settings.Output.SQLite.Path, log)
	default:
		return nil, errors.Newf("no database backend enabled").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// OpenSQLite opens (or creates) a SQLite database file.
func OpenSQLite(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Global().Module("datastore")
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("path", path).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, DefaultSlowQueryThreshold),
	})
	if err != nil {
		log.Error("Failed to open SQLite database", logger.String("path", path), logger.Error(err))
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("db_type", dbTypeSQLite).
			Build()
	}

	// SQLite allows a single writer; one connection avoids "database is locked".
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	sqlDB.SetMaxOpenConns(1)

	store := &Store{DB: db, dbType: dbTypeSQLite, log: log}
	if err := store.migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Info("Database ready", logger.String("db_type", dbTypeSQLite), logger.String("path", path))
	return store, nil
}

// MySQLConfig holds MySQL connection parameters.
type MySQLConfig struct {
	Username string
	Password string
	Host     string
	Port     string
	Database string
}

// DSN renders the go-sql-driver connection string.
func (c MySQLConfig) DSN() string {
	cfg := mysqldriver.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, c.Port)
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// OpenMySQL connects to a MySQL server.
func OpenMySQL(cfg MySQLConfig, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Global().Module("datastore")
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, DefaultSlowQueryThreshold),
	})
	if err != nil {
		log.Error("Failed to open MySQL database",
			logger.String("host", cfg.Host),
			logger.String("port", cfg.Port),
			logger.String("database", cfg.Database),
			logger.Error(err))
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("db_type", dbTypeMySQL).
			Context("host", cfg.Host).
			Build()
	}

	store := &Store{DB: db, dbType: dbTypeMySQL, log: log}
	if err := store.migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Info("Database ready", logger.String("db_type", dbTypeMySQL), logger.String("host", cfg.Host))
	return store, nil
}

func (s *Store) migrate() error {
	start := time.Now()
	if err := s.DB.AutoMigrate(&ScanRecord{}); err != nil {
		return errors.Newf("failed to auto-migrate %s database: %w", s.dbType, err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	s.log.Debug("Database migration completed",
		logger.String("db_type", s.dbType),
		logger.Duration("duration", time.Since(start)))
	return nil
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s.DB == nil {
		return errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
