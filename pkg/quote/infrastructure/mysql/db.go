package mysql

import (
	"context"
	"embed"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Config struct {
	Host     string
	Name     string
	User     string
	Password string

	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

func (c Config) dsn() string {
	cfg := gomysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = c.Host
	cfg.DBName = c.Name
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	// migrations contain several statements per file
	cfg.MultiStatements = true
	return cfg.FormatDSN()
}

func Connect(ctx context.Context, c Config) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "mysql", c.dsn())
	if err != nil {
		return nil, errors.Wrapf(err, "connect to mysql at %s", c.Host)
	}
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
		db.SetMaxIdleConns(c.MaxOpenConns)
	}
	if c.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(c.ConnMaxLifetime)
	}
	return db, nil
}

// Migrate applies every pending embedded migration.
func Migrate(db *sqlx.DB) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "open embedded migrations")
	}
	driver, err := migratemysql.WithInstance(db.DB, &migratemysql.Config{})
	if err != nil {
		return errors.Wrap(err, "create migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", source, "mysql", driver)
	if err != nil {
		return errors.Wrap(err, "create migrator")
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("database schema is up to date")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "apply migrations")
	}

	version, _, _ := m.Version()
	log.WithField("version", version).Info("database migrated")
	return nil
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit transaction")
}
