package auth

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/log"

	// Register the supported database drivers.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// SQLConfig configures the SQL authenticator backend.
type SQLConfig struct {
	// Driver is the database driver name, "mysql" or "postgres".
	Driver string `yaml:"driver"`

	// DSN is the driver-specific data source name.
	DSN string `yaml:"dsn"`

	// Query selects a single password-hash column by username, e.g.
	// "SELECT password_hash FROM users WHERE username = ?".
	Query string `yaml:"query"`
}

// SQL is an authenticator that looks up the credential hash in a database.
// The pooled connection is opened once at construction; *sql.DB is safe for
// concurrent use.
type SQL struct {
	db    *sql.DB
	query string
}

// type check
var _ Authenticator = (*SQL)(nil)

// NewSQL opens the database and creates an *SQL.
func NewSQL(ctx context.Context, cfg *SQLConfig) (a *SQL, err error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("auth: opening %s database: %w", cfg.Driver, err)
	}

	if err = db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("auth: connecting to %s database: %w", cfg.Driver, err)
	}

	return &SQL{db: db, query: cfg.Query}, nil
}

// Required implements the [Authenticator] interface for *SQL.
func (a *SQL) Required() (ok bool) { return true }

// Verify implements the [Authenticator] interface for *SQL.  Query errors
// fail the verification instead of surfacing to the client.
func (a *SQL) Verify(ctx context.Context, username, password string) (ok bool) {
	var hash string
	err := a.db.QueryRowContext(ctx, a.query, username).Scan(&hash)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Error("auth: sql query for %q: %v", username, err)
		}

		return false
	}

	ok, err = VerifyHash(password, hash)
	if err != nil {
		log.Error("auth: verifying %q: %v", username, err)

		return false
	}

	return ok
}
