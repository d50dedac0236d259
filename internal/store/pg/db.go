// Package pg implements store.Stores against Postgres using database/sql and
// the pgx stdlib driver: context-scoped raw SQL, uuid.Must(uuid.NewV7())
// identifiers, ON CONFLICT upserts.
package pg

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pingwatch/pingwatch/internal/store"
)

// OpenDB opens the Postgres connection pool backing every store in this
// package. dsn is a standard postgres:// connection string.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	return db, nil
}

func genID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewStores wires every Postgres store implementation into a store.Stores
// aggregate.
func NewStores(db *sql.DB) *store.Stores {
	return &store.Stores{
		Users:         &UserStore{db: db},
		AuthSessions:  &AuthSessionStore{db: db},
		Devices:       &DeviceStore{db: db},
		Sessions:      &SessionStore{db: db},
		Events:        &EventStore{db: db},
		TelegramLinks: &TelegramLinkStore{db: db},
		Endpoints:     &EndpointStore{db: db},
	}
}
