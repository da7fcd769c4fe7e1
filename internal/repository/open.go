package repository

import (
	"context"
	"fmt"

	"quicknotes/internal/config"

	"github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"
	"github.com/golang/glog"
)

// Stores bundles the repositories of one storage backend.
type Stores struct {
	Users UserRepository
	Notes NoteRepository
	close func() error
}

func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open connects to the backend named by cfg.Driver. For CouchDB the database
// is created when missing.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Stores, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		glog.Infof("Opened SQLite database at %s", cfg.SQLitePath)
		return &Stores{
			Users: NewSQLiteUserRepository(db),
			Notes: NewSQLiteNoteRepository(db),
			close: db.Close,
		}, nil

	case config.DriverCouch:
		client, err := kivik.New("couch", cfg.CouchURL())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to CouchDB: %w", err)
		}

		exists, err := client.DBExists(ctx, cfg.Name)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to check database existence: %w", err)
		}
		if !exists {
			if err := client.CreateDB(ctx, cfg.Name); err != nil {
				client.Close()
				return nil, fmt.Errorf("failed to create database: %w", err)
			}
			glog.Infof("Created database: %s", cfg.Name)
		}

		glog.Infof("Connected to CouchDB at %s:%s", cfg.Host, cfg.Port)
		return &Stores{
			Users: NewUserRepository(client, cfg.Name),
			Notes: NewNoteRepository(client, cfg.Name),
			close: client.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
