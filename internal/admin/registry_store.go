package admin

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	luxgateway "github.com/upskiller-xyz/lux-gateway"
	"github.com/upskiller-xyz/lux-gateway/internal/registry"
)

// RegistryStore persists Service Registry overrides for runtime management
// APIs, the generalized form of the teacher's full-config snapshot store: a
// deployment with a stable Service Registry only ever needs to persist the
// handful of per-service base-URL overrides an operator has set at runtime,
// not the whole Config.
type RegistryStore interface {
	Save(overrides map[registry.Name]string) error
	Load() (map[registry.Name]string, bool, error)
	Delete() error
}

// RegistryResetter provides reset semantics for the registry override CRUD API.
type RegistryResetter interface {
	ResetOverrides() error
}

type sqlRegistryDialect string

const (
	registryDialectSQLite   sqlRegistryDialect = "sqlite"
	registryDialectPostgres sqlRegistryDialect = "postgres"
)

// SQLRegistryStore persists Service Registry overrides in SQLite/Postgres.
type SQLRegistryStore struct {
	db      *sql.DB
	dialect sqlRegistryDialect
}

func NewSQLiteRegistryStore(dsn string) (*SQLRegistryStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "luxgw-registry.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite registry store: %w", err)
	}
	s := &SQLRegistryStore{db: db, dialect: registryDialectSQLite}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func NewPostgresRegistryStore(dsn string) (*SQLRegistryStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres registry store: %w", err)
	}
	s := &SQLRegistryStore{db: db, dialect: registryDialectPostgres}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLRegistryStore) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s registry store: %w", s.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS registry_overrides (
	id INTEGER PRIMARY KEY,
	overrides_json TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`

	if s.dialect == registryDialectPostgres {
		ddl = `
CREATE TABLE IF NOT EXISTS registry_overrides (
	id SMALLINT PRIMARY KEY,
	overrides_json TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`
	}

	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize registry overrides schema: %w", err)
	}
	return nil
}

func (s *SQLRegistryStore) Save(overrides map[registry.Name]string) error {
	data, err := json.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("marshal registry overrides: %w", err)
	}

	upsert := `
INSERT INTO registry_overrides(id, overrides_json, updated_at)
VALUES(1, ?, ?)
ON CONFLICT(id) DO UPDATE SET overrides_json = excluded.overrides_json, updated_at = excluded.updated_at`

	if s.dialect == registryDialectPostgres {
		upsert = `
INSERT INTO registry_overrides(id, overrides_json, updated_at)
VALUES(1, $1, $2)
ON CONFLICT(id) DO UPDATE SET overrides_json = EXCLUDED.overrides_json, updated_at = EXCLUDED.updated_at`
	}

	if _, err := s.db.Exec(upsert, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("save registry overrides: %w", err)
	}
	return nil
}

func (s *SQLRegistryStore) Load() (map[registry.Name]string, bool, error) {
	query := `SELECT overrides_json FROM registry_overrides WHERE id = 1`
	row := s.db.QueryRow(query)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load registry overrides: %w", err)
	}

	var overrides map[registry.Name]string
	if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
		return nil, false, fmt.Errorf("decode registry overrides: %w", err)
	}
	return overrides, true, nil
}

func (s *SQLRegistryStore) Delete() error {
	query := `DELETE FROM registry_overrides WHERE id = 1`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("delete registry overrides: %w", err)
	}
	return nil
}

func (s *SQLRegistryStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RegistryManager connects runtime Service Registry override operations to
// optional persistent storage, replaying a persisted override set onto the
// Gateway's Registry at startup.
type RegistryManager struct {
	mu  sync.RWMutex
	gw  *luxgateway.Gateway
	store RegistryStore
}

func NewRegistryManager(gw *luxgateway.Gateway, store RegistryStore) (*RegistryManager, error) {
	if gw == nil {
		return nil, fmt.Errorf("gateway is required")
	}

	m := &RegistryManager{gw: gw, store: store}

	if store != nil {
		persisted, ok, err := store.Load()
		if err != nil {
			return nil, err
		}
		if ok {
			if err := m.applyOverrides(persisted); err != nil {
				return nil, fmt.Errorf("reload persisted registry overrides: %w", err)
			}
		}
	}

	return m, nil
}

// GetOverrides returns the Registry's current runtime overrides.
func (m *RegistryManager) GetOverrides() map[registry.Name]string {
	return m.gw.Registry().Overrides()
}

// ReloadOverrides replaces the Registry's runtime overrides with overrides
// and persists the new set.
func (m *RegistryManager) ReloadOverrides(overrides map[registry.Name]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.applyOverrides(overrides); err != nil {
		return err
	}
	if m.store != nil {
		if err := m.store.Save(overrides); err != nil {
			return err
		}
	}
	return nil
}

// ResetOverrides clears every runtime override, returning the Registry to
// its deployment-mode defaults.
func (m *RegistryManager) ResetOverrides() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range registry.All {
		if err := m.gw.Registry().SetOverride(n, ""); err != nil {
			return err
		}
	}
	if m.store != nil {
		if err := m.store.Delete(); err != nil {
			return err
		}
	}
	return nil
}

func (m *RegistryManager) applyOverrides(overrides map[registry.Name]string) error {
	for _, n := range registry.All {
		url := overrides[n]
		if err := m.gw.Registry().SetOverride(n, url); err != nil {
			return err
		}
	}
	return nil
}
