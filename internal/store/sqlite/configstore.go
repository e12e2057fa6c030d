package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"llm-crypto-trader/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// maxConfigVersions is the retention cap; saving past it evicts the
// oldest versions.
const maxConfigVersions = 50

// ConfigStore keeps versioned bot configurations in SQLite. The version
// counter is monotonic; a Restore produces a new version rather than
// rewinding.
type ConfigStore struct {
	db *sql.DB
}

// NewConfigStore opens (or creates) the config database.
func NewConfigStore(dbPath string) (*ConfigStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open config store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS bot_configs (
			version    INTEGER PRIMARY KEY,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite config schema: %w", err)
	}

	log.Printf("[configstore] opened %s", dbPath)
	return &ConfigStore{db: db}, nil
}

// Current returns the newest config version. An empty store is seeded
// with the defaults as version 1.
func (s *ConfigStore) Current() (model.BotConfig, error) {
	var data string
	var version int
	err := s.db.QueryRow(`SELECT version, data FROM bot_configs ORDER BY version DESC LIMIT 1`).
		Scan(&version, &data)
	if err == sql.ErrNoRows {
		return s.Save(model.DefaultBotConfig())
	}
	if err != nil {
		return model.BotConfig{}, fmt.Errorf("sqlite current config: %w", err)
	}
	return decodeConfig(version, data)
}

// Save writes cfg as a new version with the next counter value and prunes
// versions past the retention cap. The stored config's Version and
// UpdatedAt fields are set here, not by the caller.
func (s *ConfigStore) Save(cfg model.BotConfig) (model.BotConfig, error) {
	if err := cfg.Validate(); err != nil {
		return model.BotConfig{}, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return model.BotConfig{}, fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	var maxVersion sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(version) FROM bot_configs`).Scan(&maxVersion); err != nil {
		return model.BotConfig{}, fmt.Errorf("sqlite max version: %w", err)
	}

	cfg.Version = int(maxVersion.Int64) + 1
	cfg.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(cfg)
	if err != nil {
		return model.BotConfig{}, fmt.Errorf("marshal config: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO bot_configs (version, data, created_at) VALUES (?, ?, ?)`,
		cfg.Version, string(data), cfg.UpdatedAt.Unix(),
	); err != nil {
		return model.BotConfig{}, fmt.Errorf("sqlite insert config: %w", err)
	}

	// Evict oldest versions past the cap
	if _, err := tx.Exec(
		`DELETE FROM bot_configs WHERE version NOT IN (SELECT version FROM bot_configs ORDER BY version DESC LIMIT ?)`,
		maxConfigVersions,
	); err != nil {
		return model.BotConfig{}, fmt.Errorf("sqlite prune configs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.BotConfig{}, fmt.Errorf("sqlite commit config: %w", err)
	}
	return cfg, nil
}

// Versions lists stored configs newest first.
func (s *ConfigStore) Versions() ([]model.BotConfig, error) {
	rows, err := s.db.Query(`SELECT version, data FROM bot_configs ORDER BY version DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list configs: %w", err)
	}
	defer rows.Close()

	var out []model.BotConfig
	for rows.Next() {
		var version int
		var data string
		if err := rows.Scan(&version, &data); err != nil {
			return nil, fmt.Errorf("sqlite scan config: %w", err)
		}
		cfg, err := decodeConfig(version, data)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// Restore copies a stored version's fields into a new version entry; the
// counter never rewinds.
func (s *ConfigStore) Restore(version int) (model.BotConfig, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM bot_configs WHERE version = ?`, version).Scan(&data)
	if err == sql.ErrNoRows {
		return model.BotConfig{}, fmt.Errorf("config version %d not found", version)
	}
	if err != nil {
		return model.BotConfig{}, fmt.Errorf("sqlite restore config: %w", err)
	}

	cfg, err := decodeConfig(version, data)
	if err != nil {
		return model.BotConfig{}, err
	}
	return s.Save(cfg)
}

func decodeConfig(version int, data string) (model.BotConfig, error) {
	var cfg model.BotConfig
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return model.BotConfig{}, fmt.Errorf("unmarshal config v%d: %w", version, err)
	}
	cfg.Version = version
	return cfg, nil
}

// Close closes the store.
func (s *ConfigStore) Close() error {
	return s.db.Close()
}
