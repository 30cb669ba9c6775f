package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/ristretto"
	_ "modernc.org/sqlite"

	faults "github.com/folioforge/concierge/core/errors"
)

const (
	defaultNumCounters = 1e5
	defaultMaxCost     = 64 << 20 // 64MB hot tier
	defaultBufferItems = 64
)

// SQLiteStore is the durable Store: SQLite holds the source of truth,
// a ristretto hot tier serves repeat reads for active conversations.
// Version checks always go to SQLite so the cache can never admit a
// stale write.
type SQLiteStore struct {
	db    *sql.DB
	cache *ristretto.Cache
	path  string
}

// SQLiteConfig configures the durable store.
type SQLiteConfig struct {
	Path        string
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

// NewSQLiteStore opens (or creates) the conversation database at path.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}
	if cfg.NumCounters == 0 {
		cfg.NumCounters = defaultNumCounters
	}
	if cfg.MaxCost == 0 {
		cfg.MaxCost = defaultMaxCost
	}
	if cfg.BufferItems == 0 {
		cfg.BufferItems = defaultBufferItems
	}

	store := &SQLiteStore{path: cfg.Path}

	if err := store.initSQLite(cfg.Path); err != nil {
		return nil, fmt.Errorf("init sqlite: %w", err)
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		store.db.Close()
		return nil, fmt.Errorf("init cache: %w", err)
	}
	store.cache = cache

	return store, nil
}

func (s *SQLiteStore) initSQLite(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return fmt.Errorf("set busy timeout: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		conversation_id TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		payload         BLOB NOT NULL,
		version         INTEGER NOT NULL,
		updated_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user
		ON conversations(user_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("create schema: %w", err)
	}

	s.db = db
	return nil
}

// Get returns a snapshot, consulting the hot tier first.
func (s *SQLiteStore) Get(ctx context.Context, conversationID string) (*ConversationState, error) {
	if cached, ok := s.cache.Get(conversationID); ok {
		if st, ok := cached.(*ConversationState); ok {
			return st.Clone(), nil
		}
	}

	st, err := s.getCold(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	s.cache.Set(conversationID, st.Clone(), payloadCost(st))
	return st, nil
}

func (s *SQLiteStore) getCold(ctx context.Context, conversationID string) (*ConversationState, error) {
	var payload []byte
	var version int64

	row := s.db.QueryRowContext(ctx,
		`SELECT payload, version FROM conversations WHERE conversation_id = ?`,
		conversationID,
	)
	if err := row.Scan(&payload, &version); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}

	var st ConversationState
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", conversationID, err)
	}
	st.Version = version

	return &st, nil
}

// Commit applies the versioned write; the UPDATE's version predicate is
// the single-writer guard. The hot tier is refreshed only after the
// durable write lands.
func (s *SQLiteStore) Commit(ctx context.Context, newState *ConversationState) error {
	committed := newState.Clone()
	committed.Version = newState.Version + 1
	committed.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(committed)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}

	var res sql.Result
	if newState.Version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO conversations (conversation_id, user_id, payload, version, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(conversation_id) DO NOTHING`,
			committed.ConversationID, committed.UserID, payload, committed.Version,
			committed.UpdatedAt.Format(time.RFC3339Nano),
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE conversations SET payload = ?, version = ?, updated_at = ?
			 WHERE conversation_id = ? AND version = ?`,
			payload, committed.Version, committed.UpdatedAt.Format(time.RFC3339Nano),
			committed.ConversationID, newState.Version,
		)
	}
	if err != nil {
		return fmt.Errorf("write conversation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write conversation: %w", err)
	}
	if affected == 0 {
		return faults.ErrStateConflict
	}

	s.cache.Set(committed.ConversationID, committed, payloadCost(committed))
	return nil
}

// Close flushes the hot tier and closes the database.
func (s *SQLiteStore) Close() error {
	s.cache.Close()
	return s.db.Close()
}

// Wait blocks until pending cache writes are visible (for tests).
func (s *SQLiteStore) Wait() {
	s.cache.Wait()
}

func payloadCost(st *ConversationState) int64 {
	cost := int64(256)
	cost += int64(len(st.HistorySummary))
	for _, entry := range st.History {
		cost += int64(len(entry.Content)) + 16
	}
	for _, flow := range st.ActiveFlows {
		cost += 128
		if flow.PendingCall != nil {
			cost += int64(len(flow.PendingCall.Arguments))
		}
	}
	return cost
}
