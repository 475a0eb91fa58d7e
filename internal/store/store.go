// Package store persists knowledge seeds, decision records and
// conversation history in SQLite.
package store

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"evai/internal/logging"
	"evai/internal/types"
)

// LocalStore is the SQLite-backed persistence layer. All pipeline state
// that survives a restart lives here: the seed library, per-seed
// embeddings, the decision log and conversation history.
type LocalStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	dbPath    string
	vectorExt bool // sqlite-vec available
}

// NewLocalStore initializes the SQLite database at the given path.
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set journal_mode=WAL: %v", err)
	}

	store := &LocalStore{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	store.detectVecExtension()
	if store.vectorExt {
		logging.Store("sqlite-vec extension detected and enabled")
	} else {
		logging.StoreDebug("sqlite-vec not available; using in-process cosine scan")
	}

	logging.Store("LocalStore ready at %s", path)
	return store, nil
}

// detectVecExtension attempts to create a vec0 virtual table to see if
// sqlite-vec is available on this driver.
func (s *LocalStore) detectVecExtension() {
	if _, err := s.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])"); err == nil {
		s.vectorExt = true
		_, _ = s.db.Exec("DROP TABLE IF EXISTS vec_probe")
		return
	}
	s.vectorExt = false
}

// initialize creates the required tables.
func (s *LocalStore) initialize() error {
	seedTable := `
	CREATE TABLE IF NOT EXISTS emotion_seeds (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		label TEXT,
		triggers TEXT,
		emotions TEXT,
		response_text TEXT NOT NULL,
		base_confidence REAL DEFAULT 0.5,
		usage_count INTEGER DEFAULT 0,
		last_used DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		learned INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_seeds_type ON emotion_seeds(type);
	CREATE INDEX IF NOT EXISTS idx_seeds_label ON emotion_seeds(label);
	`

	embeddingTable := `
	CREATE TABLE IF NOT EXISTS seed_embeddings (
		seed_id TEXT PRIMARY KEY,
		embedding TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	decisionTable := `
	CREATE TABLE IF NOT EXISTS decision_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		path TEXT NOT NULL,
		rule_id TEXT,
		label TEXT,
		confidence REAL,
		response TEXT,
		blocked INTEGER DEFAULT 0,
		healed INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_conversation ON decision_log(conversation_id);
	`

	turnTable := `
	CREATE TABLE IF NOT EXISTS conversation_turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		turn_number INTEGER NOT NULL,
		user_input TEXT,
		response TEXT,
		label TEXT,
		confidence REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_turns_conversation ON conversation_turns(conversation_id);
	`

	for _, table := range []string{seedTable, embeddingTable, decisionTable, turnTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// ========== Seed Library ==========

// UpsertSeed inserts or replaces a knowledge seed.
func (s *LocalStore) UpsertSeed(seed types.KnowledgeSeed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	triggersJSON, _ := json.Marshal(seed.Triggers)
	emotionsJSON, _ := json.Marshal(seed.Emotions)

	createdAt := seed.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var lastUsed interface{}
	if !seed.LastUsed.IsZero() {
		lastUsed = seed.LastUsed
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO emotion_seeds
		 (id, type, label, triggers, emotions, response_text, base_confidence, usage_count, last_used, created_at, learned)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seed.ID, seed.Type, seed.Label, string(triggersJSON), string(emotionsJSON),
		seed.ResponseText, seed.BaseConfidence, seed.UsageCount, lastUsed, createdAt, boolToInt(seed.Learned),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert seed: %w", err)
	}
	return nil
}

// GetSeed loads one seed by ID.
func (s *LocalStore) GetSeed(id string) (*types.KnowledgeSeed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, type, label, triggers, emotions, response_text, base_confidence, usage_count, last_used, created_at, learned
		 FROM emotion_seeds WHERE id = ?`, id)

	seed, err := scanSeed(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("seed %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return seed, nil
}

// ListSeeds returns the full seed library.
func (s *LocalStore) ListSeeds() ([]types.KnowledgeSeed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, type, label, triggers, emotions, response_text, base_confidence, usage_count, last_used, created_at, learned
		 FROM emotion_seeds ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seeds []types.KnowledgeSeed
	for rows.Next() {
		seed, err := scanSeed(rows)
		if err != nil {
			continue
		}
		seeds = append(seeds, *seed)
	}
	return seeds, rows.Err()
}

// DeleteSeed removes a seed and its embedding.
func (s *LocalStore) DeleteSeed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM emotion_seeds WHERE id = ?", id); err != nil {
		return err
	}
	if s.vectorExt {
		_, _ = s.db.Exec("DELETE FROM vec_seeds WHERE seed_id = ?", id)
	}
	_, err := s.db.Exec("DELETE FROM seed_embeddings WHERE seed_id = ?", id)
	return err
}

// BumpUsage increments usage_count and stamps last_used for the given seeds.
func (s *LocalStore) BumpUsage(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		if _, err := s.db.Exec(
			"UPDATE emotion_seeds SET usage_count = usage_count + 1, last_used = ? WHERE id = ?",
			now, id,
		); err != nil {
			return fmt.Errorf("failed to bump usage for %s: %w", id, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSeed(row rowScanner) (*types.KnowledgeSeed, error) {
	var seed types.KnowledgeSeed
	var triggersJSON, emotionsJSON string
	var lastUsed sql.NullTime
	var learned int

	err := row.Scan(&seed.ID, &seed.Type, &seed.Label, &triggersJSON, &emotionsJSON,
		&seed.ResponseText, &seed.BaseConfidence, &seed.UsageCount, &lastUsed, &seed.CreatedAt, &learned)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(triggersJSON), &seed.Triggers)
	json.Unmarshal([]byte(emotionsJSON), &seed.Emotions)
	if lastUsed.Valid {
		seed.LastUsed = lastUsed.Time
	}
	seed.Learned = learned != 0
	return &seed, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ========== Embeddings ==========

// StoreEmbedding saves a seed's embedding vector as JSON, and mirrors it
// into the vec0 table when sqlite-vec is available.
func (s *LocalStore) StoreEmbedding(seedID string, vector []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vecJSON, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(
		`INSERT OR REPLACE INTO seed_embeddings (seed_id, embedding, dimensions) VALUES (?, ?, ?)`,
		seedID, string(vecJSON), len(vector),
	); err != nil {
		return err
	}

	if s.vectorExt {
		if err := s.upsertVecRow(seedID, vector); err != nil {
			logging.Get(logging.CategoryStore).Warn("Failed to mirror embedding into vec_seeds: %v", err)
		}
	}
	return nil
}

// upsertVecRow keeps the vec0 shadow table in sync with seed_embeddings.
// The table is created lazily because its dimension comes from the first
// stored vector.
func (s *LocalStore) upsertVecRow(seedID string, vector []float64) error {
	if _, err := s.db.Exec(fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS vec_seeds USING vec0(embedding float[%d], seed_id TEXT)",
		len(vector),
	)); err != nil {
		return err
	}
	if _, err := s.db.Exec("DELETE FROM vec_seeds WHERE seed_id = ?", seedID); err != nil {
		return err
	}
	_, err := s.db.Exec(
		"INSERT INTO vec_seeds (embedding, seed_id) VALUES (?, ?)",
		encodeFloat32Blob(vector), seedID,
	)
	return err
}

// Similarities computes cosine similarity between the query vector and
// every stored seed embedding. With sqlite-vec the distance runs inside
// SQLite; otherwise the JSON embeddings are scanned in process.
func (s *LocalStore) Similarities(query []float64) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.vectorExt {
		similarities, err := s.vecSimilarities(query)
		if err == nil {
			return similarities, nil
		}
		logging.StoreDebug("vec search failed, falling back to cosine scan: %v", err)
	}

	rows, err := s.db.Query("SELECT seed_id, embedding FROM seed_embeddings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	similarities := make(map[string]float64)
	for rows.Next() {
		var seedID, vecJSON string
		if err := rows.Scan(&seedID, &vecJSON); err != nil {
			continue
		}
		var vector []float64
		if err := json.Unmarshal([]byte(vecJSON), &vector); err != nil {
			continue
		}
		similarities[seedID] = CosineSimilarity(query, vector)
	}
	return similarities, rows.Err()
}

// vecSimilarities scores every seed with sqlite-vec's cosine distance.
func (s *LocalStore) vecSimilarities(query []float64) (map[string]float64, error) {
	rows, err := s.db.Query(
		"SELECT seed_id, vec_distance_cosine(embedding, ?) FROM vec_seeds",
		encodeFloat32Blob(query),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	similarities := make(map[string]float64)
	for rows.Next() {
		var seedID string
		var distance float64
		if err := rows.Scan(&seedID, &distance); err != nil {
			continue
		}
		similarities[seedID] = 1.0 - distance
	}
	return similarities, rows.Err()
}

// encodeFloat32Blob encodes a vector as the little-endian float32 blob
// sqlite-vec expects.
func encodeFloat32Blob(vector []float64) []byte {
	f32 := make([]float32, len(vector))
	for i, v := range vector {
		f32[i] = float32(v)
	}
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, f32); err != nil {
		return nil
	}
	return buf.Bytes()
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ========== Decision Log ==========

// DecisionRecord is one persisted pipeline outcome.
type DecisionRecord struct {
	ID             int64
	ConversationID string
	Path           types.DecisionPath
	RuleID         string
	Label          string
	Confidence     float64
	Response       string
	Blocked        bool
	Healed         bool
	CreatedAt      time.Time
}

// RecordDecision appends a decision to the log.
func (s *LocalStore) RecordDecision(rec DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO decision_log (conversation_id, path, rule_id, label, confidence, response, blocked, healed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ConversationID, string(rec.Path), rec.RuleID, rec.Label, rec.Confidence,
		rec.Response, boolToInt(rec.Blocked), boolToInt(rec.Healed),
	)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

// ListDecisions returns the most recent decisions for a conversation.
func (s *LocalStore) ListDecisions(conversationID string, limit int) ([]DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, conversation_id, path, rule_id, label, confidence, response, blocked, healed, created_at
		 FROM decision_log WHERE conversation_id = ? ORDER BY id DESC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []DecisionRecord
	for rows.Next() {
		var rec DecisionRecord
		var path string
		var blocked, healed int
		if err := rows.Scan(&rec.ID, &rec.ConversationID, &path, &rec.RuleID, &rec.Label,
			&rec.Confidence, &rec.Response, &blocked, &healed, &rec.CreatedAt); err != nil {
			continue
		}
		rec.Path = types.DecisionPath(path)
		rec.Blocked = blocked != 0
		rec.Healed = healed != 0
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ========== Conversation History ==========

// StoreTurn records a completed conversation turn.
func (s *LocalStore) StoreTurn(conversationID string, turnNumber int, userInput, response, label string, confidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO conversation_turns (conversation_id, turn_number, user_input, response, label, confidence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		conversationID, turnNumber, userInput, response, label, confidence,
	)
	return err
}

// TurnCount returns how many turns a conversation has.
func (s *LocalStore) TurnCount(conversationID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM conversation_turns WHERE conversation_id = ?",
		conversationID,
	).Scan(&count)
	return count, err
}

// Turn is one stored conversation turn.
type Turn struct {
	TurnNumber int
	UserInput  string
	Response   string
	Label      string
	Confidence float64
	CreatedAt  time.Time
}

// History returns the most recent turns, newest first.
func (s *LocalStore) History(conversationID string, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT turn_number, user_input, response, label, confidence, created_at
		 FROM conversation_turns WHERE conversation_id = ?
		 ORDER BY turn_number DESC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.TurnNumber, &t.UserInput, &t.Response, &t.Label, &t.Confidence, &t.CreatedAt); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// ========== Stats ==========

// GetStats returns row counts per table.
func (s *LocalStore) GetStats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	for _, table := range []string{"emotion_seeds", "seed_embeddings", "decision_log", "conversation_turns"} {
		var count int64
		if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			continue
		}
		stats[table] = count
	}
	return stats, nil
}
