// store.go - Kern-Datenbank-Funktionen
// Enthaelt: Store struct, New, Connect, Connected, Close, Schema-Init

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite-Treiber registrieren
)

// Store umhuellt die SQLite-Verbindung fuer die Vorhersage-Historie.
// Die Verbindung wird lazy aufgebaut: Der Dienst startet auch ohne
// erreichbare Datenbank, Persistenz ist dann best-effort.
// SQLite verwaltet sein eigenes Locking fuer konkurrierende Zugriffe;
// WAL-Modus erlaubt Lesern, Schreiber nicht zu blockieren.
type Store struct {
	path string

	mu   sync.Mutex
	conn *sql.DB
}

// New erstellt einen Store ohne Verbindungsaufbau
func New(path string) *Store {
	return &Store{path: path}
}

// Connect baut die Verbindung auf und initialisiert das Schema.
// Wiederholte Aufrufe auf einer offenen Verbindung sind no-ops.
func (s *Store) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked()
}

func (s *Store) connectLocked() error {
	if s.conn != nil {
		return nil
	}

	// Elternverzeichnis fuer dateibasierte Pfade anlegen
	if dir := filepath.Dir(s.path); dir != "" && dir != "." && s.path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", s.path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	if err := initSchema(conn); err != nil {
		conn.Close()
		return fmt.Errorf("initialize database: %w", err)
	}

	s.conn = conn
	slog.Info("datenbank verbunden", "path", s.path)
	return nil
}

// ensure liefert die Verbindung und baut sie bei Bedarf auf
func (s *Store) ensure() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.connectLocked(); err != nil {
		return nil, err
	}
	return s.conn, nil
}

// Connected prueft, ob die Verbindung offen und erreichbar ist.
// Es wird kein Verbindungsaufbau ausgeloest.
func (s *Store) Connected() bool {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	return conn != nil && conn.Ping() == nil
}

// Close schliesst die Datenbankverbindung
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	_, _ = s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	err := s.conn.Close()
	s.conn = nil
	return err
}

// initSchema initialisiert das Datenbankschema
func initSchema(conn *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS predictions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		image_name TEXT NOT NULL,
		prediction TEXT NOT NULL,
		confidence REAL,
		top_5_predictions TEXT,
		image_size INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_predictions_timestamp
		ON predictions(timestamp);
	`
	if _, err := conn.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
