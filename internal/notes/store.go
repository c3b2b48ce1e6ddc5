// Package notes provides durable, typed note storage across sessions.
package notes

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Type classifies a note by what it records.
type Type string

const (
	TypeBlocker    Type = "blocker"    // Problems that must be resolved
	TypeAction     Type = "action"     // Concrete follow-up work
	TypeTaskState  Type = "task_state" // Progress on long-running tasks
	TypeConclusion Type = "conclusion" // Settled findings
	TypeGeneral    Type = "general"    // Everything else
)

// Valid reports whether t is a recognized note type.
func (t Type) Valid() bool {
	switch t {
	case TypeBlocker, TypeAction, TypeTaskState, TypeConclusion, TypeGeneral:
		return true
	}
	return false
}

// Note is a durable record persisted across sessions.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Type      Type      `json:"note_type"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary aggregates store-wide note statistics.
type Summary struct {
	TotalNotes       int            `json:"total_notes"`
	TypeDistribution map[string]int `json:"type_distribution"`
	RecentNotes      []*Note        `json:"recent_notes"`
}

// Store manages note persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a note store using the given database path.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			note_type TEXT NOT NULL,
			tags TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_notes_type ON notes(note_type);
		CREATE INDEX IF NOT EXISTS idx_notes_updated ON notes(updated_at DESC);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create persists a new note. Unrecognized note types fall back to
// general rather than failing; the caller's intent to record something
// outweighs classification accuracy.
func (s *Store) Create(title, content string, noteType Type, tags []string) (*Note, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if !noteType.Valid() {
		noteType = TypeGeneral
	}

	now := time.Now().UTC()
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	note := &Note{
		ID:        id.String(),
		Title:     title,
		Content:   content,
		Type:      noteType,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO notes (id, title, content, note_type, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, note.ID, note.Title, note.Content, string(note.Type), string(tagsJSON),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}

	return note, nil
}

// Get retrieves a note by ID.
func (s *Store) Get(id string) (*Note, error) {
	return scanNote(s.db.QueryRow(`
		SELECT id, title, content, note_type, tags, created_at, updated_at
		FROM notes WHERE id = ?
	`, id))
}

// List retrieves notes, optionally filtered by type, newest first.
// A limit <= 0 means no limit.
func (s *Store) List(noteType Type, limit int) ([]*Note, error) {
	query := `
		SELECT id, title, content, note_type, tags, created_at, updated_at
		FROM notes`
	var args []any
	if noteType != "" {
		query += ` WHERE note_type = ?`
		args = append(args, string(noteType))
	}
	query += ` ORDER BY updated_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return collectNotes(rows)
}

// Search finds notes whose title or content contains the query,
// optionally restricted to a type, most recently updated first.
func (s *Store) Search(query string, noteType Type, limit int) ([]*Note, error) {
	pattern := "%" + query + "%"
	sqlQuery := `
		SELECT id, title, content, note_type, tags, created_at, updated_at
		FROM notes
		WHERE (title LIKE ? OR content LIKE ?)`
	args := []any{pattern, pattern}
	if noteType != "" {
		sqlQuery += ` AND note_type = ?`
		args = append(args, string(noteType))
	}
	sqlQuery += ` ORDER BY updated_at DESC`
	if limit <= 0 {
		limit = 50
	}
	sqlQuery += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return collectNotes(rows)
}

// Summarize returns store-wide statistics and the most recent notes.
func (s *Store) Summarize() (*Summary, error) {
	sum := &Summary{TypeDistribution: make(map[string]int)}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM notes`).Scan(&sum.TotalNotes); err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}

	rows, err := s.db.Query(`SELECT note_type, COUNT(*) FROM notes GROUP BY note_type`)
	if err != nil {
		return nil, fmt.Errorf("distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var nt string
		var count int
		if err := rows.Scan(&nt, &count); err != nil {
			continue
		}
		sum.TypeDistribution[nt] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	recent, err := s.List("", 5)
	if err != nil {
		return nil, err
	}
	sum.RecentNotes = recent

	return sum, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*Note, error) {
	var n Note
	var typeStr, createdStr, updatedStr string
	var tagsJSON sql.NullString

	err := row.Scan(&n.ID, &n.Title, &n.Content, &typeStr, &tagsJSON, &createdStr, &updatedStr)
	if err != nil {
		return nil, err
	}

	n.Type = Type(typeStr)
	if tagsJSON.Valid && tagsJSON.String != "" {
		// Unknown or corrupt tag payloads degrade to no tags.
		_ = json.Unmarshal([]byte(tagsJSON.String), &n.Tags)
	}
	n.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	n.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)

	return &n, nil
}

func collectNotes(rows *sql.Rows) ([]*Note, error) {
	var out []*Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
