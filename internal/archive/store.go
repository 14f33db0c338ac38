package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"

	"github.com/packratbot/packrat/internal/pkg/logs"
)

// Archive kinds.
const (
	KindText       = "text"
	KindLink       = "link"
	KindMedia      = "media"
	KindMediaBatch = "media_batch"
)

type Archive struct {
	ID         int64
	ChannelID  string
	ChatID     string
	UserID     string
	Kind       string
	Title      string
	Content    string
	SourceName string
	SourceID   string
	SourceType string
	Forwarded  bool
	ItemCount  int
	FileIDs    []string
	PagePath   string
	CreatedAt  time.Time
}

type Note struct {
	ID        int64
	ArchiveID int64
	Content   string
	CreatedAt time.Time
}

type StoreStats struct {
	Archives int64
	Notes    int64
	Tags     int64
}

// Store persists archives, their notes, and their tags in SQLite.
type Store struct {
	path string
	db   *sql.DB
}

func NewStore(dbPath string) *Store {
	return &Store{path: dbPath}
}

func (s *Store) Init(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS archives (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			title TEXT,
			content TEXT,
			source_name TEXT,
			source_id TEXT,
			source_type TEXT,
			forwarded INTEGER NOT NULL DEFAULT 0,
			item_count INTEGER NOT NULL DEFAULT 0,
			file_ids TEXT,
			page_path TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_archives_created_at ON archives(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_archives_chat ON archives(chat_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			archive_id INTEGER NOT NULL REFERENCES archives(id),
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_archive ON notes(archive_id)`,
		`CREATE TABLE IF NOT EXISTS tags (
			archive_id INTEGER NOT NULL REFERENCES archives(id),
			tag TEXT NOT NULL,
			PRIMARY KEY (archive_id, tag)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("create schema: %w", err)
		}
	}

	s.db = db
	logs.CtxInfo(ctx, "[archive] store ready at %s", s.path)
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) SaveArchive(ctx context.Context, a *Archive) (int64, error) {
	if a == nil {
		return 0, fmt.Errorf("archive cannot be nil")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	fileIDs := ""
	if len(a.FileIDs) > 0 {
		raw, err := sonic.Marshal(a.FileIDs)
		if err != nil {
			return 0, fmt.Errorf("marshal file ids: %w", err)
		}
		fileIDs = string(raw)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO archives (
			channel_id, chat_id, user_id, kind, title, content,
			source_name, source_id, source_type, forwarded,
			item_count, file_ids, page_path, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ChannelID, a.ChatID, a.UserID, a.Kind, a.Title, a.Content,
		a.SourceName, a.SourceID, a.SourceType, boolToInt(a.Forwarded),
		a.ItemCount, fileIDs, a.PagePath, a.CreatedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("insert archive: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read archive id: %w", err)
	}
	a.ID = id
	return id, nil
}

func (s *Store) GetArchive(ctx context.Context, id int64) (*Archive, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, channel_id, chat_id, user_id, kind, title, content,
		       source_name, source_id, source_type, forwarded,
		       item_count, file_ids, page_path, created_at
		FROM archives WHERE id = ?
	`, id)

	a, err := scanArchive(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	return a, nil
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]*Archive, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, chat_id, user_id, kind, title, content,
		       source_name, source_id, source_type, forwarded,
		       item_count, file_ids, page_path, created_at
		FROM archives ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	defer rows.Close()

	var out []*Archive
	for rows.Next() {
		a, err := scanArchive(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// FindByFileID reports an earlier archive holding the same provider file,
// used for duplicate detection before saving media again.
func (s *Store) FindByFileID(ctx context.Context, fileID string) (*Archive, error) {
	if fileID == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, chat_id, user_id, kind, title, content,
		       source_name, source_id, source_type, forwarded,
		       item_count, file_ids, page_path, created_at
		FROM archives
		WHERE file_ids LIKE ?
		ORDER BY id ASC LIMIT 1
	`, "%"+fileID+"%")
	if err != nil {
		return nil, fmt.Errorf("query by file id: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanArchive(rows)
}

func (s *Store) AddNote(ctx context.Context, archiveID int64, content string) (int64, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, fmt.Errorf("note content cannot be empty")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (archive_id, content, created_at) VALUES (?, ?, ?)
	`, archiveID, content, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("insert note: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) GetNotes(ctx context.Context, archiveID int64) ([]*Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, archive_id, content, created_at
		FROM notes WHERE archive_id = ? ORDER BY id ASC
	`, archiveID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var out []*Note
	for rows.Next() {
		var n Note
		var created int64
		if err := rows.Scan(&n.ID, &n.ArchiveID, &n.Content, &created); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.CreatedAt = time.Unix(created, 0)
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (s *Store) TagArchive(ctx context.Context, archiveID int64, tags []string) error {
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.TrimPrefix(tag, "#"))
		if tag == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO tags (archive_id, tag) VALUES (?, ?)
		`, archiveID, strings.ToLower(tag)); err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	}
	return nil
}

func (s *Store) TagsFor(ctx context.Context, archiveID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag FROM tags WHERE archive_id = ? ORDER BY tag
	`, archiveID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (StoreStats, error) {
	var stats StoreStats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archives`).Scan(&stats.Archives); err != nil {
		return stats, fmt.Errorf("count archives: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&stats.Notes); err != nil {
		return stats, fmt.Errorf("count notes: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags`).Scan(&stats.Tags); err != nil {
		return stats, fmt.Errorf("count tags: %w", err)
	}
	return stats, nil
}

func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArchive(row rowScanner) (*Archive, error) {
	var a Archive
	var forwarded int
	var fileIDs string
	var created int64
	err := row.Scan(&a.ID, &a.ChannelID, &a.ChatID, &a.UserID, &a.Kind,
		&a.Title, &a.Content, &a.SourceName, &a.SourceID, &a.SourceType,
		&forwarded, &a.ItemCount, &fileIDs, &a.PagePath, &created)
	if err != nil {
		return nil, err
	}

	a.Forwarded = forwarded != 0
	a.CreatedAt = time.Unix(created, 0)
	if fileIDs != "" {
		if err := sonic.Unmarshal([]byte(fileIDs), &a.FileIDs); err != nil {
			return nil, fmt.Errorf("unmarshal file ids: %w", err)
		}
	}
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
