package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/forPelevin/debatescribe/internal/ports"
	"github.com/forPelevin/debatescribe/internal/types"
)

const schema = `
	PRAGMA busy_timeout       = 10000;
	PRAGMA journal_mode       = WAL;
	PRAGMA synchronous        = NORMAL;
	PRAGMA temp_store         = MEMORY;

	create table if not exists transcripts (
		blake3_hash text not null,
		engine text not null,
		filename text not null,
		duration_ms integer not null default 0,
		text text not null,
		language text not null default '',
		segments_json text not null,
		created_at text not null,
		primary key (blake3_hash, engine)
	);

	create table if not exists runs (
		id text primary key not null,
		started_at text not null,
		finished_at text,
		files_total integer not null default 0,
		files_ok integer not null default 0,
		files_failed integer not null default 0
	);`

type SQLiteStore struct {
	db *sql.DB
}

var _ ports.TranscriptCache = (*SQLiteStore)(nil)

func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite cache: %w", err)
	}
	// one writer at a time; workers serialize here instead of on SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite cache: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, hash, engine string) (types.Transcript, bool, error) {
	var (
		tr       types.Transcript
		segsJSON string
	)
	err := s.db.
		QueryRowContext(
			ctx,
			"select text, language, segments_json from transcripts where blake3_hash = $1 and engine = $2",
			hash,
			engine,
		).
		Scan(&tr.Text, &tr.Language, &segsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Transcript{}, false, nil
	}
	if err != nil {
		return types.Transcript{}, false, fmt.Errorf("get transcript by hash: %w", err)
	}
	if err := json.Unmarshal([]byte(segsJSON), &tr.Segments); err != nil {
		return types.Transcript{}, false, fmt.Errorf("decoding cached segments: %w", err)
	}
	return tr, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, e ports.CacheEntry) error {
	segs := e.Transcript.Segments
	if segs == nil {
		segs = []types.Segment{}
	}
	b, err := json.Marshal(segs)
	if err != nil {
		return fmt.Errorf("encoding segments for cache: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		insert into transcripts (blake3_hash, engine, filename, duration_ms, text, language, segments_json, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		on conflict (blake3_hash, engine) do update set
			filename = excluded.filename,
			duration_ms = excluded.duration_ms,
			text = excluded.text,
			language = excluded.language,
			segments_json = excluded.segments_json,
			created_at = excluded.created_at
	`,
		e.Hash,
		e.Engine,
		e.Filename,
		e.Duration.Milliseconds(),
		e.Transcript.Text,
		e.Transcript.Language,
		string(b),
		now(),
	)
	if err != nil {
		return fmt.Errorf("persisting transcript into sqlite: %w", err)
	}
	return nil
}

// StartRun records the beginning of a batch and returns its id.
func (s *SQLiteStore) StartRun(ctx context.Context, filesTotal int) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"insert into runs (id, started_at, files_total) values ($1, $2, $3)",
		id, now(), filesTotal,
	)
	if err != nil {
		return "", fmt.Errorf("recording run start: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id string, ok, failed int) error {
	res, err := s.db.ExecContext(ctx, `
		update runs
		set finished_at = $1, files_ok = $2, files_failed = $3
		where id = $4
	`, now(), ok, failed, id)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("recording run finish: unknown run %s", id)
	}
	return nil
}

// Run is one row of the batch history.
type Run struct {
	ID          string
	StartedAt   string
	FinishedAt  string
	FilesTotal  int
	FilesOK     int
	FilesFailed int
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Run, error) {
	var (
		r        Run
		finished sql.NullString
	)
	err := s.db.
		QueryRowContext(ctx,
			"select id, started_at, finished_at, files_total, files_ok, files_failed from runs where id = $1",
			id,
		).
		Scan(&r.ID, &r.StartedAt, &finished, &r.FilesTotal, &r.FilesOK, &r.FilesFailed)
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	r.FinishedAt = finished.String
	return r, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
