package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"
)

var registrySchema = []string{`
CREATE TABLE IF NOT EXISTS models (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	country    TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	size       INTEGER NOT NULL,
	document   BLOB NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_models_name_created ON models (name, created_at)`,
}

// Entry describes a stored model without its document.
type Entry struct {
	ID        string
	Name      string
	Country   string
	CreatedAt time.Time
	Size      int
}

// Registry stores named model documents in SQLite.
type Registry struct {
	db    *sql.DB
	cache *lru.Cache[string, []byte]
}

// OpenRegistry opens or creates the registry database at path and keeps up
// to cacheSize documents in memory.
func OpenRegistry(path string, cacheSize int) (*Registry, error) {
	if cacheSize <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", cacheSize)
	}
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range registrySchema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create registry schema: %w", err)
		}
	}
	return &Registry{db: db, cache: cache}, nil
}

// Close closes the database.
func (r *Registry) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Save stores doc under name and returns the new model ID.
func (r *Registry) Save(ctx context.Context, name, country string, doc []byte) (string, error) {
	if name == "" {
		return "", fmt.Errorf("model name must not be empty")
	}
	id := uuid.New().String()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO models (id, name, country, created_at, size, document) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, country, time.Now().UnixNano(), len(doc), doc,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save model: %w", err)
	}
	r.cache.Add(id, doc)
	return id, nil
}

// Get returns the document stored under id.
func (r *Registry) Get(ctx context.Context, id string) ([]byte, error) {
	if doc, ok := r.cache.Get(id); ok {
		return doc, nil
	}
	var doc []byte
	err := r.db.QueryRowContext(ctx, `SELECT document FROM models WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	r.cache.Add(id, doc)
	return doc, nil
}

// Latest returns the newest model saved under name.
func (r *Registry) Latest(ctx context.Context, name string) (*Entry, []byte, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, country, created_at, size FROM models
		 WHERE name = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, name)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: no model named %q", ErrModelNotFound, name)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find latest model: %w", err)
	}
	doc, err := r.Get(ctx, e.ID)
	if err != nil {
		return nil, nil, err
	}
	return e, doc, nil
}

// List returns all entries, newest first.
func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, country, created_at, size FROM models ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	var created int64
	if err := s.Scan(&e.ID, &e.Name, &e.Country, &created, &e.Size); err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(0, created).UTC()
	return &e, nil
}
