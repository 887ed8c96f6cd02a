// Package modulestore is the coordinator's content-addressed cache of
// guest bytecode modules: a sqlite index over a flat directory of
// module images, fed by local "init <path>" commands and by optional
// OCI registry pulls.
package modulestore

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/replicode/replicode/internal/errx"
)

// Metadata describes one cached module.
type Metadata struct {
	Digest    string
	Size      int64
	Origin    string // "local" or an OCI reference
	CreatedAt time.Time
}

// Store is a sqlite-indexed, content-addressed module cache rooted at a
// cache directory.
type Store struct {
	dir string
	db  *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS modules (
	digest     TEXT PRIMARY KEY,
	size       INTEGER NOT NULL,
	origin     TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`

// Open opens (creating if necessary) the sqlite index at
// <dir>/index.sqlite and ensures the cache directory exists.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errx.Wrap(ErrOpenStore, err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "index.sqlite"))
	if err != nil {
		return nil, errx.Wrap(ErrOpenStore, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errx.Wrap(ErrMigrate, err)
	}
	return &Store{dir: dir, db: db}, nil
}

// Digest returns the content-addressing digest for data, the same
// value Put uses as its key.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put stores data under its content digest, recording origin ("local"
// or an OCI image reference), and returns the digest. Re-putting
// identical content is a no-op beyond the metadata row already
// existing.
func (s *Store) Put(data []byte, origin string) (string, error) {
	digest := Digest(data)
	path := s.modulePath(digest)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return "", errx.Wrap(ErrWriteModule, err)
		}
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO modules (digest, size, origin, created_at) VALUES (?, ?, ?, ?)`,
		digest, len(data), origin, time.Now().Unix(),
	)
	if err != nil {
		return "", errx.Wrap(ErrInsert, err)
	}
	return digest, nil
}

// Get reads back the module image stored under digest.
func (s *Store) Get(digest string) ([]byte, error) {
	data, err := os.ReadFile(s.modulePath(digest))
	if err != nil {
		return nil, errx.Wrap(ErrReadModule, err)
	}
	return data, nil
}

// Stat returns the metadata row for digest.
func (s *Store) Stat(digest string) (Metadata, error) {
	var m Metadata
	var createdUnix int64
	row := s.db.QueryRow(`SELECT digest, size, origin, created_at FROM modules WHERE digest = ?`, digest)
	if err := row.Scan(&m.Digest, &m.Size, &m.Origin, &createdUnix); err != nil {
		return Metadata{}, errx.Wrap(ErrQuery, err)
	}
	m.CreatedAt = time.Unix(createdUnix, 0).UTC()
	return m, nil
}

// List returns metadata for every cached module.
func (s *Store) List() ([]Metadata, error) {
	rows, err := s.db.Query(`SELECT digest, size, origin, created_at FROM modules ORDER BY created_at`)
	if err != nil {
		return nil, errx.Wrap(ErrQuery, err)
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var m Metadata
		var createdUnix int64
		if err := rows.Scan(&m.Digest, &m.Size, &m.Origin, &createdUnix); err != nil {
			return nil, errx.Wrap(ErrQuery, err)
		}
		m.CreatedAt = time.Unix(createdUnix, 0).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) modulePath(digest string) string {
	return filepath.Join(s.dir, digest+".mod")
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
