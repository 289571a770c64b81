// Package pg implements a blob store on a Postgresql database.
package pg

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/bobg/sqlutil"
	_ "github.com/lib/pq" // register the postgres type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/cas"
	"github.com/bobg/cas/store"
)

var (
	_ cas.Store  = &Store{}
	_ cas.Lister = &Store{}
)

// Store is a Postgresql-based blob store.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `blobs` table if it does not exist.
// (If it does exist, it must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS blobs (
  hash TEXT PRIMARY KEY NOT NULL,
  data BYTEA NOT NULL,
  size BIGINT NOT NULL
);
`

// New produces a new Store using `db` for storage.
// It expects to create the table `blobs`,
// or for that table already to exist with the correct schema.
// (See variable Schema.)
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db}, err
}

// Get gets the blob with the given hash.
func (s *Store) Get(ctx context.Context, h cas.Hash) (cas.Blob, error) {
	const q = `SELECT data FROM blobs WHERE hash = $1`

	var b cas.Blob
	err := s.db.QueryRowContext(ctx, q, string(h)).Scan((*[]byte)(&b))
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(cas.ErrNotFound, "blob %s", h)
	}
	return b, errors.Wrap(err, "querying blob")
}

// Exists tells whether the store holds the given hash.
func (s *Store) Exists(ctx context.Context, h cas.Hash) (bool, error) {
	const q = `SELECT 1 FROM blobs WHERE hash = $1`

	var one int
	err := s.db.QueryRowContext(ctx, q, string(h)).Scan(&one)
	if stderrs.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, errors.Wrap(err, "querying existence")
}

// Size is the length of the blob with the given hash.
func (s *Store) Size(ctx context.Context, h cas.Hash) (int64, error) {
	const q = `SELECT size FROM blobs WHERE hash = $1`

	var size int64
	err := s.db.QueryRowContext(ctx, q, string(h)).Scan(&size)
	if stderrs.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrapf(cas.ErrNotFound, "blob %s", h)
	}
	return size, errors.Wrap(err, "querying size")
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b cas.Blob) (cas.StoreResult, error) {
	const q = `INSERT INTO blobs (hash, data, size) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`

	h := b.Hash()
	res := cas.StoreResult{
		Hash:       h,
		Size:       int64(len(b)),
		ChunkCount: 1,
	}

	execRes, err := s.db.ExecContext(ctx, q, string(h), []byte(b), len(b))
	if err != nil {
		return res, errors.Wrap(err, "inserting blob")
	}
	aff, err := execRes.RowsAffected()
	if err != nil {
		return res, errors.Wrap(err, "counting affected rows")
	}
	res.AlreadyExisted = aff == 0
	return res, nil
}

// Delete removes the blob with the given hash, if present.
func (s *Store) Delete(ctx context.Context, h cas.Hash) error {
	const q = `DELETE FROM blobs WHERE hash = $1`

	_, err := s.db.ExecContext(ctx, q, string(h))
	return errors.Wrap(err, "deleting blob")
}

// ListHashes produces all blob hashes in the store, in lexicographic order.
func (s *Store) ListHashes(ctx context.Context, after cas.Hash, f func(cas.Hash) error) error {
	const q = `SELECT hash FROM blobs WHERE hash > $1 ORDER BY hash`

	return sqlutil.ForQueryRows(ctx, s.db, q, string(after), func(h string) error {
		return f(cas.Hash(h))
	})
}

func init() {
	store.Register("pg", func(ctx context.Context, conf map[string]interface{}) (cas.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("postgres", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
