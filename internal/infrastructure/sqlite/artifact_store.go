package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/modreg/internal/artifact"
	"github.com/zjrosen/modreg/internal/cachemanager"
	"github.com/zjrosen/modreg/internal/log"
	"github.com/zjrosen/modreg/internal/scope"
	"github.com/zjrosen/modreg/internal/txn"
)

// ErrCorruptArtifact is returned when stored content does not match its
// recorded digest.
var ErrCorruptArtifact = errors.New("sqlite: stored artifact is corrupt")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type blobInput struct {
	compressed []byte
	size       int64
	digest     string
}

// ArtifactStore persists the ordered artifacts of each scope. It is an
// artifact.Source: reads go through the database transaction bound to ctx
// when there is one, so a refresh inside a transaction sees its own
// uncommitted writes.
type ArtifactStore struct {
	conn     *sql.DB
	cache    cachemanager.CacheManager[string, []byte]
	cacheTTL time.Duration
	blobs    *cachemanager.ReadThroughCache[string, []byte, blobInput]
	now      func() time.Time
}

var _ artifact.Source = (*ArtifactStore)(nil)

// StoreOption configures an ArtifactStore.
type StoreOption func(*ArtifactStore)

// WithBlobCache caches decompressed content by digest. A nil cache
// disables caching.
func WithBlobCache(cache cachemanager.CacheManager[string, []byte], ttl time.Duration) StoreOption {
	return func(s *ArtifactStore) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// NewArtifactStore creates a store over conn.
func NewArtifactStore(conn *sql.DB, opts ...StoreOption) *ArtifactStore {
	s := &ArtifactStore{
		conn:     conn,
		cacheTTL: cachemanager.DefaultExpiration,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	cache := s.cache
	if cache == nil {
		cache = cachemanager.NewInMemoryCacheManager[string, []byte]("artifact-blobs", 0, 0)
	}
	s.blobs = cachemanager.NewReadThroughCache(cache, loadBlob, s.cache == nil)
	return s
}

func loadBlob(_ context.Context, in blobInput) ([]byte, error) {
	data, err := decompress(in.compressed, in.size)
	if err != nil {
		return nil, err
	}
	if artifact.Digest(data) != in.digest {
		return nil, fmt.Errorf("%w: digest mismatch for %s", ErrCorruptArtifact, in.digest)
	}
	return data, nil
}

func (s *ArtifactStore) q(ctx context.Context) querier {
	if tx, ok := txn.SQLFromContext(ctx); ok {
		return tx
	}
	return s.conn
}

// ListArtifacts implements artifact.Source.
func (s *ArtifactStore) ListArtifacts(ctx context.Context, id scope.ID) ([]artifact.Artifact, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+artifactColumns+` FROM artifacts
		 WHERE scope_kind = ? AND scope_instance = ?
		 ORDER BY position`,
		string(id.Kind), id.Instance,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []artifact.Artifact
	for rows.Next() {
		m, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		content, err := s.blobs.Get(ctx, m.Digest, blobInput{
			compressed: m.Content,
			size:       m.Size,
			digest:     m.Digest,
		}, s.cacheTTL)
		if err != nil {
			return nil, fmt.Errorf("artifact %q of %s: %w", m.Name, id, err)
		}
		out = append(out, artifact.Artifact{
			Name:     m.Name,
			FileName: m.FileName,
			Type:     artifact.Type(m.Type),
			Content:  bytes.Clone(content),
			Version:  m.Version,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate artifacts: %w", err)
	}
	log.Debug(log.CatSource, "listed artifacts", "scope", id, "count", len(out))
	return out, nil
}

// ReplaceArtifacts stores artifacts as the complete ordered mapping of id.
// It reports whether the mapping changed; an identical mapping (same set
// ETag) is left untouched. Runs in the transaction bound to ctx, or in its
// own transaction when there is none.
func (s *ArtifactStore) ReplaceArtifacts(ctx context.Context, id scope.ID, artifacts []artifact.Artifact) (bool, error) {
	for _, a := range artifacts {
		if a.Name == "" || !a.Type.Valid() {
			return false, fmt.Errorf("invalid artifact %q of type %q", a.Name, a.Type)
		}
	}

	var changed bool
	err := s.inTx(ctx, func(ctx context.Context) error {
		etag := artifact.SetETag(artifacts)
		current, ok, err := s.ETag(ctx, id)
		if err != nil {
			return err
		}
		if ok && current == etag {
			return nil
		}
		changed = true

		q := s.q(ctx)
		if _, err := q.ExecContext(ctx,
			`DELETE FROM artifacts WHERE scope_kind = ? AND scope_instance = ?`,
			string(id.Kind), id.Instance,
		); err != nil {
			return fmt.Errorf("failed to clear artifacts: %w", err)
		}

		now := s.now()
		for i, a := range artifacts {
			m := toArtifactModel(id, i, a, now)
			if _, err := q.ExecContext(ctx,
				`INSERT INTO artifacts (`+artifactColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				m.ScopeKind, m.ScopeInstance, m.Position, m.Name, m.FileName,
				m.Type, m.Version, m.Digest, m.Size, m.Content, m.CreatedAt,
			); err != nil {
				return fmt.Errorf("failed to insert artifact %q: %w", a.Name, err)
			}
		}

		if _, err := q.ExecContext(ctx,
			`INSERT INTO deployments (scope_kind, scope_instance, etag, artifact_count, deployed_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (scope_kind, scope_instance)
			 DO UPDATE SET etag = excluded.etag, artifact_count = excluded.artifact_count, deployed_at = excluded.deployed_at`,
			string(id.Kind), id.Instance, etag, len(artifacts), now.Unix(),
		); err != nil {
			return fmt.Errorf("failed to record deployment: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	log.Debug(log.CatDB, "artifacts replaced", "scope", id, "count", len(artifacts), "changed", changed)
	return changed, nil
}

// DeleteScope removes every artifact of id and reports whether the scope
// had a stored mapping.
func (s *ArtifactStore) DeleteScope(ctx context.Context, id scope.ID) (bool, error) {
	var existed bool
	err := s.inTx(ctx, func(ctx context.Context) error {
		q := s.q(ctx)
		if _, err := q.ExecContext(ctx,
			`DELETE FROM artifacts WHERE scope_kind = ? AND scope_instance = ?`,
			string(id.Kind), id.Instance,
		); err != nil {
			return fmt.Errorf("failed to delete artifacts: %w", err)
		}
		res, err := q.ExecContext(ctx,
			`DELETE FROM deployments WHERE scope_kind = ? AND scope_instance = ?`,
			string(id.Kind), id.Instance,
		)
		if err != nil {
			return fmt.Errorf("failed to delete deployment: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		existed = n > 0
		return nil
	})
	return existed, err
}

// ETag returns the stored set ETag of id.
func (s *ArtifactStore) ETag(ctx context.Context, id scope.ID) (string, bool, error) {
	var etag string
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT etag FROM deployments WHERE scope_kind = ? AND scope_instance = ?`,
		string(id.Kind), id.Instance,
	).Scan(&etag)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read deployment: %w", err)
	}
	return etag, true, nil
}

// Deployments lists every scope with a stored mapping, ordered by scope.
func (s *ArtifactStore) Deployments(ctx context.Context) ([]Deployment, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT scope_kind, scope_instance, etag, artifact_count, deployed_at
		 FROM deployments ORDER BY scope_kind, scope_instance`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *ArtifactStore) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txn.SQLFromContext(ctx); ok {
		return fn(ctx)
	}
	return txn.RunInTx(ctx, s.conn, fn)
}
