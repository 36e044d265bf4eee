package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrKeyNotFound = errors.New("api key not found")

// DB is the subset of pgxpool.Pool used by the key store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// APIKeyRepository stores API keys as sha256 hashes.
type APIKeyRepository struct {
	db DB
}

func NewAPIKeyRepository(db DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// HashKey returns the stored form of a raw key.
func HashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// LookupUser returns the owner of an active key and records its use.
func (r *APIKeyRepository) LookupUser(ctx context.Context, rawKey string) (string, error) {
	const q = `
update api_keys set last_used_at = now()
where key_hash = $1 and revoked_at is null
returning user_id;
`
	var userID string
	if err := r.db.QueryRow(ctx, q, HashKey(rawKey)).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrKeyNotFound
		}
		return "", fmt.Errorf("lookup api key: %w", err)
	}
	return userID, nil
}

// Issue creates a key for userID and returns the raw key. Only its hash is stored.
func (r *APIKeyRepository) Issue(ctx context.Context, userID, name string) (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	rawKey := APIKeyPrefix + hex.EncodeToString(b)

	const q = `insert into api_keys (key_hash, user_id, name) values ($1, $2, $3);`
	if _, err := r.db.Exec(ctx, q, HashKey(rawKey), userID, name); err != nil {
		return "", fmt.Errorf("insert api key: %w", err)
	}
	return rawKey, nil
}

// Revoke disables a key. It reports whether an active key was revoked.
func (r *APIKeyRepository) Revoke(ctx context.Context, userID, rawKey string) (bool, error) {
	const q = `update api_keys set revoked_at = now() where key_hash = $1 and user_id = $2 and revoked_at is null;`
	tag, err := r.db.Exec(ctx, q, HashKey(rawKey), userID)
	if err != nil {
		return false, fmt.Errorf("revoke api key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
