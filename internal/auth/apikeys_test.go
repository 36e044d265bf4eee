package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyRepo(t *testing.T) (pgxmock.PgxPoolIface, *APIKeyRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock, NewAPIKeyRepository(mock)
}

func TestHashKeyIsStable(t *testing.T) {
	assert.Equal(t, HashKey("exp_abc"), HashKey("exp_abc"))
	assert.NotEqual(t, HashKey("exp_abc"), HashKey("exp_abd"))
	assert.Len(t, HashKey("exp_abc"), 64)
}

func TestLookupUser(t *testing.T) {
	mock, repo := newKeyRepo(t)

	mock.ExpectQuery("update api_keys set last_used_at").
		WithArgs(HashKey("exp_good")).
		WillReturnRows(mock.NewRows([]string{"user_id"}).AddRow("user-1"))
	mock.ExpectQuery("update api_keys set last_used_at").
		WithArgs(HashKey("exp_gone")).
		WillReturnError(pgx.ErrNoRows)

	uid, err := repo.LookupUser(context.Background(), "exp_good")
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)

	_, err = repo.LookupUser(context.Background(), "exp_gone")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestIssueStoresOnlyHash(t *testing.T) {
	mock, repo := newKeyRepo(t)

	mock.ExpectExec("insert into api_keys").
		WithArgs(pgxmock.AnyArg(), "user-1", "cli").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	raw, err := repo.Issue(context.Background(), "user-1", "cli")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, APIKeyPrefix))
	assert.Len(t, raw, len(APIKeyPrefix)+48)
}

func TestRevoke(t *testing.T) {
	mock, repo := newKeyRepo(t)

	mock.ExpectExec("set revoked_at").
		WithArgs(HashKey("exp_good"), "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := repo.Revoke(context.Background(), "user-1", "exp_good")
	require.NoError(t, err)
	assert.True(t, ok)
}
