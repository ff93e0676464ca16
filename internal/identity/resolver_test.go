package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/repository"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/session"
)

func setupResolver(t *testing.T) (*Resolver, *JWTVerifier, *session.Lifecycle) {
	t.Helper()
	repo := repository.NewMemoryRepository(time.Hour)
	lc := session.NewLifecycle(repo, time.Hour, nil, nil)
	v := NewJWTVerifier(testSecret, "")
	return NewResolver(v, lc, zaptest.NewLogger(t)), v, lc
}

func TestResolve_AccountWins(t *testing.T) {
	r, v, lc := setupResolver(t)
	ctx := context.Background()

	anon, err := lc.Start(ctx)
	require.NoError(t, err)
	bearer, err := v.Sign("acc-1", time.Hour)
	require.NoError(t, err)

	res, err := r.Resolve(ctx, Credentials{BearerToken: bearer, AnonymousToken: anon.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.AccountOwner("acc-1"), res.Owner)
	assert.Empty(t, res.IssuedToken)
	assert.False(t, res.ReplacedToken)
}

func TestResolve_InvalidBearerFallsThrough(t *testing.T) {
	r, _, lc := setupResolver(t)
	ctx := context.Background()
	anon, err := lc.Start(ctx)
	require.NoError(t, err)

	res, err := r.Resolve(ctx, Credentials{BearerToken: "expired-or-garbage", AnonymousToken: anon.ID})
	require.NoError(t, err)
	assert.Equal(t, anon, res.Owner)
	assert.Empty(t, res.IssuedToken)
}

func TestResolve_NoCredentialsIssuesToken(t *testing.T) {
	r, _, _ := setupResolver(t)

	res, err := r.Resolve(context.Background(), Credentials{})
	require.NoError(t, err)
	assert.True(t, res.Owner.Anonymous())
	assert.Equal(t, res.Owner.ID, res.IssuedToken)
	assert.False(t, res.ReplacedToken)
}

func TestResolve_StaleTokenReplaced(t *testing.T) {
	r, _, _ := setupResolver(t)

	res, err := r.Resolve(context.Background(), Credentials{AnonymousToken: "5b2f4c1e-0000-4000-8000-000000000000"})
	require.NoError(t, err)
	assert.True(t, res.Owner.Anonymous())
	assert.NotEqual(t, "5b2f4c1e-0000-4000-8000-000000000000", res.Owner.ID)
	assert.True(t, res.ReplacedToken)
	assert.Equal(t, res.Owner.ID, res.IssuedToken)
}

type brokenSessions struct{ err error }

func (b brokenSessions) Start(context.Context) (domain.Owner, error) { return domain.Owner{}, b.err }
func (b brokenSessions) Lookup(context.Context, string) (domain.Owner, bool, error) {
	return domain.Owner{}, false, b.err
}

func TestResolve_CreationFailure(t *testing.T) {
	storeErr := errors.New("mongo unavailable")
	r := NewResolver(NewJWTVerifier(testSecret, ""), brokenSessions{err: storeErr}, nil)

	_, err := r.Resolve(context.Background(), Credentials{})
	assert.ErrorIs(t, err, domain.ErrOwnerResolution)

	_, err = r.Resolve(context.Background(), Credentials{AnonymousToken: "5b2f4c1e-0000-4000-8000-000000000000"})
	assert.ErrorIs(t, err, domain.ErrOwnerResolution)
}

func TestAccount_Strict(t *testing.T) {
	r, v, _ := setupResolver(t)

	_, err := r.Account("nope")
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)

	bearer, _ := v.Sign("acc-9", time.Hour)
	owner, err := r.Account(bearer)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountOwner("acc-9"), owner)
}
