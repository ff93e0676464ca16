// Package identity turns request credentials into the owner whose shopping
// state the request operates on.
package identity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
)

type Verifier interface {
	Verify(token string) (accountID string, err error)
}

// AnonymousSessions is the slice of session.Lifecycle the resolver needs.
type AnonymousSessions interface {
	Start(ctx context.Context) (domain.Owner, error)
	Lookup(ctx context.Context, token string) (domain.Owner, bool, error)
}

type Credentials struct {
	BearerToken    string
	AnonymousToken string
}

// Resolution is the owner for one request plus what the transport must send
// back to the client.
type Resolution struct {
	Owner domain.Owner
	// IssuedToken is set when a new anonymous owner was created.
	IssuedToken string
	// ReplacedToken is true when the client's anonymous token no longer
	// resolved and IssuedToken supersedes it.
	ReplacedToken bool
}

type Resolver struct {
	verifier Verifier
	sessions AnonymousSessions
	logger   *zap.Logger
}

func NewResolver(verifier Verifier, sessions AnonymousSessions, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{verifier: verifier, sessions: sessions, logger: logger}
}

// Resolve never returns an account and an anonymous owner together; a valid
// bearer token always wins. An invalid one is logged and ignored.
func (r *Resolver) Resolve(ctx context.Context, creds Credentials) (Resolution, error) {
	if creds.BearerToken != "" {
		owner, err := r.Account(creds.BearerToken)
		if err == nil {
			return Resolution{Owner: owner}, nil
		}
		r.logger.Debug("bearer credential rejected, resolving anonymously", zap.Error(err))
	}

	if creds.AnonymousToken != "" {
		owner, ok, err := r.sessions.Lookup(ctx, creds.AnonymousToken)
		if err != nil {
			return Resolution{}, fmt.Errorf("%w: %v", domain.ErrOwnerResolution, err)
		}
		if ok {
			return Resolution{Owner: owner}, nil
		}
	}

	owner, err := r.sessions.Start(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %v", domain.ErrOwnerResolution, err)
	}
	return Resolution{
		Owner:         owner,
		IssuedToken:   owner.ID,
		ReplacedToken: creds.AnonymousToken != "",
	}, nil
}

// Account resolves a bearer token strictly; used where only an account may act.
func (r *Resolver) Account(bearer string) (domain.Owner, error) {
	accountID, err := r.verifier.Verify(bearer)
	if err != nil {
		return domain.Owner{}, err
	}
	return domain.AccountOwner(accountID), nil
}
