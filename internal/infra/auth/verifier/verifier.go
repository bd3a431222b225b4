// Package verifier turns raw bearer credentials into verified identities.
package verifier

import (
	"context"
	"errors"

	"github.com/get-hunter/hero365-app-sub007/internal/domain"
	"github.com/get-hunter/hero365-app-sub007/internal/infra/token"
)

// Verifier resolves the two supported credential shapes: Hero365 enhanced
// session tokens (decoded locally by the codec) and provider-issued opaque
// credentials (delegated to the identity provider). Both paths fetch a fresh
// membership snapshot from the store; the snapshot embedded in a session
// token is never trusted for authorization.
type Verifier struct {
	codec       *token.Codec
	provider    domain.IdentityProvider
	memberships domain.MembershipStore
}

func New(codec *token.Codec, provider domain.IdentityProvider, memberships domain.MembershipStore) *Verifier {
	return &Verifier{
		codec:       codec,
		provider:    provider,
		memberships: memberships,
	}
}

// Verify authenticates a raw credential. Failures come back as one of
// domain.ErrTokenExpired, domain.ErrTokenMalformed, or
// domain.ErrUpstreamUnavailable; all three mean "not authenticated", never a
// pipeline failure.
func (v *Verifier) Verify(ctx context.Context, credential string) (domain.VerifiedIdentity, error) {
	if credential == "" {
		return domain.VerifiedIdentity{}, domain.ErrTokenMalformed
	}

	var identity domain.Identity
	var activeBusinessID string
	if token.IsSessionToken(credential) {
		claims, err := v.codec.Verify(credential)
		if err != nil {
			return domain.VerifiedIdentity{}, err
		}
		identity = domain.Identity{ID: claims.Subject}
		activeBusinessID = claims.CurrentBusinessID
	} else {
		verified, err := v.provider.Verify(ctx, credential)
		if err != nil {
			return domain.VerifiedIdentity{}, err
		}
		identity = verified
	}

	snapshot, err := v.memberships.ActiveMemberships(ctx, identity.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrMembershipNotFound) {
			return domain.VerifiedIdentity{}, domain.ErrUpstreamUnavailable
		}
		snapshot = nil
	}
	return domain.VerifiedIdentity{
		Identity:         identity,
		Memberships:      snapshot.ActiveOnly(),
		ActiveBusinessID: activeBusinessID,
	}, nil
}

var _ domain.CredentialVerifier = (*Verifier)(nil)
