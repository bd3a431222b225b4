package domain

import (
	"context"
	"strings"
)

// Identity is the verified caller. It is produced by the identity provider
// (or recovered from a session token) and immutable for the rest of the
// request.
type Identity struct {
	ID          string
	Email       string
	Phone       string
	IsSuperuser bool
	Metadata    map[string]string
}

// MetadataPreferredBusiness is the profile key holding the caller's preferred
// default business. Its value is only honored after validation against the
// current membership snapshot.
const MetadataPreferredBusiness = "preferred_business_id"

// PreferredBusinessID returns the caller's profile-preferred business id, or
// "" when none is recorded.
func (i Identity) PreferredBusinessID() string {
	if i.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(i.Metadata[MetadataPreferredBusiness])
}

// BusinessMembership ties a user to a business with a role and permission set.
// The membership store is the source of truth; instances held by the pipeline
// are read-only snapshots.
type BusinessMembership struct {
	BusinessID  string
	Role        string
	Permissions []string
	RoleLevel   int
	Active      bool
}

func (m BusinessMembership) HasPermission(permission string) bool {
	for _, p := range m.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// MembershipSnapshot is the caller's active memberships at verification time,
// in store order.
type MembershipSnapshot []BusinessMembership

// ActiveOnly drops inactive entries, preserving order.
func (s MembershipSnapshot) ActiveOnly() MembershipSnapshot {
	out := make(MembershipSnapshot, 0, len(s))
	for _, m := range s {
		if m.Active {
			out = append(out, m)
		}
	}
	return out
}

// FindBusiness locates the membership for a business id, comparing ids
// case-insensitively.
func (s MembershipSnapshot) FindBusiness(businessID string) (BusinessMembership, bool) {
	for _, m := range s {
		if strings.EqualFold(m.BusinessID, businessID) {
			return m, true
		}
	}
	return BusinessMembership{}, false
}

// FirstActive returns the first membership whose Active flag is set.
func (s MembershipSnapshot) FirstActive() (BusinessMembership, bool) {
	for _, m := range s {
		if m.Active {
			return m, true
		}
	}
	return BusinessMembership{}, false
}

// VerifiedIdentity pairs an identity with the fresh membership snapshot
// fetched during verification. ActiveBusinessID carries the session token's
// current business when the credential was a session token; it is a hint for
// context resolution, not a validated grant.
type VerifiedIdentity struct {
	Identity         Identity
	Memberships      MembershipSnapshot
	ActiveBusinessID string
}

// AuthState is the request-scoped authorization state. It is created by the
// pipeline at request start, populated by the interceptors in order, and
// discarded with the request. Never shared across requests.
type AuthState struct {
	Authenticated     bool
	Identity          *Identity
	Memberships       MembershipSnapshot
	BusinessID        string
	BusinessValidated bool
}

// IdentityProvider verifies provider-issued opaque credentials.
type IdentityProvider interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// MembershipStore returns the caller's active memberships. Implementations
// must exclude memberships whose active flag is unset.
type MembershipStore interface {
	ActiveMemberships(ctx context.Context, userID string) (MembershipSnapshot, error)
}

// CredentialVerifier turns a raw bearer credential into a verified identity
// plus a fresh snapshot.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential string) (VerifiedIdentity, error)
}

// AccessEvaluator decides whether the authenticated caller may perform the
// request against the resolved business.
type AccessEvaluator interface {
	Require(ctx context.Context, state *AuthState, method, path string) error
}
