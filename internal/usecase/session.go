// Package usecase holds the session lifecycle operations: issuing a session
// after sign-in, switching the active business, and refreshing an existing
// session. Every operation fetches a fresh membership snapshot; embedded
// token claims are never trusted as the source of truth.
package usecase

import (
	"context"
	"errors"

	"github.com/get-hunter/hero365-app-sub007/internal/domain"
)

// TokenIssuer mints session tokens carrying the active business and the
// membership snapshot at issue time.
type TokenIssuer interface {
	Issue(subject, activeBusinessID string, memberships domain.MembershipSnapshot) (string, error)
}

// Session is the result of issue, switch, or refresh.
type Session struct {
	Token       string
	BusinessID  string
	Memberships domain.MembershipSnapshot
}

type SessionService struct {
	Tokens      TokenIssuer
	Memberships domain.MembershipStore
}

func NewSessionService(tokens TokenIssuer, memberships domain.MembershipStore) *SessionService {
	return &SessionService{
		Tokens:      tokens,
		Memberships: memberships,
	}
}

// Issue creates a session for a freshly verified identity. The active business
// is the caller's preferred business when the snapshot confirms an active
// membership there, otherwise the first active membership, otherwise none.
func (s *SessionService) Issue(ctx context.Context, identity domain.Identity) (Session, error) {
	if err := s.ready(); err != nil {
		return Session{}, err
	}
	snapshot, err := s.freshSnapshot(ctx, identity.ID)
	if err != nil {
		return Session{}, err
	}

	businessID := ""
	if preferred := identity.PreferredBusinessID(); preferred != "" {
		if m, ok := snapshot.FindBusiness(preferred); ok && m.Active {
			businessID = m.BusinessID
		}
	}
	if businessID == "" {
		if m, ok := snapshot.FirstActive(); ok {
			businessID = m.BusinessID
		}
	}

	return s.mint(identity.ID, businessID, snapshot)
}

// Switch re-targets the session at another business. The requested id is
// validated against a fresh snapshot; an id the caller has no active
// membership for fails with ErrBusinessAccessDenied and the previous session
// stays untouched. There is no fallback to a different business.
func (s *SessionService) Switch(ctx context.Context, userID, businessID string) (Session, error) {
	if err := s.ready(); err != nil {
		return Session{}, err
	}
	if businessID == "" {
		return Session{}, domain.ErrBusinessAccessDenied
	}
	snapshot, err := s.freshSnapshot(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	membership, ok := snapshot.FindBusiness(businessID)
	if !ok || !membership.Active {
		return Session{}, domain.ErrBusinessAccessDenied
	}
	return s.mint(userID, membership.BusinessID, snapshot)
}

// Refresh re-issues the session with a fresh snapshot. The current business is
// kept when the caller is still an active member there; otherwise the session
// re-defaults to the first active membership.
func (s *SessionService) Refresh(ctx context.Context, userID, currentBusinessID string) (Session, error) {
	if err := s.ready(); err != nil {
		return Session{}, err
	}
	snapshot, err := s.freshSnapshot(ctx, userID)
	if err != nil {
		return Session{}, err
	}

	businessID := ""
	if currentBusinessID != "" {
		if m, ok := snapshot.FindBusiness(currentBusinessID); ok && m.Active {
			businessID = m.BusinessID
		}
	}
	if businessID == "" {
		if m, ok := snapshot.FirstActive(); ok {
			businessID = m.BusinessID
		}
	}

	return s.mint(userID, businessID, snapshot)
}

func (s *SessionService) mint(userID, businessID string, snapshot domain.MembershipSnapshot) (Session, error) {
	token, err := s.Tokens.Issue(userID, businessID, snapshot)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:       token,
		BusinessID:  businessID,
		Memberships: snapshot,
	}, nil
}

func (s *SessionService) freshSnapshot(ctx context.Context, userID string) (domain.MembershipSnapshot, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	snapshot, err := s.Memberships.ActiveMemberships(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrMembershipNotFound) {
			return domain.MembershipSnapshot{}, nil
		}
		return nil, domain.ErrUpstreamUnavailable
	}
	return snapshot.ActiveOnly(), nil
}

func (s *SessionService) ready() error {
	if s == nil {
		return errors.New("session service is nil")
	}
	if s.Tokens == nil {
		return errors.New("token issuer is required")
	}
	if s.Memberships == nil {
		return errors.New("membership store is required")
	}
	return nil
}
