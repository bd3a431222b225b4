package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/get-hunter/hero365-app-sub007/internal/domain"
)

// Issuer marks Hero365-issued session tokens. The identity verifier uses it
// to route enhanced tokens to this codec instead of the external provider.
const Issuer = "hero365"

// Claims is the decoded session token.
type Claims struct {
	Subject           string
	CurrentBusinessID string
	Memberships       domain.MembershipSnapshot
	IssuedAt          time.Time
	ExpiresAt         time.Time
}

type membershipClaim struct {
	BusinessID  string   `json:"business_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	RoleLevel   int      `json:"role_level"`
}

type sessionClaims struct {
	jwt.RegisteredClaims
	// user_id duplicates sub for older clients.
	UserID              string            `json:"user_id"`
	CurrentBusinessID   string            `json:"current_business_id,omitempty"`
	BusinessMemberships []membershipClaim `json:"business_memberships"`
}

// Codec signs and verifies Hero365 session tokens. Tokens are HMAC-SHA256
// JWTs with a fixed lifetime; they are never mutated, only re-issued.
type Codec struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

func NewCodec(secret string, lifetime time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	return &Codec{
		secret:   []byte(secret),
		lifetime: lifetime,
		now:      time.Now,
	}, nil
}

// WithClock overrides the codec clock. Tests only.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	if now != nil {
		c.now = now
	}
	return c
}

// Issue signs a new session token. An empty activeBusinessID defaults to the
// first membership in the snapshot, or none when the snapshot is empty.
func (c *Codec) Issue(subject, activeBusinessID string, memberships domain.MembershipSnapshot) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if activeBusinessID == "" && len(memberships) > 0 {
		activeBusinessID = memberships[0].BusinessID
	}
	now := c.now().UTC()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.lifetime)),
		},
		UserID:              subject,
		CurrentBusinessID:   activeBusinessID,
		BusinessMemberships: encodeMemberships(memberships),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and lifetime and decodes the claims. The embedded
// membership list is a routing hint; callers must re-fetch the snapshot
// before making authorization decisions.
func (c *Codec) Verify(raw string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &sessionClaims{}, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, domain.ErrTokenExpired
		}
		return Claims{}, domain.ErrTokenMalformed
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return Claims{}, domain.ErrTokenMalformed
	}
	return decodeClaims(claims)
}

// IsSessionToken reports whether raw looks like a Hero365-issued token. This
// is a single unverified parse of the issuer claim, not a trial verification.
func IsSessionToken(raw string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return false
	}
	return claims.Issuer == Issuer
}

func encodeMemberships(memberships domain.MembershipSnapshot) []membershipClaim {
	out := make([]membershipClaim, 0, len(memberships))
	for _, m := range memberships {
		permissions := m.Permissions
		if permissions == nil {
			permissions = []string{}
		}
		out = append(out, membershipClaim{
			BusinessID:  m.BusinessID,
			Role:        m.Role,
			Permissions: permissions,
			RoleLevel:   m.RoleLevel,
		})
	}
	return out
}

func decodeClaims(claims *sessionClaims) (Claims, error) {
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Claims{}, domain.ErrTokenMalformed
	}
	if claims.UserID != "" && claims.UserID != subject {
		return Claims{}, domain.ErrTokenMalformed
	}
	memberships := make(domain.MembershipSnapshot, 0, len(claims.BusinessMemberships))
	for _, m := range claims.BusinessMemberships {
		if strings.TrimSpace(m.BusinessID) == "" || strings.TrimSpace(m.Role) == "" {
			return Claims{}, domain.ErrTokenMalformed
		}
		memberships = append(memberships, domain.BusinessMembership{
			BusinessID:  m.BusinessID,
			Role:        m.Role,
			Permissions: m.Permissions,
			RoleLevel:   m.RoleLevel,
			Active:      true,
		})
	}
	if claims.CurrentBusinessID != "" {
		if _, ok := memberships.FindBusiness(claims.CurrentBusinessID); !ok {
			return Claims{}, domain.ErrTokenMalformed
		}
	}
	out := Claims{
		Subject:           subject,
		CurrentBusinessID: claims.CurrentBusinessID,
		Memberships:       memberships,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
