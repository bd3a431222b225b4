package rbac

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/get-hunter/hero365-app-sub007/internal/domain"
)

type AuthzError struct {
	Code string
	Err  error
}

func (e *AuthzError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code
}

func (e *AuthzError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func IsAuthzError(err error) (*AuthzError, bool) {
	var authz *AuthzError
	if errors.As(err, &authz) {
		return authz, true
	}
	return nil, false
}

// Requirement maps a method+path to the permissions a caller's membership
// must carry. A pattern may contain a single `*` matching any infix; exact
// method+path matches always win over pattern matches.
type Requirement struct {
	Method      string
	Pattern     string
	Permissions []string
}

// AccessPolicy is an optional deny hook evaluated after the permission check.
type AccessPolicy interface {
	Evaluate(ctx context.Context, input domain.AccessPolicyInput) (domain.AccessPolicyEvaluation, error)
}

// Evaluator is the access-control stage: per-business permission sets with a
// superuser bypass and method+path requirement mapping.
type Evaluator struct {
	requirements []Requirement
	policy       AccessPolicy
}

type Option func(*Evaluator)

func WithAccessPolicy(policy AccessPolicy) Option {
	return func(e *Evaluator) {
		e.policy = policy
	}
}

func NewEvaluator(requirements []Requirement, opts ...Option) *Evaluator {
	e := &Evaluator{requirements: requirements}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DefaultRequirements covers the business-scoped route families.
func DefaultRequirements() []Requirement {
	return []Requirement{
		{Method: http.MethodGet, Pattern: "/api/v1/estimates", Permissions: []string{"view"}},
		{Method: http.MethodGet, Pattern: "/api/v1/estimates/*", Permissions: []string{"view"}},
		{Method: http.MethodPost, Pattern: "/api/v1/estimates", Permissions: []string{"edit"}},
		{Method: http.MethodPut, Pattern: "/api/v1/estimates/*", Permissions: []string{"edit"}},
		{Method: http.MethodDelete, Pattern: "/api/v1/estimates/*", Permissions: []string{"delete"}},
		{Method: http.MethodGet, Pattern: "/api/v1/jobs", Permissions: []string{"view"}},
		{Method: http.MethodGet, Pattern: "/api/v1/jobs/*", Permissions: []string{"view"}},
		{Method: http.MethodPost, Pattern: "/api/v1/jobs", Permissions: []string{"edit"}},
		{Method: http.MethodPut, Pattern: "/api/v1/jobs/*", Permissions: []string{"edit"}},
		{Method: http.MethodDelete, Pattern: "/api/v1/jobs/*", Permissions: []string{"delete"}},
		{Method: http.MethodGet, Pattern: "/api/v1/activities", Permissions: []string{"view"}},
		{Method: http.MethodGet, Pattern: "/api/v1/activities/*", Permissions: []string{"view"}},
		{Method: http.MethodPost, Pattern: "/api/v1/activities", Permissions: []string{"edit"}},
	}
}

// Require rejects the request unless the caller's membership for the resolved
// business carries every permission mapped to this method+path. Superusers
// pass every check for any business.
func (e *Evaluator) Require(ctx context.Context, state *domain.AuthState, method, path string) error {
	if state == nil || !state.Authenticated || state.Identity == nil {
		return &AuthzError{Code: "AUTHENTICATION_REQUIRED", Err: domain.ErrUnauthenticated}
	}
	required := e.requiredPermissions(method, path)
	if len(required) == 0 {
		return nil
	}
	if state.Identity.IsSuperuser {
		return e.consultPolicy(ctx, state, method, path)
	}
	if state.BusinessID == "" || !state.BusinessValidated {
		return &AuthzError{Code: "BUSINESS_CONTEXT_REQUIRED", Err: domain.ErrBusinessContextMissing}
	}
	membership, ok := state.Memberships.FindBusiness(state.BusinessID)
	if !ok || !membership.Active {
		return &AuthzError{Code: "ACCESS_DENIED", Err: domain.ErrBusinessAccessDenied}
	}
	for _, permission := range required {
		if !membership.HasPermission(permission) {
			return &AuthzError{Code: "INSUFFICIENT_PERMISSIONS", Err: domain.ErrInsufficientPermission}
		}
	}
	return e.consultPolicy(ctx, state, method, path)
}

// Allowed is the bare permission check for a single membership.
func Allowed(membership domain.BusinessMembership, required []string, superuser bool) bool {
	if superuser {
		return true
	}
	for _, permission := range required {
		if !membership.HasPermission(permission) {
			return false
		}
	}
	return true
}

func (e *Evaluator) requiredPermissions(method, path string) []string {
	var patternMatch []string
	for _, r := range e.requirements {
		if r.Method != "*" && !strings.EqualFold(r.Method, method) {
			continue
		}
		if r.Pattern == path {
			return r.Permissions
		}
		if patternMatch == nil && matchPattern(r.Pattern, path) {
			patternMatch = r.Permissions
		}
	}
	return patternMatch
}

// matchPattern supports a single `*` wildcard, prefix/suffix match only.
func matchPattern(pattern, path string) bool {
	star := strings.Index(pattern, "*")
	if star < 0 {
		return false
	}
	prefix, suffix := pattern[:star], pattern[star+1:]
	if len(path) < len(prefix)+len(suffix) {
		return false
	}
	return strings.HasPrefix(path, prefix) && strings.HasSuffix(path, suffix)
}

// Policy failures degrade to allow: the permission check above remains the
// authoritative gate when the engine is unavailable.
func (e *Evaluator) consultPolicy(ctx context.Context, state *domain.AuthState, method, path string) error {
	if e.policy == nil {
		return nil
	}
	input := domain.AccessPolicyInput{
		Subject:    state.Identity.ID,
		BusinessID: state.BusinessID,
		Superuser:  state.Identity.IsSuperuser,
		Method:     method,
		Path:       path,
	}
	if membership, ok := state.Memberships.FindBusiness(state.BusinessID); ok {
		input.Role = membership.Role
		input.RoleLevel = membership.RoleLevel
		input.Permissions = membership.Permissions
	}
	evaluation, err := e.policy.Evaluate(ctx, input)
	if err != nil {
		return nil
	}
	if !evaluation.Result.Allow {
		return &AuthzError{Code: "POLICY_DENIED", Err: domain.ErrInsufficientPermission}
	}
	return nil
}

var _ domain.AccessEvaluator = (*Evaluator)(nil)
