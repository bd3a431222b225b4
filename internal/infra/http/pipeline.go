// Package http hosts the request pipeline: an ordered chain of named
// interceptors that each request passes through before reaching a handler.
// Every interceptor reads and extends the request's AuthState; a failure in
// any of them stops the chain and writes the error response.
package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/get-hunter/hero365-app-sub007/internal/domain"
	"github.com/get-hunter/hero365-app-sub007/internal/infra/auth/credential"
	"github.com/get-hunter/hero365-app-sub007/internal/infra/auth/rbac"
	"github.com/get-hunter/hero365-app-sub007/internal/usecase"
)

const stateContextKey = "authState"

// Interceptor is one named stage of the pipeline. Bypass lists the path
// prefixes the stage is skipped for.
type Interceptor struct {
	Name   string
	Bypass []string
	Handle func(c *gin.Context, state *domain.AuthState) error
}

// Pipeline runs interceptors in registration order. Stages can be removed by
// name, so a deployment that terminates auth at the edge can drop the
// verification stage without touching the rest of the chain.
type Pipeline struct {
	log          *zap.Logger
	interceptors []Interceptor
}

func NewPipeline(log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{log: log}
}

func (p *Pipeline) Use(interceptors ...Interceptor) {
	p.interceptors = append(p.interceptors, interceptors...)
}

// Remove drops the named stage and reports whether it was present.
func (p *Pipeline) Remove(name string) bool {
	for i, interceptor := range p.interceptors {
		if interceptor.Name == name {
			p.interceptors = append(p.interceptors[:i], p.interceptors[i+1:]...)
			return true
		}
	}
	return false
}

// Names returns the chain in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.interceptors))
	for i, interceptor := range p.interceptors {
		names[i] = interceptor.Name
	}
	return names
}

// StageInfo describes one configured stage for diagnostics.
type StageInfo struct {
	Name   string   `json:"name"`
	Bypass []string `json:"bypass"`
}

// Chain returns the configured stages in execution order: names and bypass
// sets only, never secrets or handler internals.
func (p *Pipeline) Chain() []StageInfo {
	chain := make([]StageInfo, len(p.interceptors))
	for i, interceptor := range p.interceptors {
		chain[i] = StageInfo{
			Name:   interceptor.Name,
			Bypass: append([]string{}, interceptor.Bypass...),
		}
	}
	return chain
}

func (p *Pipeline) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		state := &domain.AuthState{}
		c.Set(stateContextKey, state)

		path := c.Request.URL.Path
		for _, interceptor := range p.interceptors {
			if pathBypassed(interceptor.Bypass, path) {
				continue
			}
			if err := interceptor.Handle(c, state); err != nil {
				p.writeError(c, interceptor.Name, err)
				c.Abort()
				return
			}
		}
		c.Next()
	}
}

// StateFrom returns the request's AuthState. The zero state stands in when
// the pipeline middleware did not run, so handlers never nil-check.
func StateFrom(c *gin.Context) *domain.AuthState {
	raw, ok := c.Get(stateContextKey)
	if !ok {
		return &domain.AuthState{}
	}
	state, ok := raw.(*domain.AuthState)
	if !ok {
		return &domain.AuthState{}
	}
	return state
}

// pathBypassed reports whether path matches a bypass entry: exact match, a
// "/"-terminated prefix entry, or the path continuing the entry at a "/"
// boundary. "/docs" covers "/docs" and "/docs/openapi" but not "/docsearch".
func pathBypassed(bypass []string, path string) bool {
	for _, entry := range bypass {
		if entry == "" {
			continue
		}
		if entry == path {
			return true
		}
		if strings.HasSuffix(entry, "/") && strings.HasPrefix(path, entry) {
			return true
		}
		if strings.HasPrefix(path, entry) && len(path) > len(entry) && path[len(entry)] == '/' {
			return true
		}
	}
	return false
}

// Authenticate extracts the request credential and verifies it. A request
// with no credential stays unauthenticated and continues down the chain;
// rejecting it on protected routes is the access-control stage's decision.
// A credential that is present but fails verification stops here.
func Authenticate(verifier domain.CredentialVerifier, bypass []string) Interceptor {
	return Interceptor{
		Name:   "authenticate",
		Bypass: bypass,
		Handle: func(c *gin.Context, state *domain.AuthState) error {
			raw := credential.FromRequest(c.Request)
			if raw == "" {
				return nil
			}
			verified, err := verifier.Verify(c.Request.Context(), raw)
			if err != nil {
				return err
			}
			state.Authenticated = true
			state.Identity = &verified.Identity
			state.Memberships = verified.Memberships
			state.BusinessID = verified.ActiveBusinessID
			return nil
		},
	}
}

// BusinessContext resolves which business the request operates under. The
// session token's current business is honored only after validation against
// the fresh snapshot; a revoked membership re-defaults instead of keeping the
// stale business. Unauthenticated requests and requests resolving to no
// business pass through untouched: routes that need either are rejected by
// the access-control stage.
func BusinessContext(bypass []string) Interceptor {
	return Interceptor{
		Name:   "business-context",
		Bypass: bypass,
		Handle: func(c *gin.Context, state *domain.AuthState) error {
			if !state.Authenticated || state.Identity == nil {
				return nil
			}
			if state.BusinessID != "" {
				if m, ok := state.Memberships.FindBusiness(state.BusinessID); ok && m.Active {
					state.BusinessID = m.BusinessID
					state.BusinessValidated = true
					return nil
				}
				state.BusinessID = ""
			}
			if m, ok := usecase.ResolveBusinessContext(state.Memberships); ok {
				state.BusinessID = m.BusinessID
				state.BusinessValidated = true
			}
			return nil
		},
	}
}

// AccessControl delegates the final allow/deny decision to the evaluator.
func AccessControl(evaluator domain.AccessEvaluator, bypass []string) Interceptor {
	return Interceptor{
		Name:   "access-control",
		Bypass: bypass,
		Handle: func(c *gin.Context, state *domain.AuthState) error {
			return evaluator.Require(c.Request.Context(), state, c.Request.Method, c.Request.URL.Path)
		},
	}
}

// Taxonomy errors, upstream outages included, degrade to 4xx rejections: a
// caller poking at a broken provider learns nothing beyond "not
// authenticated". Anything outside the taxonomy ends the request with a
// generic 500.
func (p *Pipeline) writeError(c *gin.Context, stage string, err error) {
	if authz, ok := rbac.IsAuthzError(err); ok {
		status := http.StatusForbidden
		if authz.Code == "AUTHENTICATION_REQUIRED" {
			status = http.StatusUnauthorized
		}
		writeErrorCode(c, status, authz.Code, authzMessage(authz.Code))
		return
	}
	switch {
	case errors.Is(err, errRateLimited):
		writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
	case errors.Is(err, errRateLimiterUnavailable):
		writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMIT_UNAVAILABLE", "rate limiter unavailable")
	case errors.Is(err, domain.ErrBusinessContextMissing):
		writeErrorCode(c, http.StatusForbidden, "BUSINESS_CONTEXT_REQUIRED", "business context required")
	case errors.Is(err, domain.ErrBusinessAccessDenied):
		writeErrorCode(c, http.StatusForbidden, "ACCESS_DENIED", "no access to this business")
	case errors.Is(err, domain.ErrInsufficientPermission):
		writeErrorCode(c, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS", "insufficient permissions")
	case errors.Is(err, domain.ErrUnauthenticated),
		errors.Is(err, domain.ErrTokenExpired),
		errors.Is(err, domain.ErrTokenMalformed),
		errors.Is(err, domain.ErrUpstreamUnavailable):
		writeErrorCode(c, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "authentication required")
	default:
		// Not part of the authorization taxonomy: a bug in a stage, not a
		// credential problem. Log once with the request coordinates and end
		// the request generically instead of disguising it as a rejection.
		p.log.Error("pipeline stage failed",
			zap.String("stage", stage),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

func authzMessage(code string) string {
	switch code {
	case "AUTHENTICATION_REQUIRED":
		return "authentication required"
	case "BUSINESS_CONTEXT_REQUIRED":
		return "business context required"
	case "ACCESS_DENIED":
		return "no access to this business"
	case "INSUFFICIENT_PERMISSIONS":
		return "insufficient permissions"
	case "POLICY_DENIED":
		return "denied by access policy"
	default:
		return "forbidden"
	}
}
