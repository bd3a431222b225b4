package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/get-hunter/hero365-app-sub007/internal/domain"
	"github.com/get-hunter/hero365-app-sub007/internal/infra/auth/credential"
	"github.com/get-hunter/hero365-app-sub007/internal/infra/token"
	"github.com/get-hunter/hero365-app-sub007/internal/usecase"
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}

type membershipResponse struct {
	BusinessID  string   `json:"business_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	RoleLevel   int      `json:"role_level"`
}

type sessionResponse struct {
	AccessToken string               `json:"access_token"`
	TokenType   string               `json:"token_type"`
	ExpiresIn   int64                `json:"expires_in"`
	BusinessID  string               `json:"business_id,omitempty"`
	Memberships []membershipResponse `json:"business_memberships"`
}

func (s *Server) sessionResponse(session usecase.Session) sessionResponse {
	return sessionResponse{
		AccessToken: session.Token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.cfg.TokenLifetime.Seconds()),
		BusinessID:  session.BusinessID,
		Memberships: encodeMemberships(session.Memberships),
	}
}

func encodeMemberships(snapshot domain.MembershipSnapshot) []membershipResponse {
	out := make([]membershipResponse, 0, len(snapshot))
	for _, m := range snapshot {
		out = append(out, membershipResponse{
			BusinessID:  m.BusinessID,
			Role:        m.Role,
			Permissions: m.Permissions,
			RoleLevel:   m.RoleLevel,
		})
	}
	return out
}

func (s *Server) handleHealthz(c *gin.Context) {
	mode := "no-db"
	if s.db != nil {
		mode = "db"
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": mode})
}

type signinRequest struct {
	AccessToken string `json:"access_token"`
}

// handleSignin exchanges a provider-issued credential for a session token
// with the caller's memberships and default business resolved.
func (s *Server) handleSignin(c *gin.Context) {
	if s.provider == nil || s.sessions == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "sign-in is not configured")
		return
	}
	var req signinRequest
	_ = c.ShouldBindJSON(&req)
	raw := strings.TrimSpace(req.AccessToken)
	if raw == "" {
		raw = credential.FromRequest(c.Request)
	}
	if raw == "" {
		writeErrorCode(c, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "credential required")
		return
	}

	identity, err := s.provider.Verify(c.Request.Context(), raw)
	if err != nil {
		s.writeSessionError(c, err)
		return
	}
	session, err := s.sessions.Issue(c.Request.Context(), identity)
	if err != nil {
		s.writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.sessionResponse(session))
}

type refreshRequest struct {
	AccessToken string `json:"access_token"`
}

// handleRefresh re-issues a session token from a still-valid one. The new
// token carries a fresh snapshot; the current business survives only when the
// caller is still an active member there.
func (s *Server) handleRefresh(c *gin.Context) {
	if s.tokens == nil || s.sessions == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "refresh is not configured")
		return
	}
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	raw := strings.TrimSpace(req.AccessToken)
	if raw == "" {
		raw = credential.FromRequest(c.Request)
	}
	if raw == "" || !token.IsSessionToken(raw) {
		writeErrorCode(c, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "session token required")
		return
	}
	claims, err := s.tokens.Verify(raw)
	if err != nil {
		s.writeSessionError(c, err)
		return
	}
	session, err := s.sessions.Refresh(c.Request.Context(), claims.Subject, claims.CurrentBusinessID)
	if err != nil {
		s.writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.sessionResponse(session))
}

type switchBusinessRequest struct {
	BusinessID string `json:"business_id"`
}

// handleSwitchBusiness re-targets the caller's session at another business.
// Denial leaves the presented session untouched.
func (s *Server) handleSwitchBusiness(c *gin.Context) {
	if s.sessions == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "switch is not configured")
		return
	}
	state := StateFrom(c)
	if !state.Authenticated || state.Identity == nil {
		writeErrorCode(c, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "authentication required")
		return
	}
	var req switchBusinessRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.BusinessID) == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "business_id is required")
		return
	}

	session, err := s.sessions.Switch(c.Request.Context(), state.Identity.ID, strings.TrimSpace(req.BusinessID))
	if err != nil {
		s.writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.sessionResponse(session))
}

func (s *Server) handleMe(c *gin.Context) {
	state := StateFrom(c)
	if !state.Authenticated || state.Identity == nil {
		writeErrorCode(c, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "authentication required")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":                   state.Identity.ID,
		"email":                state.Identity.Email,
		"phone":                state.Identity.Phone,
		"is_superuser":         state.Identity.IsSuperuser,
		"business_memberships": encodeMemberships(state.Memberships),
	})
}

// handleCurrentBusinessContext reports the business the session operates
// under. A caller with no memberships gets a null context, not an error.
func (s *Server) handleCurrentBusinessContext(c *gin.Context) {
	state := StateFrom(c)
	if !state.Authenticated || state.Identity == nil {
		writeErrorCode(c, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "authentication required")
		return
	}
	var membership domain.BusinessMembership
	resolved := false
	if state.BusinessID != "" {
		if m, ok := state.Memberships.FindBusiness(state.BusinessID); ok && m.Active {
			membership = m
			resolved = true
		}
	}
	if !resolved {
		membership, resolved = usecase.ResolveBusinessContext(state.Memberships)
	}
	if !resolved {
		c.JSON(http.StatusOK, gin.H{"business_id": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"business_id": membership.BusinessID,
		"role":        membership.Role,
		"permissions": membership.Permissions,
		"role_level":  membership.RoleLevel,
	})
}

func (s *Server) handleListEstimates(c *gin.Context) {
	state := StateFrom(c)
	c.JSON(http.StatusOK, gin.H{"business_id": state.BusinessID, "estimates": []any{}})
}

func (s *Server) handleCreateEstimate(c *gin.Context) {
	state := StateFrom(c)
	c.JSON(http.StatusCreated, gin.H{"business_id": state.BusinessID, "status": "created"})
}

func (s *Server) handleListJobs(c *gin.Context) {
	state := StateFrom(c)
	c.JSON(http.StatusOK, gin.H{"business_id": state.BusinessID, "jobs": []any{}})
}

func (s *Server) handleCreateJob(c *gin.Context) {
	state := StateFrom(c)
	c.JSON(http.StatusCreated, gin.H{"business_id": state.BusinessID, "status": "created"})
}

func (s *Server) handleListActivities(c *gin.Context) {
	state := StateFrom(c)
	c.JSON(http.StatusOK, gin.H{"business_id": state.BusinessID, "activities": []any{}})
}

// writeSessionError maps session operation failures onto the pipeline's
// error taxonomy. Upstream outages degrade to 401; anything outside the
// taxonomy is logged and ends the request with a generic 500.
func (s *Server) writeSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrBusinessAccessDenied):
		writeErrorCode(c, http.StatusForbidden, "ACCESS_DENIED", "no access to this business")
	case errors.Is(err, domain.ErrTokenExpired),
		errors.Is(err, domain.ErrTokenMalformed),
		errors.Is(err, domain.ErrUnauthenticated),
		errors.Is(err, domain.ErrUpstreamUnavailable):
		writeErrorCode(c, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "authentication required")
	default:
		s.log.Error("session operation failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}
