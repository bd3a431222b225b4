package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/get-hunter/hero365-app-sub007/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type countingVerifier struct {
	verified domain.VerifiedIdentity
	err      error
	calls    int
}

func (v *countingVerifier) Verify(_ context.Context, _ string) (domain.VerifiedIdentity, error) {
	v.calls++
	if v.err != nil {
		return domain.VerifiedIdentity{}, v.err
	}
	return v.verified, nil
}

type allowAllEvaluator struct{}

func (allowAllEvaluator) Require(_ context.Context, state *domain.AuthState, _, _ string) error {
	if state == nil || !state.Authenticated {
		return domain.ErrUnauthenticated
	}
	return nil
}

func pipelineRouter(p *Pipeline) *gin.Engine {
	r := gin.New()
	r.Use(p.Middleware())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/api/v1/estimates", func(c *gin.Context) {
		state := StateFrom(c)
		c.JSON(http.StatusOK, gin.H{"business_id": state.BusinessID})
	})
	return r
}

func TestPipeline_BypassSkipsVerifier(t *testing.T) {
	verifier := &countingVerifier{}
	p := NewPipeline(zap.NewNop())
	p.Use(Authenticate(verifier, []string{"/healthz"}))

	w := httptest.NewRecorder()
	pipelineRouter(p).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if verifier.calls != 0 {
		t.Fatalf("verifier called %d times on a bypassed path", verifier.calls)
	}
}

func TestPipeline_ExpiredTokenDegradesTo401(t *testing.T) {
	verifier := &countingVerifier{err: domain.ErrTokenExpired}
	p := NewPipeline(zap.NewNop())
	p.Use(Authenticate(verifier, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/estimates", nil)
	req.Header.Set("Authorization", "Bearer expired-token")
	w := httptest.NewRecorder()
	pipelineRouter(p).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), "AUTHENTICATION_REQUIRED") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestPipeline_MissingCredentialRejectedAtAccessControl(t *testing.T) {
	verifier := &countingVerifier{}
	p := NewPipeline(zap.NewNop())
	p.Use(Authenticate(verifier, nil))
	p.Use(BusinessContext(nil))
	p.Use(AccessControl(allowAllEvaluator{}, nil))

	w := httptest.NewRecorder()
	pipelineRouter(p).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/estimates", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if verifier.calls != 0 {
		t.Fatalf("verifier called %d times without a credential", verifier.calls)
	}
}

// An absent credential is not an authentication failure: the earlier stages
// leave the state unauthenticated and only access control rejects.
func TestPipeline_AbsentCredentialPassesAuthentication(t *testing.T) {
	p := NewPipeline(zap.NewNop())
	p.Use(Authenticate(&countingVerifier{}, nil))
	p.Use(BusinessContext(nil))

	w := httptest.NewRecorder()
	pipelineRouter(p).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/estimates", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 without an access-control stage: %s", w.Code, w.Body.String())
	}
}

func TestPipeline_SessionBusinessHintValidated(t *testing.T) {
	verifier := &countingVerifier{verified: domain.VerifiedIdentity{
		Identity: domain.Identity{ID: "user-1"},
		Memberships: domain.MembershipSnapshot{
			{BusinessID: "biz-a", Role: "owner", Active: true},
			{BusinessID: "biz-b", Role: "member", Active: true},
		},
		ActiveBusinessID: "BIZ-B",
	}}
	p := NewPipeline(zap.NewNop())
	p.Use(Authenticate(verifier, nil))
	p.Use(BusinessContext(nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/estimates", nil)
	req.Header.Set("Authorization", "Bearer session-token")
	w := httptest.NewRecorder()
	pipelineRouter(p).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"business_id":"biz-b"`) {
		t.Fatalf("hint not canonicalized: %s", w.Body.String())
	}
}

func TestPipeline_RevokedBusinessHintRedefaults(t *testing.T) {
	verifier := &countingVerifier{verified: domain.VerifiedIdentity{
		Identity: domain.Identity{ID: "user-1"},
		Memberships: domain.MembershipSnapshot{
			{BusinessID: "biz-a", Role: "owner", Active: true},
		},
		ActiveBusinessID: "biz-revoked",
	}}
	p := NewPipeline(zap.NewNop())
	p.Use(Authenticate(verifier, nil))
	p.Use(BusinessContext(nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/estimates", nil)
	req.Header.Set("Authorization", "Bearer session-token")
	w := httptest.NewRecorder()
	pipelineRouter(p).ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), `"business_id":"biz-a"`) {
		t.Fatalf("expected re-default to biz-a: %s", w.Body.String())
	}
}

func TestPipeline_RemoveAndNames(t *testing.T) {
	p := NewPipeline(zap.NewNop())
	p.Use(Authenticate(&countingVerifier{}, nil))
	p.Use(BusinessContext(nil))
	p.Use(AccessControl(allowAllEvaluator{}, nil))

	names := p.Names()
	want := []string{"authenticate", "business-context", "access-control"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names[%d] = %s, want %s", i, names[i], want[i])
		}
	}

	if !p.Remove("business-context") {
		t.Fatal("expected removal to succeed")
	}
	if p.Remove("business-context") {
		t.Fatal("second removal must report absence")
	}
	if len(p.Names()) != 2 {
		t.Fatalf("chain = %v after removal", p.Names())
	}
}

func TestPipeline_ChainExposesBypassSets(t *testing.T) {
	p := NewPipeline(zap.NewNop())
	p.Use(Authenticate(&countingVerifier{}, []string{"/healthz", "/docs"}))

	chain := p.Chain()
	if len(chain) != 1 || chain[0].Name != "authenticate" {
		t.Fatalf("chain = %+v", chain)
	}
	if len(chain[0].Bypass) != 2 || chain[0].Bypass[0] != "/healthz" {
		t.Fatalf("bypass = %v", chain[0].Bypass)
	}

	chain[0].Bypass[0] = "/mutated"
	if p.Chain()[0].Bypass[0] != "/healthz" {
		t.Fatal("Chain must return a copy of the bypass set")
	}
}

func TestPipeline_IntrospectionLeaksNoSecrets(t *testing.T) {
	p := NewPipeline(zap.NewNop())
	p.Use(Authenticate(&countingVerifier{}, []string{"/healthz"}))
	for _, name := range p.Names() {
		if strings.ContainsAny(name, " /.") {
			t.Fatalf("chain name %q looks like more than a name", name)
		}
	}
}

func TestPathBypassed(t *testing.T) {
	cases := []struct {
		entry string
		path  string
		want  bool
	}{
		{"/healthz", "/healthz", true},
		{"/docs", "/docs/openapi", true},
		{"/docs", "/docsearch", false},
		{"/docs/", "/docs/anything", true},
		{"/api/v1/auth/signin", "/api/v1/auth/signin", true},
		{"/api/v1/auth/signin", "/api/v1/auth/signin-other", false},
		{"", "/anything", false},
	}
	for _, tc := range cases {
		if got := pathBypassed([]string{tc.entry}, tc.path); got != tc.want {
			t.Fatalf("pathBypassed(%q, %q) = %v, want %v", tc.entry, tc.path, got, tc.want)
		}
	}
}

func TestPipeline_UpstreamFailureNever5xx(t *testing.T) {
	verifier := &countingVerifier{err: domain.ErrUpstreamUnavailable}
	p := NewPipeline(zap.NewNop())
	p.Use(Authenticate(verifier, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/estimates", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	w := httptest.NewRecorder()
	pipelineRouter(p).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 when upstream is down", w.Code)
	}
}

func TestPipeline_UnexpectedStageErrorYields500(t *testing.T) {
	p := NewPipeline(zap.NewNop())
	p.Use(Interceptor{
		Name: "flaky",
		Handle: func(_ *gin.Context, _ *domain.AuthState) error {
			return errors.New("boom")
		},
	})

	w := httptest.NewRecorder()
	pipelineRouter(p).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/estimates", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 for a non-taxonomy error", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INTERNAL_ERROR") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), "boom") {
		t.Fatalf("internal error detail leaked to the client: %s", w.Body.String())
	}
}

func TestPipeline_PreferredMetadataIgnoredPerRequest(t *testing.T) {
	verifier := &countingVerifier{verified: domain.VerifiedIdentity{
		Identity: domain.Identity{
			ID:       "user-1",
			Metadata: map[string]string{domain.MetadataPreferredBusiness: "biz-b"},
		},
		Memberships: domain.MembershipSnapshot{
			{BusinessID: "biz-a", Role: "owner", Active: true},
			{BusinessID: "biz-b", Role: "member", Active: true},
		},
	}}
	p := NewPipeline(zap.NewNop())
	p.Use(Authenticate(verifier, nil))
	p.Use(BusinessContext(nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/estimates", nil)
	req.Header.Set("Authorization", "Bearer provider-token")
	w := httptest.NewRecorder()
	pipelineRouter(p).ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), `"business_id":"biz-a"`) {
		t.Fatalf("expected first active membership, got: %s", w.Body.String())
	}
}
