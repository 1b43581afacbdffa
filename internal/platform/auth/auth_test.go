package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-32-bytes-long!!!")

func makeToken(subject, role string, exp time.Time) string {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, _ := tok.SignedString(testSecret)
	return signed
}

func newVerifier() JWTVerifier { return JWTVerifier{Secret: testSecret} }

// withRole injects role into context using the unexported key (same package).
func withRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ctxKeyRole{}, role)
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	tok := makeToken("cron", "scheduler", time.Now().Add(time.Hour))
	claims, err := newVerifier().Parse(tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "cron" {
		t.Fatalf("expected subject 'cron', got %q", claims.Subject)
	}
	if claims.Role != RoleScheduler {
		t.Fatalf("expected role 'scheduler', got %q", claims.Role)
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	tok := makeToken("cron", "scheduler", time.Now().Add(-time.Hour))
	_, err := newVerifier().Parse(tok)
	if err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	tok := makeToken("cron", "scheduler", time.Now().Add(time.Hour))
	_, err := JWTVerifier{Secret: []byte("wrong-secret")}.Parse(tok)
	if err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestJWTVerifier_MalformedToken(t *testing.T) {
	_, err := newVerifier().Parse("not.a.valid.token")
	if err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestJWTVerifier_TamperedPayload(t *testing.T) {
	tok := makeToken("cron", "operator", time.Now().Add(time.Hour))
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatal("expected 3 JWT parts")
	}
	tampered := parts[0] + ".dGFtcGVyZWQ." + parts[2]
	_, err := newVerifier().Parse(tampered)
	if err == nil {
		t.Fatal("expected error for tampered token")
	}
}

func callRequireBearer(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	RequireBearer(newVerifier())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, _ := SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(sub))
	})).ServeHTTP(rr, req)
	return rr
}

func TestRequireBearer_ValidBearer(t *testing.T) {
	tok := makeToken("cron-42", RoleScheduler, time.Now().Add(time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	rr := callRequireBearer(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != "cron-42" {
		t.Fatalf("expected 'cron-42' in body, got %q", rr.Body.String())
	}
}

func TestRequireBearer_MissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := callRequireBearer(req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireBearer_NonBearerScheme(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rr := callRequireBearer(req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireBearer_InvalidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid.token.here")
	rr := callRequireBearer(req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireBearer_ExpiredToken(t *testing.T) {
	tok := makeToken("cron", "scheduler", time.Now().Add(-time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr := callRequireBearer(req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireBearer_InjectsRoleIntoContext(t *testing.T) {
	tok := makeToken("ops-1", "operator", time.Now().Add(time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	var capturedRole string
	rr := httptest.NewRecorder()
	RequireBearer(newVerifier())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedRole, _ = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, req)

	if capturedRole != "operator" {
		t.Fatalf("expected role 'operator', got %q", capturedRole)
	}
}

func callRequireRole(ctx context.Context) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/refresh/dispatch", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	RequireRole(RoleScheduler)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, req)
	return rr
}

func TestRequireRole_WithSchedulerRole(t *testing.T) {
	rr := callRequireRole(withRole(context.Background(), "scheduler"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for scheduler role, got %d", rr.Code)
	}
}

func TestRequireRole_WithOtherRole(t *testing.T) {
	rr := callRequireRole(withRole(context.Background(), "viewer"))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer role, got %d", rr.Code)
	}
}

func TestRequireRole_NoRole(t *testing.T) {
	rr := callRequireRole(context.Background())
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with no role, got %d", rr.Code)
	}
}

func TestRequireRole_CaseInsensitive(t *testing.T) {
	rr := callRequireRole(withRole(context.Background(), "SCHEDULER"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for SCHEDULER (case insensitive), got %d", rr.Code)
	}
}

func TestIssue_RoundTrip(t *testing.T) {
	tok, err := newVerifier().Issue("cron", RoleScheduler, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := newVerifier().Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "cron" || claims.Role != RoleScheduler {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}
