package auth

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dealer-crm/internal/config"
	"dealer-crm/pkg/logger"

	"github.com/gin-gonic/gin"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "issuer",
		JWTAudience:     "aud",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := newTestManager(t)

	now := time.Unix(1700000000, 0).UTC()
	pair, err := m.IssuePair(now, Identity{UserID: "user-1", DealershipID: 7, TenantID: "t-1", Role: "manager"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected token strings")
	}

	claims, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.DealershipID != 7 || claims.TenantID != "t-1" || claims.Role != "manager" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	now := time.Now()
	p, err := m.IssuePair(now, Identity{UserID: "u", DealershipID: 1, Role: "agent"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.RefreshToken, TokenTypeAccess, now); err == nil {
		t.Fatalf("expected token_type mismatch")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1700000000, 0).UTC()
	p, err := m.IssuePair(now, Identity{UserID: "u", DealershipID: 1, Role: "agent"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.AccessToken, TokenTypeAccess, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestVerifyRejectsMissingDealership(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1700000000, 0).UTC()
	p, err := m.IssuePair(now, Identity{UserID: "u", Role: "agent"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.AccessToken, TokenTypeAccess, now); err == nil {
		t.Fatalf("expected dealership_id missing")
	}
}

func TestRequireAccessToken_InjectsIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestManager(t)
	pair, err := m.IssuePair(time.Now(), Identity{UserID: "u-9", DealershipID: 42, Role: "agent"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	r := gin.New()
	r.GET("/me", RequireAccessToken(m), func(c *gin.Context) {
		did, err := DealershipID(c.Request.Context())
		if err != nil {
			c.Status(500)
			return
		}
		c.JSON(200, gin.H{"dealership_id": did, "gin": c.GetInt64(KeyDealershipID)})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	r.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != `{"dealership_id":42,"gin":42}` {
		t.Fatalf("unexpected body %s", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != 401 {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestRequireAccessToken_TagsRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestManager(t)
	pair, err := m.IssuePair(time.Now(), Identity{UserID: "u-7", DealershipID: 7, Role: "manager"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var buf bytes.Buffer
	r := gin.New()
	r.Use(logger.Middleware(logger.NewWithWriter("test", &buf)))
	r.GET("/stats", RequireAccessToken(m), func(c *gin.Context) {
		logger.From(c.Request.Context()).Info("stats served")
		c.Status(200)
	})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	r.ServeHTTP(httptest.NewRecorder(), req)

	var line string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, "stats served") {
			line = l
		}
	}
	if !strings.Contains(line, `"dealership_id":7`) || !strings.Contains(line, `"user_id":"u-7"`) {
		t.Fatalf("expected identity on log line, got %q", line)
	}
}

func TestPasswordHashing(t *testing.T) {
	h, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := CheckPassword(h, "hunter2"); err != nil {
		t.Fatalf("expected match: %v", err)
	}
	if err := CheckPassword(h, "nope"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
