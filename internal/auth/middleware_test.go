package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"call-platform/internal/config"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T, mw func(*Manager) gin.HandlerFunc) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, err := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	tok, err := m.IssueAccessToken(time.Now(), 42, "ADMIN")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	r := gin.New()
	r.GET("/x", mw(m), func(c *gin.Context) {
		uid, err := UserID(c.Request.Context())
		if err != nil || uid != 42 {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})
	return r, tok
}

func TestRequireAccessToken_Header(t *testing.T) {
	r, tok := newTestRouter(t, RequireAccessToken)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireAccessToken_IgnoresQuery(t *testing.T) {
	r, tok := newTestRouter(t, RequireAccessToken)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?access_token="+tok, nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireAccessTokenOrQuery_Query(t *testing.T) {
	r, tok := newTestRouter(t, RequireAccessTokenOrQuery)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?access_token="+tok, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireAccessToken_InvalidToken(t *testing.T) {
	r, _ := newTestRouter(t, RequireAccessToken)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer nope")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
