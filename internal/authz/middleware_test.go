package authz

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func fakeVerifier(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch body.Token {
		case "admin-token":
			_ = json.NewEncoder(w).Encode(Identity{Subject: "ops", Roles: []string{"admin"}})
		case "viewer-token":
			_ = json.NewEncoder(w).Encode(Identity{Subject: "someone", Roles: []string{"viewer"}})
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func adminRouter(t *testing.T, client *Client) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	admin := r.Group("/api/v1/admin", RequireAdminMiddleware(client, zap.NewNop()))
	admin.GET("/jobs", func(c *gin.Context) {
		subject := ""
		if id, ok := IdentityFrom(c); ok {
			subject = id.Subject
		}
		c.JSON(http.StatusOK, gin.H{"subject": subject})
	})
	return r
}

func adminRequest(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/jobs", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAdminMiddleware(t *testing.T) {
	t.Setenv("IMF_AUTH_DISABLED", "")
	verifier := fakeVerifier(t)
	client := &Client{VerifyURL: verifier.URL, Timeout: 2 * time.Second, HTTP: verifier.Client()}
	r := adminRouter(t, client)

	if w := adminRequest(r, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status=%d want 401", w.Code)
	}
	if w := adminRequest(r, "bogus"); w.Code != http.StatusUnauthorized {
		t.Fatalf("rejected token status=%d want 401", w.Code)
	}
	if w := adminRequest(r, "viewer-token"); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin status=%d want 403", w.Code)
	}
	w := adminRequest(r, "admin-token")
	if w.Code != http.StatusOK {
		t.Fatalf("admin status=%d want 200", w.Code)
	}
	var resp struct {
		Subject string `json:"subject"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Subject != "ops" {
		t.Fatalf("subject=%q want ops", resp.Subject)
	}
}

func TestRequireAdminMiddlewareVerifierDown(t *testing.T) {
	t.Setenv("IMF_AUTH_DISABLED", "")
	client := &Client{VerifyURL: "http://127.0.0.1:1/verify", Timeout: 200 * time.Millisecond}
	r := adminRouter(t, client)

	if w := adminRequest(r, "admin-token"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503", w.Code)
	}
}

func TestRequireAdminMiddlewareDisabled(t *testing.T) {
	t.Setenv("IMF_AUTH_DISABLED", "true")
	r := adminRouter(t, &Client{})

	w := adminRequest(r, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d want 200 with auth disabled", w.Code)
	}
}
