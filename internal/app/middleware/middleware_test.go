package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/redink-ai/redink/internal/pkg/auth"
	"github.com/redink-ai/redink/pkg/constant"
	"github.com/redink-ai/redink/pkg/domain/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubUsers map[uint]*model.User

func (s stubUsers) GetUserByID(ctx context.Context, id uint) (*model.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, constant.ErrUnauthorized
}

func newAuthRouter(t *testing.T) (*gin.Engine, *auth.TokenManager) {
	t.Helper()
	tokens, err := auth.NewTokenManager("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	m := NewMiddleware(tokens, stubUsers{
		1: {ID: 1, Username: "alice", IsActive: true},
		2: {ID: 2, Username: "bob", IsActive: false},
	})
	r := gin.New()
	whoami := func(c *gin.Context) {
		if u := CurrentUser(c); u != nil {
			c.String(http.StatusOK, u.Username)
			return
		}
		c.String(http.StatusOK, "guest")
	}
	r.GET("/required", m.JWTAuth(), whoami)
	r.GET("/optional", m.JWTAuthOptional(), whoami)
	return r, tokens
}

func TestJWTAuth(t *testing.T) {
	r, tokens := newAuthRouter(t)
	alice, _, _ := tokens.Generate(1, "alice")
	bob, _, _ := tokens.Generate(2, "bob")
	ghost, _, _ := tokens.Generate(9, "ghost")

	tests := []struct {
		name     string
		path     string
		header   string
		wantCode int
		wantBody string
	}{
		{"必需-有效令牌", "/required", "Bearer " + alice, http.StatusOK, "alice"},
		{"必需-缺少令牌", "/required", "", http.StatusUnauthorized, ""},
		{"必需-格式错误", "/required", "Token " + alice, http.StatusUnauthorized, ""},
		{"必需-伪造令牌", "/required", "Bearer not.a.jwt", http.StatusUnauthorized, ""},
		{"必需-用户被禁用", "/required", "Bearer " + bob, http.StatusUnauthorized, ""},
		{"必需-用户不存在", "/required", "Bearer " + ghost, http.StatusUnauthorized, ""},
		{"可选-有效令牌", "/optional", "Bearer " + alice, http.StatusOK, "alice"},
		{"可选-游客", "/optional", "", http.StatusOK, "guest"},
		{"可选-无效令牌按游客处理", "/optional", "Bearer broken", http.StatusOK, "guest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.wantCode {
				t.Errorf("状态码 = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.GET("/x", RateLimit(1, 2), func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	for i := 0; i < 2; i++ {
		if code := do("1.1.1.1"); code != http.StatusOK {
			t.Fatalf("第 %d 次请求状态码 = %d", i+1, code)
		}
	}
	if code := do("1.1.1.1"); code != http.StatusTooManyRequests {
		t.Errorf("超出突发上限后状态码 = %d", code)
	}
	if code := do("2.2.2.2"); code != http.StatusOK {
		t.Errorf("其他IP不受影响, 状态码 = %d", code)
	}
}

func TestCors(t *testing.T) {
	r := gin.New()
	r.Use(Cors([]string{"http://localhost:5173/"}))
	r.GET("/api/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Errorf("预检响应 = %d %v", w.Code, w.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("未允许的 Origin 不应返回跨域头")
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("应生成请求ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc" {
		t.Errorf("请求ID = %q, want abc", got)
	}
}
