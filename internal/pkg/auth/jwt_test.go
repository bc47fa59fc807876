package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/redink-ai/redink/pkg/constant"
)

func TestTokenRoundTrip(t *testing.T) {
	m, err := NewTokenManager("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	token, expiresAt, err := m.Generate(42, "alice")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Errorf("expiresAt = %v", expiresAt)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	id, err := claims.UserDBID()
	if err != nil || id != 42 || claims.Username != "alice" {
		t.Errorf("claims = %+v, id = %d, err = %v", claims, id, err)
	}
}

func TestTokenRejected(t *testing.T) {
	m, _ := NewTokenManager("test-secret", time.Hour)
	other, _ := NewTokenManager("another-secret", time.Hour)
	token, _, _ := other.Generate(1, "bob")

	expired, _ := NewTokenManager("test-secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _, _ := expired.Generate(1, "bob")

	tests := []struct {
		name  string
		token string
	}{
		{"签名不匹配", token},
		{"已过期", old},
		{"格式错误", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Parse(tt.token); !errors.Is(err, constant.ErrInvalidToken) {
				t.Errorf("Parse() error = %v, want ErrInvalidToken", err)
			}
		})
	}

	if _, err := NewTokenManager("", time.Hour); err == nil {
		t.Error("空 secret 应当报错")
	}
}
