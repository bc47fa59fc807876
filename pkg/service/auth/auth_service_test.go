package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redink-ai/redink/internal/infra/persistence/database/dbtest"
	"github.com/redink-ai/redink/internal/infra/persistence/ent"
	jwtauth "github.com/redink-ai/redink/internal/pkg/auth"
	"github.com/redink-ai/redink/internal/pkg/security"
	"github.com/redink-ai/redink/pkg/constant"
	"github.com/redink-ai/redink/pkg/domain/model"
	"github.com/redink-ai/redink/pkg/domain/repository"
)

func newTestAuthService(t *testing.T) (AuthService, *jwtauth.TokenManager, repository.Repositories) {
	t.Helper()
	security.UseMinCost()
	db, dialectName := dbtest.Open(t)
	tokens, err := jwtauth.NewTokenManager("secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	repos := ent.NewRepositories(db, dialectName)
	return NewAuthService(repos.User, ent.NewTransactionManager(db, dialectName), tokens), tokens, repos
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc, tokens, _ := newTestAuthService(t)

	res, err := svc.Register(ctx, "  alice ", "secret1")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if res.User.Username != "alice" || res.User.PublicID == "" || res.TokenType != "Bearer" {
		t.Errorf("Register() = %+v", res.User)
	}

	if _, err := svc.Register(ctx, "alice", "secret2"); !errors.Is(err, constant.ErrConflict) {
		t.Errorf("重复注册 error = %v, want ErrConflict", err)
	}

	login, err := svc.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if login.User.LastLoginAt == nil {
		t.Error("登录后应当记录最后登录时间")
	}
	claims, err := tokens.Parse(login.AccessToken)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	id, _ := claims.UserDBID()
	if id != login.User.ID || claims.Username != "alice" {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := svc.Login(ctx, "alice", "wrong-pass"); !errors.Is(err, constant.ErrUnauthorized) {
		t.Errorf("密码错误 error = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.Login(ctx, "nobody", "secret1"); !errors.Is(err, constant.ErrUnauthorized) {
		t.Errorf("用户不存在 error = %v, want ErrUnauthorized", err)
	}

	refreshed, err := svc.Refresh(ctx, login.User.ID)
	if err != nil || refreshed.AccessToken == "" {
		t.Errorf("Refresh() = %+v, %v", refreshed, err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	tests := []struct {
		name     string
		username string
		password string
	}{
		{"用户名为空", "", "secret1"},
		{"用户名过短", "ab", "secret1"},
		{"用户名过长", string(make([]rune, 51)), "secret1"},
		{"密码过短", "alice", "12345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tt.username, tt.password); !errors.Is(err, constant.ErrValidation) {
				t.Errorf("Register() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestEnsureDefaultUserAssignsOrphans(t *testing.T) {
	ctx := context.Background()
	svc, _, repos := newTestAuthService(t)

	rec := &model.HistoryRecord{ID: "r1", Title: "无主记录", Status: model.RecordStatusDraft, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := repos.History.Create(ctx, rec); err != nil {
		t.Fatal(err)
	}

	user, err := svc.EnsureDefaultUser(ctx)
	if err != nil || user == nil || user.Username != model.DefaultAdminUsername {
		t.Fatalf("EnsureDefaultUser() = %+v, %v", user, err)
	}
	got, _ := repos.History.FindByID(ctx, "r1")
	if got.UserID == nil || *got.UserID != user.ID {
		t.Errorf("无主记录应当归属默认用户: %v", got.UserID)
	}

	again, err := svc.EnsureDefaultUser(ctx)
	if err != nil || again.ID != user.ID {
		t.Errorf("重复调用应当返回同一用户: %+v, %v", again, err)
	}
	if n, _ := repos.User.Count(ctx); n != 1 {
		t.Errorf("用户数 = %d, want 1", n)
	}
}
