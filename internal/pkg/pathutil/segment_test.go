package pathutil

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/redink-ai/redink/pkg/constant"
)

func TestValidateSegment(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"普通任务ID", "task_1a2b3c4d", false},
		{"带扩展名的文件", "0.png", false},
		{"父目录", "..", true},
		{"当前目录", ".", true},
		{"空值", "", true},
		{"正斜杠", "a/b", true},
		{"反斜杠", `a\b`, true},
		{"穿越前缀", "../etc", true},
		{"包含 NUL", "a\x00b", true},
		{"点开头的普通名字", "..hidden", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSegment(tt.value, "task_id")
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateSegment(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, constant.ErrValidation) {
				t.Errorf("错误应包装 ErrValidation，实际: %v", err)
			}
		})
	}
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	got, err := SafeJoin(root, "task_1", "0.png")
	if err != nil {
		t.Fatalf("SafeJoin 返回错误: %v", err)
	}
	if want := filepath.Join(root, "task_1", "0.png"); got != want {
		t.Errorf("SafeJoin = %q, want %q", got, want)
	}

	if _, err := SafeJoin(root, "..", "secret"); err == nil {
		t.Error("包含 .. 的片段应被拒绝")
	}
}
