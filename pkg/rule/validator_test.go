package rule_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/yeisme/fsindex/pkg/rule"
)

type serverSection struct {
	SocketPath string   `mapstructure:"socket_path" rule:"required,sockpath"`
	Workers    int      `mapstructure:"workers"     rule:"min=1,max=1024"`
	Skip       []string `mapstructure:"skip"        rule:"dive,fileext"`
}

type appSection struct {
	Server serverSection `mapstructure:"server"`
}

// TestEngine Engine 返回非 nil 实例.
func TestEngine(t *testing.T) {
	if rule.Engine() == nil {
		t.Fatal("Engine() returned nil")
	}
}

// TestValidateStruct 错误按 mapstructure 字段路径汇总.
func TestValidateStruct(t *testing.T) {
	ok := appSection{Server: serverSection{SocketPath: "/run/user/1000/fsindex.sock", Workers: 8, Skip: []string{"exe", "so"}}}
	if err := rule.ValidateStruct(ok); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := appSection{Server: serverSection{SocketPath: "fsindex.sock", Workers: 0, Skip: []string{".exe"}}}

	err := rule.ValidateStruct(bad)

	var verrs rule.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("want ValidationErrors, got %T %v", err, err)
	}

	for _, field := range []string{"server.socket_path", "server.workers", "server.skip[0]"} {
		if _, ok := verrs[field]; !ok {
			t.Errorf("missing error for %s in %v", field, verrs)
		}
	}

	if !strings.Contains(err.Error(), "server.socket_path: must be an absolute path") {
		t.Errorf("unexpected message: %s", err)
	}
}

// TestSockPath 超过 sun_path 上限的路径被拒绝.
func TestSockPath(t *testing.T) {
	long := "/" + strings.Repeat("a", rule.MaxSocketPathLen)

	cases := []struct {
		path string
		ok   bool
	}{
		{"/tmp/fsindex.sock", true},
		{"relative.sock", false},
		{long, false},
		{long[:rule.MaxSocketPathLen], true},
	}

	for _, c := range cases {
		err := rule.ValidateVar(c.path, "sockpath")
		if (err == nil) != c.ok {
			t.Errorf("sockpath(%q) err=%v, want ok=%v", c.path, err, c.ok)
		}
	}
}

// TestRegisterValidation 自定义规则可以注册并使用.
func TestRegisterValidation(t *testing.T) {
	err := rule.RegisterValidation("even_length", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String())%2 == 0
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := rule.ValidateVar("test", "even_length"); err != nil {
		t.Errorf("even length rejected: %v", err)
	}

	if err := rule.ValidateVar("test1", "even_length"); err == nil {
		t.Error("odd length accepted")
	}
}

// TestRegisterAlias 别名展开为原规则.
func TestRegisterAlias(t *testing.T) {
	rule.RegisterAlias("category_name", "required,oneof=document image audio video archive code other")

	if err := rule.ValidateVar("image", "category_name"); err != nil {
		t.Errorf("valid category rejected: %v", err)
	}

	if err := rule.ValidateVar("photo", "category_name"); err == nil {
		t.Error("unknown category accepted")
	}
}
