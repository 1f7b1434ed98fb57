package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yeisme/fsindex/pkg/app"
	"github.com/yeisme/fsindex/pkg/configs"
	"github.com/yeisme/fsindex/pkg/internal/query"
	"github.com/yeisme/fsindex/pkg/internal/rpc"
	"github.com/yeisme/fsindex/pkg/internal/service"
	"github.com/yeisme/fsindex/pkg/internal/wire"
)

func testConfig(t *testing.T) (*configs.AppConfig, string) {
	t.Helper()

	// unix socket 路径有长度上限，不用 t.TempDir.
	sockDir, err := os.MkdirTemp("", "fsi")
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { _ = os.RemoveAll(sockDir) })

	root := t.TempDir()
	for name, body := range map[string]string{"notes.txt": "hello", "report.pdf": "%PDF"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	cfg := &configs.AppConfig{}
	cfg.Log.Level = "error"
	cfg.Server.SocketPath = filepath.Join(sockDir, "fsindex.sock")
	cfg.Server.Workers = 2
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Index.Roots = []string{root}
	cfg.Index.ScanWorkers = 2
	cfg.Index.ExclusionFile = filepath.Join(t.TempDir(), "exclusions.conf")

	return cfg, root
}

// TestServerOptions 限流只在启用时创建.
func TestServerOptions(t *testing.T) {
	var cfg configs.AppConfig
	cfg.Server.SocketPath = "/tmp/x.sock"
	cfg.Server.MaxMessageLines = 50

	opts := app.ServerOptions(cfg)
	if opts.Limiter != nil || opts.Transport.MaxLines != 50 || opts.SocketPath != "/tmp/x.sock" {
		t.Errorf("options = %+v", opts)
	}

	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RPS = 10
	cfg.RateLimit.Burst = 2

	if opts := app.ServerOptions(cfg); opts.Limiter == nil || opts.Limiter.Burst() != 2 {
		t.Errorf("limiter = %v", opts.Limiter)
	}
}

// TestNewEngineExclusions 排除列表文件在创建引擎时加载.
func TestNewEngineExclusions(t *testing.T) {
	cfg, root := testConfig(t)

	skipped := filepath.Join(root, "private")
	if err := os.WriteFile(cfg.Index.ExclusionFile, []byte("# comment\n"+skipped+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	engine, err := app.NewEngine(*cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if !engine.Exclusions().Contains(filepath.Join(skipped, "a.txt")) {
		t.Errorf("exclusions = %v", engine.Exclusions().Paths())
	}
}

// TestRun 启动守护进程，通过 socket 扫描与搜索，取消 ctx 后正常退出.
func TestRun(t *testing.T) {
	cfg, _ := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)

	go func() { done <- a.Run(ctx) }()

	client := rpc.NewClient(cfg.Server.SocketPath, rpc.WithTimeout(5*time.Second))

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err := rpc.Invoke[wire.Empty](ctx, client, service.MethodPing, wire.Empty{})
		if err == nil {
			break
		}

		if time.Now().After(deadline) {
			t.Fatalf("daemon not answering: %v", err)
		}

		time.Sleep(20 * time.Millisecond)
	}

	report, err := rpc.Invoke[wire.ScanReport](ctx, client, service.MethodScan, wire.ScanRequest{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	if report.Seen != 2 {
		t.Errorf("report = %s", report)
	}

	files, err := rpc.Invoke[wire.FileList](ctx, client, service.MethodSearch, query.Compile("ext:pdf"))
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if len(files) != 1 || files[0].Name != "report.pdf" {
		t.Errorf("search = %+v", files)
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if _, err := os.Stat(cfg.Server.SocketPath); !os.IsNotExist(err) {
		t.Errorf("socket left behind: %v", err)
	}
}
