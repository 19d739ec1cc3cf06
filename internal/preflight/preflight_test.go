package preflight

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mux/internal/pulse"
	"mux/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckCreatableDirectory(t *testing.T) {
	result := CheckCreatableDirectory("state", filepath.Join(t.TempDir(), "a", "b"))
	if !result.Passed {
		t.Fatalf("expected pass for creatable dir, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "will be created") {
		t.Fatalf("detail = %q", result.Detail)
	}
}

func TestServerSocketPath(t *testing.T) {
	tests := []struct {
		name    string
		server  string
		runtime string
		want    string
	}{
		{name: "unix prefix", server: "unix:/tmp/custom.sock", runtime: "/run/user/5", want: "/tmp/custom.sock"},
		{name: "bare path", server: "/tmp/other.sock", runtime: "/run/user/5", want: "/tmp/other.sock"},
		{name: "tcp server ignored", server: "tcp:host:4713", runtime: "/run/user/5", want: "/run/user/5/pulse/native"},
		{name: "runtime dir", server: "", runtime: "/run/user/7", want: "/run/user/7/pulse/native"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PULSE_SERVER", tt.server)
			t.Setenv("XDG_RUNTIME_DIR", tt.runtime)
			if got := ServerSocketPath(); got != tt.want {
				t.Fatalf("ServerSocketPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckServerSocket(t *testing.T) {
	dir := t.TempDir()
	missing := CheckServerSocket(filepath.Join(dir, "native"))
	if missing.Passed {
		t.Fatal("expected failure for missing socket")
	}

	regular := filepath.Join(dir, "plain")
	if err := os.WriteFile(regular, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if CheckServerSocket(regular).Passed {
		t.Fatal("expected failure for regular file")
	}

	sock := filepath.Join(dir, "live.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Skipf("unix sockets unavailable: %v", err)
	}
	defer ln.Close()
	if result := CheckServerSocket(sock); !result.Passed {
		t.Fatalf("expected pass for live socket, got: %s", result.Detail)
	}
}

func TestCheckAudioServer(t *testing.T) {
	fake := testsupport.NewFakeServer()
	client := pulse.NewClient("pactl", pulse.WithExecutor(fake))
	result := CheckAudioServer(context.Background(), client)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "PipeWire") {
		t.Fatalf("detail = %q", result.Detail)
	}

	fake.FailNext("info", 1)
	if CheckAudioServer(context.Background(), client).Passed {
		t.Fatal("expected failure when the server refuses")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil, nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatal(err)
	}
	client := pulse.NewClient("pactl", pulse.WithExecutor(testsupport.NewFakeServer()))

	results := RunAll(context.Background(), cfg, client)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d: %+v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}

	cfg.Journal.Enabled = false
	if got := len(RunAll(context.Background(), cfg, client)); got != 3 {
		t.Fatalf("expected journal check skipped, got %d results", got)
	}
}

func TestProbeAudioServer(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:"+filepath.Join(t.TempDir(), "none"))
	fake := testsupport.NewFakeServer()
	fake.AddHardwareSink("HW1", "Headphones")
	client := pulse.NewClient("pactl", pulse.WithExecutor(fake))

	probe := ProbeAudioServer(context.Background(), nil, client)
	if !probe.Reachable || probe.SocketOK {
		t.Fatalf("probe = %+v", probe)
	}
	if got := probe.ServerDetail(); got != "PulseAudio (on PipeWire 1.0.5) 15.0.0" {
		t.Fatalf("ServerDetail() = %q", got)
	}

	down := ServerProbe{Socket: "/x"}
	if got := down.ServerDetail(); !strings.Contains(got, "no socket at /x") {
		t.Fatalf("ServerDetail() = %q", got)
	}
}
