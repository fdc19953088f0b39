package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/graystore/internal/api"
	"github.com/nerrad567/graystore/internal/checkpoint"
	"github.com/nerrad567/graystore/internal/dbconfig"
	"github.com/nerrad567/graystore/internal/infrastructure/config"
	"github.com/nerrad567/graystore/internal/infrastructure/database"
	"github.com/nerrad567/graystore/internal/infrastructure/logging"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// writeTestConfig writes a config naming the given databases and returns
// its path. extra is appended verbatim.
func writeTestConfig(t *testing.T, dbs []string, extra string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("logging:\n  output: discard\n")
	b.WriteString("databases:\n")
	for _, db := range dbs {
		fmt.Fprintf(&b, "  - path: %q\n", db)
	}
	b.WriteString(extra)

	path := filepath.Join(t.TempDir(), "graystore.yaml")
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

// execute runs the root command with args and returns its output.
func execute(ctx context.Context, args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestInspectCommand(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.db")
	b := filepath.Join(dir, "b.db")
	cfgPath := writeTestConfig(t, []string{a, b}, "")

	out, err := execute(context.Background(), "inspect", "-c", cfgPath)
	if err != nil {
		t.Fatalf("inspect error = %v\n%s", err, out)
	}
	for _, want := range []string{"PATH", a, b, "wal", "trace,basic"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "checkpoint") {
		t.Errorf("one-shot chain should not include the checkpoint config:\n%s", out)
	}
}

func TestInspectCommand_SelectedPath(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.db")
	b := filepath.Join(dir, "b.db")
	cfgPath := writeTestConfig(t, []string{a, b}, "")

	out, err := execute(context.Background(), "inspect", "-c", cfgPath, "--path", b)
	if err != nil {
		t.Fatalf("inspect error = %v", err)
	}
	if strings.Contains(out, a) || !strings.Contains(out, b) {
		t.Errorf("inspect --path output:\n%s", out)
	}

	_, err = execute(context.Background(), "inspect", "-c", cfgPath, "--path", filepath.Join(dir, "other.db"))
	if err == nil || !strings.Contains(err.Error(), "not in the configuration") {
		t.Errorf("inspect of unknown path error = %v", err)
	}
}

func TestCheckpointCommand(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.db")
	cfgPath := writeTestConfig(t, []string{a}, "")

	out, err := execute(context.Background(), "checkpoint", "-c", cfgPath)
	if err != nil {
		t.Fatalf("checkpoint error = %v\n%s", err, out)
	}
	if !strings.Contains(out, a+" ok") {
		t.Errorf("checkpoint output = %q, want %q", out, a+" ok")
	}
}

func TestTokenCommand(t *testing.T) {
	cfgPath := writeTestConfig(t, nil, "api:\n  jwt:\n    secret: \""+testSecret+"\"\n")

	out, err := execute(context.Background(), "token", "-c", cfgPath, "--subject", "ops", "--ttl", "5m")
	if err != nil {
		t.Fatalf("token error = %v", err)
	}
	subject, err := api.ValidateToken(testSecret, strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if subject != "ops" {
		t.Errorf("subject = %q, want ops", subject)
	}
}

func TestTokenCommand_NoSecret(t *testing.T) {
	cfgPath := writeTestConfig(t, nil, "")

	_, err := execute(context.Background(), "token", "-c", cfgPath)
	if !errors.Is(err, api.ErrInvalidToken) {
		t.Errorf("token error = %v, want ErrInvalidToken", err)
	}
}

func TestInvalidConfig(t *testing.T) {
	_, err := execute(context.Background(), "inspect", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Fatalf("error = %v, want loading config failure", err)
	}
	if exitCode(err) != exitError {
		t.Errorf("exitCode() = %d, want %d", exitCode(err), exitError)
	}
}

func TestExitCode_FatalMisuse(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "wal.db")
	writer, err := database.Open(context.Background(),
		database.Config{Path: dbPath, BusyTimeout: 5}, dbconfig.Default(nil, nil))
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { writer.Close() }) //nolint:errcheck // Test cleanup
	if _, err := writer.ExecContext(context.Background(), "CREATE TABLE t (v TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}

	cfgPath := filepath.Join(t.TempDir(), "graystore.yaml")
	content := fmt.Sprintf("logging:\n  output: discard\ndatabases:\n  - path: %q\n    readonly: true\n", dbPath)
	if err := os.WriteFile(cfgPath, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	_, err = execute(context.Background(), "inspect", "-c", cfgPath)
	if !dbconfig.IsFatal(err) {
		t.Fatalf("inspect error = %v, want fatal misuse", err)
	}
	if exitCode(err) != exitFatal {
		t.Errorf("exitCode() = %d, want %d", exitCode(err), exitFatal)
	}
	if exitCode(nil) != 0 {
		t.Errorf("exitCode(nil) = %d, want 0", exitCode(nil))
	}
}

func TestRunCommand_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.db")
	cfgPath := writeTestConfig(t, []string{a}, "checkpoint:\n  sweep_schedule: \"@every 1h\"\n")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := execute(ctx, "run", "-c", cfgPath)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after the context was cancelled")
	}

	if _, err := os.Stat(a); err != nil {
		t.Errorf("run did not create %s: %v", a, err)
	}
}

type recordedReconfigure struct {
	path    string
	configs []string
	err     error
}

type fakeListener struct {
	mu     sync.Mutex
	events []recordedReconfigure
}

func (f *fakeListener) Reconfigured(path string, configs []string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedReconfigure{path, configs, err})
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.db")
	b := filepath.Join(dir, "b.db")
	c := filepath.Join(dir, "c.db")

	cfg := &config.Config{Databases: []config.DatabaseConfig{{Path: a}, {Path: b}}}
	log := logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", &bytes.Buffer{})

	app, err := newApp(cfg, log)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(app.close)

	sched := checkpoint.New(app.databases, checkpoint.Options{Delay: time.Hour})
	t.Cleanup(func() { sched.Close() }) //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if _, err := app.openAll(ctx, cfg, sched); err != nil {
		t.Fatalf("openAll() error = %v", err)
	}

	// a stays, b is dropped, c is new.
	next := &config.Config{
		Databases: []config.DatabaseConfig{{Path: a}, {Path: c}},
		Trace:     config.TraceConfig{SQL: true},
	}
	listener := &fakeListener{}
	reload(ctx, app, sched, next, []reconfigureListener{listener})

	if got, want := app.databases.Paths(), []string{a, c}; !slices.Equal(got, want) {
		t.Errorf("Paths() after reload = %v, want %v", got, want)
	}

	listener.mu.Lock()
	defer listener.mu.Unlock()
	if len(listener.events) != 1 {
		t.Fatalf("Reconfigured called %d times, want 1: %+v", len(listener.events), listener.events)
	}
	ev := listener.events[0]
	if ev.path != a || ev.err != nil {
		t.Errorf("Reconfigured event = %+v", ev)
	}
	if !slices.Contains(ev.configs, dbconfig.NameTrace) || !slices.Contains(ev.configs, dbconfig.NameCheckpoint) {
		t.Errorf("reconfigured chain = %v, want trace and checkpoint", ev.configs)
	}
}
