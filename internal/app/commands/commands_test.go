package commands

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/urfave/cli/v2"
)

func newCLIContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String("config", "", "")
	set.String("log-level", "info", "")
	set.Bool("debug", false, "")
	set.Int("http-port", 0, "")
	set.Int("ws-port", 0, "")
	if err := set.Parse(args); err != nil {
		t.Fatal(err)
	}
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestCommandContextFallsBackToDefaults(t *testing.T) {
	c := newCLIContext(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))

	ctx, err := NewCommandContext(c)
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Config.HTTPPort != 80 || ctx.Config.WSPort != 81 {
		t.Errorf("ports = %d/%d", ctx.Config.HTTPPort, ctx.Config.WSPort)
	}
}

func TestCommandContextPortFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("device_id: cam_test\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := newCLIContext(t, "--config", path, "--http-port", "8080", "--ws-port", "8081")

	ctx, err := NewCommandContext(c)
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Config.DeviceID != "cam_test" {
		t.Errorf("device_id = %q", ctx.Config.DeviceID)
	}
	if ctx.Config.HTTPPort != 8080 || ctx.Config.WSPort != 8081 {
		t.Errorf("ports = %d/%d", ctx.Config.HTTPPort, ctx.Config.WSPort)
	}
}

func TestCommandContextRejectsSamePorts(t *testing.T) {
	c := newCLIContext(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--ws-port", "80")

	if _, err := NewCommandContext(c); err == nil {
		t.Fatal("expected validation error for equal ports")
	}
}

func TestCreateLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		logger, err := createLogger(level, "json", false)
		if err != nil {
			t.Fatalf("%s: %v", level, err)
		}
		_ = logger.Sync()
	}
}

func TestCaptureWritesFrame(t *testing.T) {
	c := newCLIContext(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	ctx, err := NewCommandContext(c)
	if err != nil {
		t.Fatal(err)
	}
	ctx.Config.Camera.FrameSize = "QQVGA"

	out := filepath.Join(t.TempDir(), "frame.jpg")
	if err := runCapture(ctx, out, time.Second); err != nil {
		t.Fatalf("runCapture: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Errorf("not a JPEG (%d bytes)", len(data))
	}
}
