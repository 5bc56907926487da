package registrar

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type write struct {
	path  string
	value interface{}
}

type fakeBackend struct {
	ready  bool
	pumps  int
	writes []write
	err    error
}

func (f *fakeBackend) Name() string           { return "fake" }
func (f *fakeBackend) Pump(context.Context)   { f.pumps++ }
func (f *fakeBackend) Ready() bool            { return f.ready }
func (f *fakeBackend) Close() error           { return nil }
func (f *fakeBackend) Set(_ context.Context, path string, value interface{}) error {
	f.writes = append(f.writes, write{path, value})
	return f.err
}

func newTestRegistrar(b Backend) *Registrar {
	return New(b, "esp32cam_001", 81, func() string { return "192.168.1.50" }, time.Second, zap.NewNop())
}

func TestRegisterOnlyAfterReady(t *testing.T) {
	b := &fakeBackend{}
	r := newTestRegistrar(b)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r.Pump(ctx)
	}
	if len(b.writes) != 0 || r.Registered() {
		t.Fatalf("wrote before ready: %+v", b.writes)
	}

	b.ready = true
	r.Pump(ctx)

	want := []write{
		{"/devices/esp32cam_001/ip_address", "192.168.1.50"},
		{"/devices/esp32cam_001/ws_port", 81},
	}
	if len(b.writes) != len(want) {
		t.Fatalf("writes = %+v", b.writes)
	}
	for i, w := range want {
		if b.writes[i] != w {
			t.Errorf("write %d = %+v, want %+v", i, b.writes[i], w)
		}
	}
	if b.pumps != 6 {
		t.Errorf("backend pumped %d times, want 6", b.pumps)
	}
}

func TestRegisterExactlyOnceEvenOnFailure(t *testing.T) {
	b := &fakeBackend{ready: true, err: &Error{Code: 403, Message: "Permission denied"}}
	r := newTestRegistrar(b)

	for i := 0; i < 10; i++ {
		r.Pump(context.Background())
	}

	if !r.Registered() {
		t.Fatal("expected registered flag")
	}
	if len(b.writes) != 2 {
		t.Fatalf("writes = %d, want 2 (no retry)", len(b.writes))
	}
}

func TestTestConnectionWritesDiagnosticPath(t *testing.T) {
	b := &fakeBackend{ready: true}
	r := newTestRegistrar(b)

	if err := r.TestConnection(context.Background(), time.Second); err != nil {
		t.Fatal(err)
	}
	if len(b.writes) != 1 || b.writes[0] != (write{TestPath, TestValue}) {
		t.Fatalf("writes = %+v", b.writes)
	}
	if r.Registered() {
		t.Error("test write must not count as registration")
	}
}

func TestTestConnectionNotReady(t *testing.T) {
	b := &fakeBackend{}
	r := newTestRegistrar(b)

	err := r.TestConnection(context.Background(), 100*time.Millisecond)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if b.pumps == 0 {
		t.Error("backend was not pumped while waiting")
	}
	if len(b.writes) != 0 {
		t.Error("write attempted on not-ready backend")
	}
}

func TestErrorHint(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{401, "authentication error - check your credentials"},
		{403, "permission denied - check your database rules"},
		{404, "database not found - check your database URL"},
		{500, ""},
	}
	for _, tt := range tests {
		e := &Error{Code: tt.code, Message: "x"}
		if got := e.Hint(); got != tt.want {
			t.Errorf("Hint(%d) = %q", tt.code, got)
		}
	}
}

func TestDisabledBackend(t *testing.T) {
	r := newTestRegistrar(Disabled{})
	r.Pump(context.Background())
	if r.Registered() {
		t.Fatal("disabled backend must never register")
	}
}
