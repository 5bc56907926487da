package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"camera-node/internal/config"
	"camera-node/internal/httpapi"
)

func TestApplicationServesStatusBeforeNetwork(t *testing.T) {
	application, err := NewApplicationWithConfig(context.Background(), config.GetDefaultConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewApplicationWithConfig: %v", err)
	}
	defer application.close()

	w := httptest.NewRecorder()
	application.GetRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var st httpapi.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.IP != "0.0.0.0" || st.WSPort != 81 || st.Connected {
		t.Errorf("status = %+v", st)
	}
}

func TestApplicationFallsBackWhenBackendFails(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Registrar.Backend = "firebase" // без database_url

	application, err := NewApplicationWithConfig(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewApplicationWithConfig: %v", err)
	}
	defer application.close()

	if application.registrar.Enabled() {
		t.Fatal("registrar should fall back to disabled backend")
	}
}

func TestApplicationCameraFailureIsFatal(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Camera.Source = "bogus"

	if _, err := NewApplicationWithConfig(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatal("expected camera init error")
	}
}
