package http

import (
	"net/http"
	"testing"

	"streamgate/internal/infrastructure/middleware"
	"streamgate/internal/infrastructure/repositories/memory"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

func newViewerRouter(t *testing.T) (*gin.Engine, *ViewerHandler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zaptest.NewLogger(t).Sugar()
	handler := NewViewerHandler(memory.NewMemoryViewerRepository(), nil, nil)

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(logger))
	handler.SetupRoutes(router)
	return router, handler
}

func TestRegisterViewer_Success(t *testing.T) {
	router, _ := newViewerRouter(t)

	rec := doJSON(router, http.MethodPost, "/api/v1/viewers",
		`{"fullName":"Ada Lovelace","phoneNumber":"+1 (555) 010-2030"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}
	got := decodeBody(t, rec)
	if got["success"] != true {
		t.Errorf("success = %v, want true", got["success"])
	}
	user, ok := got["user"].(map[string]interface{})
	if !ok {
		t.Fatalf("user = %v, want an object", got["user"])
	}
	if user["fullName"] != "Ada Lovelace" {
		t.Errorf("fullName = %v", user["fullName"])
	}
	if user["phoneNumber"] != "+1 (555) 010-2030" {
		t.Errorf("phoneNumber = %v", user["phoneNumber"])
	}
}

func TestRegisterViewer_MissingFields(t *testing.T) {
	router, _ := newViewerRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"no phone", `{"fullName":"Ada Lovelace"}`},
		{"no name", `{"phoneNumber":"+15550102030"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(router, http.MethodPost, "/api/v1/viewers", tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400\n%s", rec.Code, rec.Body.String())
			}
			if got := decodeBody(t, rec); got["error"] != "Full name and phone number are required" {
				t.Errorf("error = %v", got["error"])
			}
		})
	}
}

func TestRegisterViewer_InvalidPhone(t *testing.T) {
	router, _ := newViewerRouter(t)

	rec := doJSON(router, http.MethodPost, "/api/v1/viewers",
		`{"fullName":"Ada Lovelace","phoneNumber":"not-a-phone"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400\n%s", rec.Code, rec.Body.String())
	}
}

func TestPresenceAndChannelStats(t *testing.T) {
	router, _ := newViewerRouter(t)

	for _, body := range []string{`{"uid":1}`, `{"uid":2}`, `{"uid":3}`} {
		rec := doJSON(router, http.MethodPost, "/api/v1/channels/main-live-stream/join", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("join status = %d, want 200\n%s", rec.Code, rec.Body.String())
		}
	}
	if rec := doJSON(router, http.MethodPost, "/api/v1/channels/main-live-stream/leave", `{"uid":2}`); rec.Code != http.StatusOK {
		t.Fatalf("leave status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}

	rec := doJSON(router, http.MethodGet, "/api/v1/channels/main-live-stream/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}

	got := decodeBody(t, rec)
	stats, ok := got["stats"].(map[string]interface{})
	if !ok {
		t.Fatalf("stats = %v, want an object", got["stats"])
	}
	if stats["activeViewers"] != float64(2) {
		t.Errorf("activeViewers = %v, want 2", stats["activeViewers"])
	}
	if stats["peakViewers"] != float64(3) {
		t.Errorf("peakViewers = %v, want 3", stats["peakViewers"])
	}
	if stats["totalJoins"] != float64(3) {
		t.Errorf("totalJoins = %v, want 3", stats["totalJoins"])
	}
}

func TestChannelStats_UnknownChannel(t *testing.T) {
	router, _ := newViewerRouter(t)

	rec := doJSON(router, http.MethodGet, "/api/v1/channels/no-such-channel/stats", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404\n%s", rec.Code, rec.Body.String())
	}
}

func TestPresence_MissingUID(t *testing.T) {
	router, _ := newViewerRouter(t)

	rec := doJSON(router, http.MethodPost, "/api/v1/channels/main-live-stream/join", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400\n%s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec); got["error"] != "uid is required" {
		t.Errorf("error = %v, want %q", got["error"], "uid is required")
	}
}
