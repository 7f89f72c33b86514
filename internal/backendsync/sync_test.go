package backendsync

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ShivangSharma3/bus-tracking-system/internal/model"
)

func testFix() model.Fix {
	return model.Fix{
		Lat:        28.9954,
		Lng:        77.6456,
		BusID:      "bus-1",
		DriverName: "Ramesh",
		Source:     model.SourceForegroundPoll,
		Timestamp:  time.Now(),
	}
}

func TestPushSendsFix(t *testing.T) {
	received := make(chan model.Fix, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/location/update-location/bus-1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer token-1" {
			t.Errorf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		var fix model.Fix
		if err := json.NewDecoder(r.Body).Decode(&fix); err != nil {
			t.Errorf("decode body: %v", err)
		}
		received <- fix
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(srv.URL, "token-1")
	s.Push(testFix())

	select {
	case fix := <-received:
		if fix.BusID != "bus-1" || fix.Lat != 28.9954 {
			t.Fatalf("unexpected fix: %+v", fix)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for push")
	}
}

func TestPushSwallowsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(srv.URL, "")
	if err := s.push(testFix()); err == nil {
		t.Fatalf("expected error from push helper")
	}
	// The public API must not surface it.
	s.Push(testFix())
}

func TestPushSwallowsNetworkError(t *testing.T) {
	s := New("http://127.0.0.1:1", "")
	if err := s.push(testFix()); err == nil {
		t.Fatalf("expected network error from push helper")
	}
	s.Push(testFix())
}

func TestPushNoBackendConfigured(t *testing.T) {
	s := New("", "")
	// Must be a no-op, not a panic.
	s.Push(testFix())
}
