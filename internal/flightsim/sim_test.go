package flightsim

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"triggerpay/internal/condition"
)

func fixedSim() *Sim {
	return New(func() time.Time { return time.Date(2026, 2, 15, 6, 0, 0, 0, time.UTC) })
}

func newRouter(sim *Sim) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(sim).Register(r.Group("/api"))
	return r
}

func TestSeededFlightDefaultsToScheduled(t *testing.T) {
	f := fixedSim().Flight("aa1234")
	if f.FlightNumber != "AA1234" || f.Status != "scheduled" || f.Airline != "American Airlines" {
		t.Fatalf("unexpected flight: %+v", f)
	}
	if f.UpdatedAt != "2026-02-15T06:00:00Z" {
		t.Fatalf("updated_at = %s", f.UpdatedAt)
	}
	if got := SeededFlights(); len(got) != 3 || got[0] != "AA1234" {
		t.Fatalf("seeded = %v", got)
	}
}

func TestUnknownFlightGetsPlaceholder(t *testing.T) {
	f := fixedSim().Flight("ba777")
	if f.FlightNumber != "BA777" || f.Airline != "BA" || f.DepartureAirport != "---" {
		t.Fatalf("unexpected placeholder: %+v", f)
	}
}

func TestSetStatus(t *testing.T) {
	sim := fixedSim()
	key, err := sim.SetStatus(" ua5678 ", "cancelled")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if key != "UA5678" || sim.Flight("UA5678").Status != "cancelled" {
		t.Fatalf("override not applied")
	}
	if _, err := sim.SetStatus("UA5678", "diverted"); err == nil {
		t.Fatalf("expected error for invalid status")
	}
	if _, err := sim.SetStatus("U", "landed"); err == nil {
		t.Fatalf("expected error for short flight number")
	}
	if got := sim.Overrides(); len(got) != 1 || got["UA5678"] != "cancelled" {
		t.Fatalf("overrides = %v", got)
	}
}

func TestSimAsConditionSource(t *testing.T) {
	sim := fixedSim()
	_, _ = sim.SetStatus("DL9012", "cancelled")

	var src condition.Source = sim
	obs, err := src.Fetch(context.Background(), "DL9012")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if obs.Status != "cancelled" || obs.Fields["airline"] != "Delta Air Lines" || len(obs.Raw) == 0 {
		t.Fatalf("unexpected observation: %+v", obs)
	}
}

func TestHTTPRoundTrip(t *testing.T) {
	r := newRouter(fixedSim())

	body := bytes.NewReader([]byte(`{"flight_number":"aa1234","status":"cancelled"}`))
	req := httptest.NewRequest(http.MethodPost, "/api/admin/set-status", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("set-status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/flight/AA1234", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get flight = %d", rec.Code)
	}
	var f Flight
	if err := json.Unmarshal(rec.Body.Bytes(), &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Status != "cancelled" {
		t.Fatalf("status = %s", f.Status)
	}
}

func TestHTTPRejectsBadInput(t *testing.T) {
	r := newRouter(fixedSim())
	cases := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPost, "/api/admin/set-status", `{"flight_number":"AA1234","status":"lost"}`},
		{http.MethodPost, "/api/admin/set-status", `not json`},
		{http.MethodGet, "/api/flight/A", ""},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, bytes.NewReader([]byte(tc.body))))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: expected 400, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestFlightAPIClientAgainstSim(t *testing.T) {
	srv := httptest.NewServer(newRouter(fixedSim()))
	defer srv.Close()

	client, err := condition.NewFlightAPI(condition.FlightAPIConfig{BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	obs, err := client.Fetch(context.Background(), "AA1234")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if obs.Status != "scheduled" || obs.Key != "AA1234" {
		t.Fatalf("unexpected observation: %+v", obs)
	}
}
