package forecast

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLoadForecastResamplesHourlyToQuarterHour(t *testing.T) {
	base := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/forecasts/load/poi_1" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tkn" {
			t.Errorf("authorization header = %q", got)
		}
		fmt.Fprintf(w, `[
			{"ds": %q, "hourly_power": 100},
			{"ds": %q, "hourly_power": 200},
			{"ds": %q, "hourly_power": 160}
		]`, base.Format(time.RFC3339), base.Add(time.Hour).Format(time.RFC3339),
			base.Add(2*time.Hour).Format(time.RFC3339))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, AuthToken: "tkn"}, nil)
	got, err := c.LoadForecast(context.Background(), base, 15*time.Minute, 8)
	if err != nil {
		t.Fatalf("load forecast: %v", err)
	}
	want := []float64{100, 125, 150, 175, 200, 190, 180, 170}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("step %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSolarForecastUsesItsOwnShape(t *testing.T) {
	base := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/forecasts/solar/") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `[
			{"index": %q, "power_expected": 50},
			{"index": %q, "power_expected": 70}
		]`, base.Format(time.RFC3339), base.Add(30*time.Minute).Format(time.RFC3339))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	got, err := c.SolarForecast(context.Background(), base, 15*time.Minute, 3)
	if err != nil {
		t.Fatalf("solar forecast: %v", err)
	}
	want := []float64{50, 60, 70}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("step %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestForecastRejectsShortCoverage(t *testing.T) {
	base := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{"ds": %q, "hourly_power": 100}]`, base.Format(time.RFC3339))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	if _, err := c.LoadForecast(context.Background(), base, 15*time.Minute, 8); err == nil {
		t.Fatal("series ending before the horizon must be rejected")
	}
}

func TestForecastServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	_, err := c.LoadForecast(context.Background(), time.Now(), 15*time.Minute, 4)
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Fatalf("err = %v, want status 500", err)
	}
}

func loadPtr(v float64) *float64 { return &v }

func TestFallbackProfile(t *testing.T) {
	c := NewClient(Config{FallbackLoadKW: loadPtr(150)}, nil)
	load, solar := c.Fallback(4)
	if len(load) != 4 || len(solar) != 4 {
		t.Fatalf("lengths = %d, %d", len(load), len(solar))
	}
	for i := range load {
		if load[i] != 150 || solar[i] != 0 {
			t.Fatalf("step %d: load=%v solar=%v", i, load[i], solar[i])
		}
	}
}

func TestFallbackZeroLoadIsRespected(t *testing.T) {
	// An explicit zero fallback load must not be replaced by the 200 kW
	// default.
	c := NewClient(Config{FallbackLoadKW: loadPtr(0)}, nil)
	load, _ := c.Fallback(3)
	for i := range load {
		if load[i] != 0 {
			t.Fatalf("step %d: load = %v, want configured 0", i, load[i])
		}
	}
}

func TestFallbackUnsetDefaultsTo200(t *testing.T) {
	c := NewClient(Config{}, nil)
	load, _ := c.Fallback(2)
	if load[0] != 200 {
		t.Fatalf("load = %v, want default 200", load[0])
	}
}

func TestResampleSinglePoint(t *testing.T) {
	base := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	got, err := resample([]point{{ts: base, value: 42}}, base, 15*time.Minute, 1)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if got[0] != 42 {
		t.Fatalf("got %v, want 42", got[0])
	}
}

func TestResampleUnsortedInput(t *testing.T) {
	base := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	pts := []point{
		{ts: base.Add(time.Hour), value: 200},
		{ts: base, value: 100},
	}
	got, err := resample(pts, base, 30*time.Minute, 3)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	want := []float64{100, 150, 200}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("step %d: got %v, want %v", i, got[i], want[i])
		}
	}
}
