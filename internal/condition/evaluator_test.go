package condition

import (
	"testing"

	"triggerpay/internal/model"
)

func TestEvaluateFlightCancellation(t *testing.T) {
	cond := model.FlightCancellation{FlightNumber: "AA1234", FlightDate: "2026-02-15"}

	cases := []struct {
		status string
		want   bool
	}{
		{"cancelled", true},
		{"scheduled", false},
		{"Cancelled", false},
		{"CANCELLED", false},
		{"cancelled ", false},
		{"", false},
	}
	for _, tc := range cases {
		obs := model.Observation{Status: tc.status}
		if got := Evaluate(cond, obs); got != tc.want {
			t.Fatalf("Evaluate(%q) = %v, want %v", tc.status, got, tc.want)
		}
		if again := Evaluate(cond, obs); again != tc.want {
			t.Fatalf("Evaluate(%q) not stable", tc.status)
		}
	}
}

func TestEvaluateUnknownKindIsFalse(t *testing.T) {
	obs := model.Observation{Status: CancelledStatus}
	if Evaluate(model.UnknownCondition{Type: "WeatherAlert"}, obs) {
		t.Fatalf("unknown condition must evaluate false")
	}
	if Evaluate(nil, obs) {
		t.Fatalf("nil condition must evaluate false")
	}
	var nilPtr *model.FlightCancellation
	if Evaluate(nilPtr, obs) {
		t.Fatalf("nil pointer condition must evaluate false")
	}
}

func TestSourcesFor(t *testing.T) {
	src := SourceFunc(nil)
	sources := Sources{model.ConditionFlightCancellation: src}
	if _, err := sources.For(model.FlightCancellation{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := sources.For(model.UnknownCondition{Type: "X"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
