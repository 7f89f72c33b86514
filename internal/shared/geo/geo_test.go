package geo

import "testing"

func TestHaversineKm(t *testing.T) {
	// Meerut (28.9845, 77.7064) to Delhi (28.6139, 77.2090) ~ 60-70 km
	d := HaversineKm(28.9845, 77.7064, 28.6139, 77.2090)
	if d < 55 || d > 75 {
		t.Fatalf("unexpected distance: %v", d)
	}
}

func TestHaversineZero(t *testing.T) {
	if d := HaversineM(28.9954, 77.6456, 28.9954, 77.6456); d != 0 {
		t.Fatalf("expected zero distance, got %v", d)
	}
}

func TestHaversineMeters(t *testing.T) {
	km := HaversineKm(28.99, 77.64, 29.00, 77.65)
	m := HaversineM(28.99, 77.64, 29.00, 77.65)
	if m != km*1000 {
		t.Fatalf("meter conversion mismatch")
	}
}
