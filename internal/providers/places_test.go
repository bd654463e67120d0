package providers

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHaversine_KnownDistance(t *testing.T) {
	// 0.01 degrees of latitude is ~1113 m at any longitude.
	d := Haversine(40.7128, -74.0060, 40.7228, -74.0060)
	if math.Abs(d-1113) > 5 {
		t.Errorf("Haversine = %.1f m, want ~1113 m", d)
	}

	if d := Haversine(40.7128, -74.0060, 40.7128, -74.0060); d != 0 {
		t.Errorf("zero-distance = %v, want 0", d)
	}
}

func TestShortAddress(t *testing.T) {
	cases := []struct{ in, want string }{
		{"66 Mint St, San Francisco, CA 94103, USA", "66 Mint St"},
		{"Golden Gate Park", "Golden Gate Park"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ShortAddress(tc.in); got != tc.want {
			t.Errorf("ShortAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNearby_ComputesRoundedDistances(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Goog-Api-Key") != "key" {
			t.Errorf("missing api key header")
		}
		var body struct {
			LocationRestriction struct {
				Circle struct {
					Radius float64 `json:"radius"`
				} `json:"circle"`
			} `json:"locationRestriction"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.LocationRestriction.Circle.Radius != 500 {
			t.Errorf("radius = %v, want default 500", body.LocationRestriction.Circle.Radius)
		}

		w.Write([]byte(`{"places":[{
			"id":"pl1",
			"displayName":{"text":"City Hall"},
			"formattedAddress":"1 Dr Carlton B Goodlett Pl, San Francisco, CA 94102, USA",
			"location":{"latitude":40.7228,"longitude":-74.0060},
			"types":["tourist_attraction"]
		}]}`))
	}))
	defer srv.Close()

	c := NewPlacesClientForTest("key", srv.URL)
	snap, err := c.Nearby(context.Background(), 40.7128, -74.0060, 0)
	if err != nil {
		t.Fatalf("Nearby: %v", err)
	}

	if len(snap.Summary.Places) != 1 {
		t.Fatalf("got %d places", len(snap.Summary.Places))
	}
	p := snap.Summary.Places[0]
	if p.DistanceM < 1108 || p.DistanceM > 1118 {
		t.Errorf("DistanceM = %d, want ~1113", p.DistanceM)
	}
	if p.ShortAddress != "1 Dr Carlton B Goodlett Pl" {
		t.Errorf("ShortAddress = %q", p.ShortAddress)
	}
	if p.MapsURL == "" {
		t.Error("MapsURL empty for place with id")
	}
}

func TestDetails_NormalizesPlace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/places/ChIJtest" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"id":"ChIJtest",
			"displayName":{"text":"Mint Plaza"},
			"formattedAddress":"66 Mint St, San Francisco, CA 94103, USA",
			"location":{"latitude":37.7826,"longitude":-122.4073},
			"types":["park"]
		}`))
	}))
	defer srv.Close()

	c := NewPlacesClientForTest("key", srv.URL)
	snap, err := c.Details(context.Background(), "ChIJtest")
	if err != nil {
		t.Fatalf("Details: %v", err)
	}

	s := snap.Summary
	if s.Name != "Mint Plaza" || s.ShortAddress != "66 Mint St" {
		t.Errorf("summary = %+v", s)
	}
	if s.Lat != 37.7826 || s.Lng != -122.4073 {
		t.Errorf("coordinates = (%v, %v)", s.Lat, s.Lng)
	}
}

func TestNearby_MissingKey(t *testing.T) {
	c := NewPlacesClient("")
	if _, err := c.Nearby(context.Background(), 1, 2, 0); err == nil {
		t.Fatal("expected ConfigError for missing key")
	}
}
