package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReverseGeocode_ExtractsCityStateCountry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("latlng"); got != "47.6,-122.3" {
			t.Errorf("latlng = %q", got)
		}
		w.Write([]byte(`{"status":"OK","results":[{
			"formatted_address": "Seattle, WA 98101, USA",
			"address_components": [
				{"long_name":"Seattle","short_name":"Seattle","types":["locality","political"]},
				{"long_name":"King County","short_name":"King County","types":["administrative_area_level_2"]},
				{"long_name":"Washington","short_name":"WA","types":["administrative_area_level_1"]},
				{"long_name":"United States","short_name":"US","types":["country","political"]}
			]
		}]}`))
	}))
	defer srv.Close()

	c := NewGeocodeClientForTest("key", srv.URL)
	snap, err := c.ReverseGeocode(context.Background(), 47.6, -122.3)
	if err != nil {
		t.Fatal(err)
	}
	s := snap.Summary
	if s.City != "Seattle" || s.State != "WA" || s.Country != "United States" {
		t.Errorf("summary = %+v", s)
	}
	if s.Formatted != "Seattle, WA" {
		t.Errorf("Formatted = %q", s.Formatted)
	}
}

func TestReverseGeocode_SublocalityFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"OK","results":[{
			"address_components": [
				{"long_name":"Brooklyn","short_name":"Brooklyn","types":["sublocality_level_1","sublocality","political"]},
				{"long_name":"New York","short_name":"NY","types":["administrative_area_level_1"]}
			]
		}]}`))
	}))
	defer srv.Close()

	c := NewGeocodeClientForTest("key", srv.URL)
	snap, err := c.ReverseGeocode(context.Background(), 40.65, -73.95)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Summary.City != "Brooklyn" {
		t.Errorf("City = %q, want sublocality fallback", snap.Summary.City)
	}
}

func TestReverseGeocode_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
	}))
	defer srv.Close()

	c := NewGeocodeClientForTest("key", srv.URL)
	if _, err := c.ReverseGeocode(context.Background(), 0, 0); err == nil {
		t.Fatal("expected error for ZERO_RESULTS")
	}
}
