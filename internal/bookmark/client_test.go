package bookmark

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestListNewest(t *testing.T) {
	var gotPath, gotAuth, gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[
			{"_id":101,"link":"https://example.com/a","title":"A","created":"2026-08-20T10:00:00Z","collection":{"$id":7}},
			{"_id":100,"link":"https://example.com/b","title":"B","created":"2026-08-19T10:00:00Z","collection":{"$id":0}}
		]}`))
	}))
	defer ts.Close()

	c := NewClientForTest("rd-token", ts.URL)
	items, err := c.ListNewest(context.Background())
	if err != nil {
		t.Fatalf("ListNewest: %v", err)
	}

	if gotPath != "/raindrops/0" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer rd-token" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotQuery != "page=0&perpage=50&sort=-created" {
		t.Errorf("query = %q", gotQuery)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items", len(items))
	}
	if items[0].ID != 101 || items[0].Collection.ID != 7 {
		t.Errorf("first item = %+v", items[0])
	}
}

func TestGetUnwrapsItem(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/raindrop/42" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"item":{"_id":42,"link":"https://example.com","title":"Answer","created":"2026-08-20T10:00:00Z","cache":{"status":"ready","size":1024}}}`))
	}))
	defer ts.Close()

	c := NewClientForTest("rd-token", ts.URL)
	r, err := c.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.ID != 42 || r.Title != "Answer" {
		t.Errorf("raindrop = %+v", r)
	}
	if !r.CacheReady() {
		t.Error("expected cache to be ready")
	}
}

func TestCollectionsMergesRootsAndChildren(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections":
			w.Write([]byte(`{"items":[{"_id":1,"title":"Reading"}]}`))
		case "/collections/childrens":
			w.Write([]byte(`{"items":[{"_id":2,"title":"Go","parent":{"$id":1}}]}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := NewClientForTest("rd-token", ts.URL)
	collections, err := c.Collections(context.Background())
	if err != nil {
		t.Fatalf("Collections: %v", err)
	}
	if len(collections) != 2 {
		t.Fatalf("got %d collections", len(collections))
	}
	if collections[1].Parent == nil || collections[1].Parent.ID != 1 {
		t.Errorf("child parent = %+v", collections[1].Parent)
	}
}

func TestPermanentCopyURL(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/raindrop/1/cache":
			w.Header().Set("Location", "https://cache.example.com/copy.html")
			w.WriteHeader(http.StatusTemporaryRedirect)
		case "/raindrop/2/cache":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer ts.Close()

	c := NewClientForTest("rd-token", ts.URL)

	got, err := c.PermanentCopyURL(context.Background(), 1)
	if err != nil {
		t.Fatalf("PermanentCopyURL: %v", err)
	}
	if got != "https://cache.example.com/copy.html" {
		t.Errorf("url = %q", got)
	}

	got, err = c.PermanentCopyURL(context.Background(), 2)
	if err != nil {
		t.Fatalf("PermanentCopyURL missing copy: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty url for missing copy, got %q", got)
	}

	if _, err := c.PermanentCopyURL(context.Background(), 3); err == nil {
		t.Error("expected error for server failure")
	}
}

func TestClientRequiresToken(t *testing.T) {
	c := NewClient("")
	if _, err := c.ListNewest(context.Background()); err == nil {
		t.Error("expected error without token")
	}
}
