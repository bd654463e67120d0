package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
)

func TestMarshal_SortsKeysAtEveryLevel(t *testing.T) {
	var a, b any
	if err := json.Unmarshal([]byte(`{"z":{"b":2,"a":1},"a":[1,2,3]}`), &a); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`{"a":[1,2,3],"z":{"a":1,"b":2}}`), &b); err != nil {
		t.Fatal(err)
	}

	ca, err := Marshal(a)
	if err != nil {
		t.Fatalf("Marshal(a): %v", err)
	}
	cb, err := Marshal(b)
	if err != nil {
		t.Fatalf("Marshal(b): %v", err)
	}

	want := `{"a":[1,2,3],"z":{"a":1,"b":2}}`
	if string(ca) != want {
		t.Errorf("Marshal(a) = %s, want %s", ca, want)
	}
	if string(ca) != string(cb) {
		t.Errorf("canonical forms differ: %s vs %s", ca, cb)
	}
}

func TestMarshal_PreservesArrayOrder(t *testing.T) {
	out, err := Marshal([]any{3, 1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "[3,1,2]" {
		t.Errorf("Marshal = %s, want [3,1,2]", out)
	}
}

func TestMarshal_NumberFidelity(t *testing.T) {
	// Large integers and decimals must survive the round trip
	// unchanged. Decode with UseNumber so the input reaches the
	// canonicalizer intact instead of collapsing to float64 first.
	var v any
	dec := json.NewDecoder(strings.NewReader(`{"id":9007199254740993,"lat":37.7749}`))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		t.Fatal(err)
	}
	out, err := Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"id":9007199254740993,"lat":37.7749}`
	if string(out) != want {
		t.Errorf("Marshal = %s, want %s", out, want)
	}
}

func TestHash_InsertionOrderIndependent(t *testing.T) {
	h1, err := Hash(map[string]any{"content": "hello", "tags": []string{"a"}, "publish": true})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := Hash(map[string]any{"publish": true, "tags": []string{"a"}, "content": "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("hashes differ for semantically equal maps: %s vs %s", h1, h2)
	}
}

func TestHash_SensitiveToLeafChanges(t *testing.T) {
	base := map[string]any{"content": "hello", "publish": true}
	h1, _ := Hash(base)

	changed := map[string]any{"content": "hello!", "publish": true}
	h2, _ := Hash(changed)
	if h1 == h2 {
		t.Error("hash unchanged after leaf value change")
	}

	added := map[string]any{"content": "hello", "publish": true, "title": "x"}
	h3, _ := Hash(added)
	if h1 == h3 {
		t.Error("hash unchanged after key addition")
	}
}

func TestHash_NullDistinctFromAbsent(t *testing.T) {
	withNull, err := Hash(map[string]any{"content": "hello", "comment": nil})
	if err != nil {
		t.Fatal(err)
	}
	without, err := Hash(map[string]any{"content": "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if withNull == without {
		t.Error("null-valued key hashed the same as absent key")
	}
}

func TestHashBytes(t *testing.T) {
	data := []byte("hello")
	sum := sha256.Sum256(data)
	want := hex.EncodeToString(sum[:])
	if got := HashBytes(data); got != want {
		t.Errorf("HashBytes = %s, want %s", got, want)
	}
}

func TestHash_StructTagsApply(t *testing.T) {
	type payload struct {
		Content string `json:"content"`
		Comment string `json:"comment,omitempty"`
	}
	h1, err := Hash(payload{Content: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := Hash(map[string]any{"content": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("struct with omitted field hashed differently from equivalent map: %s vs %s", h1, h2)
	}
}
