package registry

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, s string) interface{} {
	t.Helper()
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decoding fixture: %v", err)
	}
	return v
}

func TestCanonicalize_KeyOrderIndependent(t *testing.T) {
	a := decode(t, `{"b":1,"a":2}`)
	b := decode(t, `{"a":2,"b":1}`)

	ca, err := Canonicalize(a)
	if err != nil {
		t.Fatalf("canonicalize a: %v", err)
	}
	cb, err := Canonicalize(b)
	if err != nil {
		t.Fatalf("canonicalize b: %v", err)
	}
	if string(ca) != string(cb) {
		t.Errorf("key-order variants canonicalized differently: %s vs %s", ca, cb)
	}
	if string(ca) != `{"a":2,"b":1}` {
		t.Errorf("unexpected canonical form: %s", ca)
	}
}

func TestCanonicalize_NumberFormsIndependent(t *testing.T) {
	a := decode(t, `{"n": 1.0}`)
	b := decode(t, `{"n": 1}`)

	ca, _ := Canonicalize(a)
	cb, _ := Canonicalize(b)
	if string(ca) != string(cb) {
		t.Errorf("whole-valued float and integer canonicalized differently: %s vs %s", ca, cb)
	}
}

func TestCanonicalize_StringEscaping(t *testing.T) {
	v := map[string]interface{}{"s": "line\nbreak\tand \"quote\""}
	got, err := Canonicalize(v)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := `{"s":"line\nbreak\tand \"quote\""}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestCanonicalize_NaNRejected(t *testing.T) {
	_, err := Canonicalize(map[string]interface{}{"n": nan()})
	if err == nil {
		t.Fatal("expected error canonicalizing NaN")
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestSchemaDigest_Deterministic(t *testing.T) {
	s1 := SchemaRecord{
		Name:        "read_file",
		Description: "Read a file",
		InputSchema: decode(t, `{"type":"object","properties":{"path":{"type":"string"}}}`),
		OutputSchema: decode(t, `{"type":"string"}`),
	}
	s2 := s1
	s2.InputSchema = decode(t, `{"properties":{"path":{"type":"string"}},"type":"object"}`)

	d1, err := s1.Digest()
	if err != nil {
		t.Fatalf("digest s1: %v", err)
	}
	d2, err := s2.Digest()
	if err != nil {
		t.Fatalf("digest s2: %v", err)
	}
	if d1 != d2 {
		t.Errorf("digests differ for key-order-only variation: %x vs %x", d1, d2)
	}
}

func TestSchemaDigest_SensitiveToChange(t *testing.T) {
	s1 := SchemaRecord{Name: "t", Description: "a", InputSchema: decode(t, `{}`), OutputSchema: decode(t, `{}`)}
	s2 := s1
	s2.Description = "b"

	d1, _ := s1.Digest()
	d2, _ := s2.Digest()
	if d1 == d2 {
		t.Error("expected digests to differ after description change")
	}
}
