package redact

import "testing"

func TestHeadersRedactsSecrets(t *testing.T) {
	s := NewSanitizer()

	in := map[string]string{
		"Authorization": "Bearer abc123",
		"Content-Type":  "application/json",
		"X-Api-Key":     "key-456",
		"Cookie":        "session=deadbeef",
		"Accept":        "*/*",
	}
	out := s.Headers(in)

	for _, k := range []string{"Authorization", "X-Api-Key", "Cookie"} {
		if out[k] != Marker {
			t.Fatalf("%s: expected %q, got %q", k, Marker, out[k])
		}
	}
	if out["Content-Type"] != "application/json" {
		t.Fatalf("Content-Type should pass through, got %q", out["Content-Type"])
	}

	// Input must be untouched.
	if in["Authorization"] != "Bearer abc123" {
		t.Fatal("sanitizer mutated its input")
	}
}

func TestHeadersNilInput(t *testing.T) {
	s := NewSanitizer()
	out := s.Headers(nil)
	if out == nil {
		t.Fatal("expected non-nil map for nil input")
	}
	if len(out) != 0 {
		t.Fatalf("expected empty map, got %v", out)
	}
}

func TestExtraKeys(t *testing.T) {
	s := NewSanitizer("X-Internal-Trace")

	out := s.Headers(map[string]string{
		"X-Internal-Trace": "t-42",
		"X-Request-Id":     "r-1",
	})
	if out["X-Internal-Trace"] != Marker {
		t.Fatalf("extra key not redacted: %q", out["X-Internal-Trace"])
	}
	if out["X-Request-Id"] != "r-1" {
		t.Fatalf("unrelated key redacted: %q", out["X-Request-Id"])
	}
}

func TestIsSecretKeyCaseAndSubstring(t *testing.T) {
	s := NewSanitizer()

	cases := []struct {
		key  string
		want bool
	}{
		{"AUTHORIZATION", true},
		{"x-api-key", true},
		{"My-Session-Id", true},
		{"Content-Length", false},
		{"User-Agent", false},
	}
	for _, tc := range cases {
		if got := s.IsSecretKey(tc.key); got != tc.want {
			t.Errorf("IsSecretKey(%q) = %v, want %v", tc.key, got, tc.want)
		}
	}
}

func TestValues(t *testing.T) {
	s := NewSanitizer()

	in := map[string][]string{
		"Set-Cookie": {"a=1", "b=2"},
		"Accept":     {"text/html", "application/json"},
	}
	out := s.Values(in)

	if len(out["Set-Cookie"]) != 1 || out["Set-Cookie"][0] != Marker {
		t.Fatalf("Set-Cookie: expected single marker, got %v", out["Set-Cookie"])
	}
	if len(out["Accept"]) != 2 {
		t.Fatalf("Accept: expected 2 values, got %v", out["Accept"])
	}

	out["Accept"][0] = "mutated"
	if in["Accept"][0] != "text/html" {
		t.Fatal("output shares backing array with input")
	}
}
