package logger

import (
	"strings"
	"testing"
)

func TestSanitizeKVs(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"api_key", "sk-123",
		"user_id", "u-42",
		"topic", "photosynthesis",
		"bearer", "aaaaaaaaaaaa.bbbbbbbbbbbb.cccc",
	})
	if len(out) != 8 {
		t.Fatalf("expected 8 entries, got %d", len(out))
	}
	if out[1] != redacted {
		t.Fatalf("api_key: expected redaction, got %v", out[1])
	}
	hashed, _ := out[3].(string)
	if !strings.HasPrefix(hashed, "hash:") || len(hashed) != len("hash:")+12 {
		t.Fatalf("user_id: expected hash, got %q", hashed)
	}
	if out[5] != "photosynthesis" {
		t.Fatalf("topic: expected passthrough, got %v", out[5])
	}
	if out[7] != redactedJWT {
		t.Fatalf("jwt: expected redaction, got %v", out[7])
	}
}

func TestSanitizeNestedMap(t *testing.T) {
	got := sanitizeValue("meta", map[string]interface{}{"password": "x", "n": 1})
	m, ok := got.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map, got %T", got)
	}
	if m["password"] != redacted || m["n"] != 1 {
		t.Fatalf("unexpected nested sanitisation: %+v", m)
	}
}

func TestSanitizeOddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"a", 1, "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestHashValueStable(t *testing.T) {
	if hashValue("abc") != hashValue("abc") {
		t.Fatalf("hash must be deterministic")
	}
	if hashValue("") != "" {
		t.Fatalf("empty value should hash to empty")
	}
}
