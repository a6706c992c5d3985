package database

import (
	"reflect"
	"testing"
)

func TestRewriteNamedPlaceholders(t *testing.T) {
	query := "SELECT * FROM users WHERE age > :min AND city = @city AND plan = $plan"
	got, args, err := Named(map[string]any{
		"min":  int64(21),
		"city": "Lyon",
		"plan": "pro",
	}).normalize(query)
	if err != nil {
		t.Fatalf("normalize returned error: %v", err)
	}

	want := "SELECT * FROM users WHERE age > ? AND city = ? AND plan = ?"
	if got != want {
		t.Fatalf("rewritten query mismatch:\n got %q\nwant %q", got, want)
	}
	if !reflect.DeepEqual(args, []any{int64(21), "Lyon", "pro"}) {
		t.Fatalf("args not in source order: %v", args)
	}
}

func TestRewriteNamedSkipsLiteralsAndComments(t *testing.T) {
	query := "SELECT ':fake', \"col:name\", 'it''s :ok' -- :comment\n" +
		"/* :block */ FROM t WHERE id = :id"
	got, args, err := Named(map[string]any{"id": int64(7)}).normalize(query)
	if err != nil {
		t.Fatalf("normalize returned error: %v", err)
	}

	want := "SELECT ':fake', \"col:name\", 'it''s :ok' -- :comment\n" +
		"/* :block */ FROM t WHERE id = ?"
	if got != want {
		t.Fatalf("rewritten query mismatch:\n got %q\nwant %q", got, want)
	}
	if len(args) != 1 || args[0] != int64(7) {
		t.Fatalf("expected a single arg, got %v", args)
	}
}

func TestRewriteNamedRepeatedParameter(t *testing.T) {
	got, args, err := Named(map[string]any{"v": "x"}).normalize("SELECT :v, :v")
	if err != nil {
		t.Fatalf("normalize returned error: %v", err)
	}
	if got != "SELECT ?, ?" {
		t.Fatalf("unexpected rewrite %q", got)
	}
	if !reflect.DeepEqual(args, []any{"x", "x"}) {
		t.Fatalf("repeated parameter must appear per occurrence, got %v", args)
	}
}

func TestRewriteNamedMissingValue(t *testing.T) {
	_, _, err := Named(map[string]any{}).normalize("SELECT :missing")
	if err == nil {
		t.Fatal("expected error for missing named value")
	}
}

func TestCacheKeyStability(t *testing.T) {
	k1 := cacheKey("SELECT   *\nFROM t\tWHERE id = ?", []any{int64(1)})
	k2 := cacheKey("SELECT * FROM t WHERE id = ?", []any{int64(1)})
	if k1 != k2 {
		t.Fatal("whitespace differences must not split the cache")
	}

	if cacheKey("SELECT * FROM t WHERE id = ?", []any{int64(1)}) ==
		cacheKey("SELECT * FROM t WHERE id = ?", []any{int64(2)}) {
		t.Fatal("different parameter values must produce different keys")
	}

	if cacheKey("SELECT ?, ?", []any{int64(1), int64(2)}) ==
		cacheKey("SELECT ?, ?", []any{int64(2), int64(1)}) {
		t.Fatal("parameter order must be significant")
	}
}

func TestNamedAndPositionalShareKeys(t *testing.T) {
	namedQuery, namedArgs, err := Named(map[string]any{"id": int64(5)}).
		normalize("SELECT * FROM t WHERE id = :id")
	if err != nil {
		t.Fatalf("normalize returned error: %v", err)
	}
	posQuery, posArgs, err := Positional(int64(5)).
		normalize("SELECT * FROM t WHERE id = ?")
	if err != nil {
		t.Fatalf("normalize returned error: %v", err)
	}

	if cacheKey(namedQuery, namedArgs) != cacheKey(posQuery, posArgs) {
		t.Fatal("equivalent named and positional calls must hit the same cache entry")
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"null", nil},
		{"NULL", nil},
		{"true", true},
		{"false", false},
		{"42", int64(42)},
		{"-7", int64(-7)},
		{"3.14", 3.14},
		{"hello", "hello"},
		{"", ""},
		{"12abc", "12abc"},
	}
	for _, tt := range tests {
		if got := ParseValue(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("ParseValue(%q) = %v (%T), want %v (%T)", tt.in, got, got, tt.want, tt.want)
		}
	}
}
