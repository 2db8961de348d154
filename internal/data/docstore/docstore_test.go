package docstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func collectionContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	col := s.Collection("avatar_contexts_" + strconv.FormatInt(time.Now().UnixNano(), 36))

	if _, err := col.Get(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := col.Set(ctx, "u1", map[string]any{"persona": "tutor", "engagement": 0.5, "profile": map[string]any{"pace": "fast"}}); err != nil {
		t.Fatal(err)
	}
	got, err := col.Get(ctx, "u1")
	if err != nil || got["persona"] != "tutor" || got["engagement"] != 0.5 {
		t.Fatalf("Get: %+v %v", got, err)
	}
	if err := col.Set(ctx, "u1", map[string]any{"persona": "coach", "engagement": 0.9}); err != nil {
		t.Fatal(err)
	}
	if got, _ := col.Get(ctx, "u1"); got["persona"] != "coach" {
		t.Fatalf("Set must overwrite: %+v", got)
	}

	err = col.Batch(ctx, []Write{
		{ID: "u2", Data: map[string]any{"persona": "tutor", "engagement": 0.2}},
		{ID: "u3", Data: map[string]any{"persona": "tutor", "engagement": 0.7}},
	})
	if err != nil {
		t.Fatal(err)
	}

	tutors, err := col.Query(ctx, "persona", "==", "tutor")
	if err != nil || len(tutors) != 2 {
		t.Fatalf("Query ==: %+v %v", tutors, err)
	}
	engaged, err := col.Query(ctx, "engagement", ">=", 0.7)
	if err != nil || len(engaged) != 2 {
		t.Fatalf("Query >=: %+v %v", engaged, err)
	}
	if _, err := col.Query(ctx, "persona", "like", "t%"); !errors.Is(err, ErrUnsupportedOp) {
		t.Fatalf("expected ErrUnsupportedOp, got %v", err)
	}

	if err := col.Batch(ctx, []Write{{ID: "u2"}, {ID: "u3"}}); err != nil {
		t.Fatal(err)
	}
	if err := col.Delete(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if err := col.Delete(ctx, "u1"); err != nil {
		t.Fatalf("deleting a missing document is not an error: %v", err)
	}
	rest, _ := col.Query(ctx, "persona", "!=", "nobody")
	if len(rest) != 0 {
		t.Fatalf("expected empty collection, got %+v", rest)
	}
}

func TestBadgerInMemory(t *testing.T) {
	s, err := OpenBadger(nil, "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	collectionContract(t, s)
}

func TestSQLite(t *testing.T) {
	s, _, err := OpenSQLite(nil, filepath.Join(t.TempDir(), "docs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	collectionContract(t, s)
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set TEST_POSTGRES_DSN to run postgres integration tests")
	}
	s, _, err := OpenPostgres(nil, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	collectionContract(t, s)
}

func TestFirestoreEmulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("set FIRESTORE_EMULATOR_HOST to run firestore integration tests")
	}
	s, err := OpenFirestore(context.Background(), nil, "learnmate-test")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	collectionContract(t, s)
}

func TestMatch(t *testing.T) {
	data := map[string]any{"score": 3, "name": "ada", "profile": map[string]any{"pace": "fast"}}
	cases := []struct {
		field, op string
		value     any
		want      bool
	}{
		{"score", ">", 2.5, true},
		{"score", "<=", 3, true},
		{"score", "==", "3", false},
		{"name", "!=", "bob", true},
		{"profile.pace", "==", "fast", true},
		{"missing", "!=", "x", false},
	}
	for _, tc := range cases {
		if got := Match(data, tc.field, tc.op, tc.value); got != tc.want {
			t.Fatalf("%s %s %v: got %v", tc.field, tc.op, tc.value, got)
		}
	}
}
