// Package docstore is a small document-database abstraction: named
// collections of JSON-like documents addressed by id.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrUnsupportedOp = errors.New("unsupported query operator")
)

type Doc struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// Write is one element of a batch. Data == nil deletes the document.
type Write struct {
	ID   string
	Data map[string]any
}

type Collection interface {
	Get(ctx context.Context, id string) (map[string]any, error)
	Set(ctx context.Context, id string, data map[string]any) error
	Delete(ctx context.Context, id string) error
	// Query returns documents whose field satisfies op value. Supported ops:
	// ==, !=, <, <=, >, >=. Dotted fields address nested maps.
	Query(ctx context.Context, field, op string, value any) ([]Doc, error)
	Batch(ctx context.Context, writes []Write) error
}

type Store interface {
	Collection(name string) Collection
	Close() error
}

var validOps = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func checkOp(op string) error {
	if !validOps[op] {
		return fmt.Errorf("%w: %q", ErrUnsupportedOp, op)
	}
	return nil
}

func lookupField(data map[string]any, field string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// compare returns -1/0/1, or ok=false when the values are not comparable.
func compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if av == bv {
			return 0, true
		}
		return 1, true
	}
	return 0, false
}

// Match evaluates a query predicate in memory. Missing fields never match.
func Match(data map[string]any, field, op string, value any) bool {
	v, ok := lookupField(data, field)
	if !ok {
		return false
	}
	c, ok := compare(v, value)
	if !ok {
		return false
	}
	switch op {
	case "==":
		return c == 0
	case "!=":
		return c != 0
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	}
	return false
}
