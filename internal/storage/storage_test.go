package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"

	"github.com/vittordeaguiar/blog-api/internal/slug"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil passes through", nil, nil},
		{"no rows becomes not found", sql.ErrNoRows, ErrNotFound},
		{
			"slug unique violation",
			&pq.Error{Code: "23505", Constraint: "posts_slug_key"},
			ErrDuplicateSlug,
		},
		{
			"category slug unique violation",
			&pq.Error{Code: "23505", Constraint: "categories_slug_key"},
			ErrDuplicateSlug,
		},
		{
			"email unique violation",
			&pq.Error{Code: "23505", Constraint: "users_email_key"},
			ErrDuplicateEmail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.in)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("mapError = %v, want nil", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Fatalf("mapError(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestMapErrorKeepsUnknownErrors(t *testing.T) {
	boom := fmt.Errorf("connection reset")
	if got := mapError(boom); !errors.Is(got, boom) {
		t.Fatalf("mapError rewrote an unrelated error: %v", got)
	}

	otherViolation := &pq.Error{Code: "23505", Constraint: "post_categories_pkey"}
	got := mapError(otherViolation)
	if errors.Is(got, ErrDuplicateSlug) || errors.Is(got, ErrDuplicateEmail) {
		t.Fatalf("unrelated unique violation mapped to a sentinel: %v", got)
	}
}

func TestPostStoreIsASlugFinder(t *testing.T) {
	// The slug generator probes uniqueness through this interface.
	var _ slug.Finder = (*PostStore)(nil)
	var _ slug.Finder = (*CategoryStore)(nil)
}

// wrapErr mirrors how store methods wrap driver errors before returning.
func TestWrappedErrorsRemainMatchable(t *testing.T) {
	inner := mapError(&pq.Error{Code: "23505", Constraint: "posts_slug_key"})
	wrapped := fmt.Errorf("blog: create post: %w", inner)

	if !errors.Is(wrapped, ErrDuplicateSlug) {
		t.Fatal("wrapped duplicate slug error no longer matches the sentinel")
	}
}
