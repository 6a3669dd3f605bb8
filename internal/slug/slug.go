// Package slug derives URL-safe identifiers from post titles and makes
// them unique against already persisted records.
package slug

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxLength is the maximum length of a generated slug.
	MaxLength = 200

	// maxAttempts bounds the uniqueness probing loop so a pathological
	// collision chain cannot loop forever.
	maxAttempts = 10000
)

// Validation patterns are compiled once at package init.
var (
	validSlug       = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	invalidChars    = regexp.MustCompile(`[^a-z0-9-]`)
	repeatedHyphens = regexp.MustCompile(`-{2,}`)
)

var (
	// ErrEmptyText is returned when the input text is empty or whitespace.
	ErrEmptyText = errors.New("slug: text cannot be empty")

	// ErrEmptyBase is returned when the base slug for uniqueness probing is empty.
	ErrEmptyBase = errors.New("slug: base slug cannot be empty")

	// ErrNoAlphanumeric is returned when no slug can be derived from the text.
	ErrNoAlphanumeric = errors.New("slug: text must contain at least one alphanumeric character")

	// ErrExhausted is returned when the uniqueness probing bound is reached.
	ErrExhausted = fmt.Errorf("slug: failed to generate unique slug after %d attempts", maxAttempts)
)

// diacriticsFolder decomposes characters and strips combining marks,
// so accented letters degrade to their closest ASCII base letter.
var diacriticsFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Generate derives a URL-safe slug from arbitrary text. It is a pure
// function: no I/O, deterministic for identical input. The result matches
// ^[a-z0-9]+(?:-[a-z0-9]+)*$ and is at most MaxLength characters.
func Generate(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	folded, _, err := transform.String(diacriticsFolder, text)
	if err != nil {
		// Malformed input; keep going with the raw text and let the
		// character cleanup below deal with it.
		folded = text
	}

	s := strings.ToLower(folded)
	s = strings.ReplaceAll(s, " ", "-")
	s = invalidChars.ReplaceAllString(s, "-")
	s = repeatedHyphens.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > MaxLength {
		s = s[:MaxLength]
		// Back off to the last hyphen boundary so no word is cut mid-token.
		if idx := strings.LastIndexByte(s, '-'); idx > 0 {
			s = s[:idx]
		}
		s = strings.Trim(s, "-")
	}

	if s == "" || !validSlug.MatchString(s) {
		return "", ErrNoAlphanumeric
	}

	return s, nil
}

// Finder looks up the record currently owning a slug.
// Implementations report ok=false when the slug is free.
type Finder interface {
	FindIDBySlug(ctx context.Context, slug string) (id uuid.UUID, ok bool, err error)
}

// Generator makes base slugs globally unique by sequential probing
// against a Finder. It is an optimistic pre-check, not a lock: the
// persistence layer's unique constraint is the authoritative guard and
// concurrent writers may still surface a conflict there.
type Generator struct {
	finder Finder
}

// NewGenerator creates a Generator backed by the provided Finder.
func NewGenerator(finder Finder) (*Generator, error) {
	if finder == nil {
		return nil, fmt.Errorf("slug: finder is required")
	}

	return &Generator{finder: finder}, nil
}

// Unique returns base unchanged when it is free, otherwise probes
// base-2, base-3, … until a free candidate is found. excludeID marks the
// record being updated so it does not collide with its own prior slug;
// pass uuid.Nil on create. Probes are strictly sequential because each
// candidate depends on the outcome of the previous one.
func (g *Generator) Unique(ctx context.Context, base string, excludeID uuid.UUID) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", ErrEmptyBase
	}

	candidate := base
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ownerID, taken, err := g.finder.FindIDBySlug(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("slug: lookup for %q: %w", candidate, err)
		}

		if !taken || (excludeID != uuid.Nil && ownerID == excludeID) {
			return candidate, nil
		}

		candidate = fmt.Sprintf("%s-%d", base, attempt+1)
	}

	return "", ErrExhausted
}
