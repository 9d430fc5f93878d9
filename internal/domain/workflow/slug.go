package workflow

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLen = 80

var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify lowercases title, strips diacritics and joins alphanumeric runs
// with hyphens.
func Slugify(title string) string {
	folded, _, err := transform.String(foldMarks, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}

	slug := b.String()
	if r := []rune(slug); len(r) > maxSlugLen {
		slug = strings.TrimRight(string(r[:maxSlugLen]), "-")
	}
	return slug
}

type titleSlugAssigner struct {
	slugs SlugRepository
}

// NewSlugAssigner derives slugs from submission titles and reserves them
// through slugs. Untitled submissions fall back to their id.
func NewSlugAssigner(slugs SlugRepository) SlugAssigner {
	return &titleSlugAssigner{slugs: slugs}
}

func (a *titleSlugAssigner) AssignSlug(ctx context.Context, sub *Submission) (string, error) {
	base := Slugify(sub.Title)
	if base == "" {
		base = strings.ToLower(sub.ID)
	}
	return a.slugs.Claim(ctx, sub.TenantID, sub.ID, base)
}
