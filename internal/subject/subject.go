// Package subject defines the entities a road trip is planned for and the
// stable keys they are cached under.
package subject

import (
	"regexp"
	"strings"
)

var nonWord = regexp.MustCompile(`[^\w-]+`)

// keyPattern matches every string Slugify can produce.
var keyPattern = regexp.MustCompile(`^[\w-]+$`)

// Subject is one restaurant brand to plan a trip for.
type Subject struct {
	// Name is the human readable brand name.
	Name string `json:"name"`
	// Filter is the Overpass QL tag filter selecting the brand's nodes,
	// e.g. `"brand:wikidata"="Q1393809"`.
	Filter string `json:"filter"`
	// HasIslands marks brands whose simple area query would pull in
	// outlying locations; their points are fetched per sub-region instead.
	HasIslands bool `json:"has_islands,omitempty"`
}

// Key returns the cache key for the subject.
func (s Subject) Key() string {
	return Slugify(s.Name)
}

// Configured reports whether the subject has a point filter to fetch with.
func (s Subject) Configured() bool {
	return strings.TrimSpace(s.Filter) != ""
}

// Slugify lowercases input, replaces each space with '-' and strips every
// character that is not a word character or '-'.
//
//	"Ben & Jerry's" -> "ben--jerrys"
func Slugify(input string) string {
	out := strings.ToLower(input)
	out = strings.ReplaceAll(out, " ", "-")
	return nonWord.ReplaceAllString(out, "")
}

// ValidKey reports whether key is a non-empty slug.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}
