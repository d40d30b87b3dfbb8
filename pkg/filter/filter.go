// Package filter validates catalog filter state, splits it into the part
// the data gateway can evaluate and the part that must run in process, and
// provides the in-process predicate for the latter.
package filter

import (
	"strings"

	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/gateway"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/market"
)

// VerificationVerified is the only verification value that constrains
// results. Every other value, including "unverified", matches everything.
const VerificationVerified = "verified"

var knownBiomes = map[string]struct{}{
	"jungle":    {},
	"desert":    {},
	"plains":    {},
	"ocean":     {},
	"mountains": {},
	"swamp":     {},
	"taiga":     {},
	"savanna":   {},
	"nether":    {},
	"end":       {},
}

var knownDirections = map[string]struct{}{
	"north": {},
	"south": {},
	"east":  {},
	"west":  {},
}

var knownCategories = map[string]struct{}{
	"weapons":         {},
	"tools":           {},
	"armor":           {},
	"blocks":          {},
	"food":            {},
	"potions":         {},
	"enchanted_books": {},
	"redstone":        {},
	"decorative":      {},
	"misc":            {},
}

// KnownBiome reports whether b is a recognized biome value.
func KnownBiome(b string) bool {
	_, ok := knownBiomes[b]
	return ok
}

// KnownDirection reports whether d is a recognized cardinal direction.
func KnownDirection(d string) bool {
	_, ok := knownDirections[d]
	return ok
}

// KnownCategory reports whether c is a recognized item category.
func KnownCategory(c string) bool {
	_, ok := knownCategories[c]
	return ok
}

// Validate checks every populated facet of f and returns one entry per
// problem. An empty return means f is safe to evaluate. Verification is
// deliberately not validated: unknown values are inert rather than errors.
func Validate(f market.FilterState) market.ValidationErrors {
	var errs market.ValidationErrors
	if f.Biome != "" && !KnownBiome(f.Biome) {
		errs = append(errs, market.ValidationError{Field: "biome", Message: "unknown biome " + quote(f.Biome)})
	}
	if f.Direction != "" && !KnownDirection(f.Direction) {
		errs = append(errs, market.ValidationError{Field: "direction", Message: "unknown direction " + quote(f.Direction)})
	}
	if f.Category != "" && !KnownCategory(f.Category) {
		errs = append(errs, market.ValidationError{Field: "category", Message: "unknown category " + quote(f.Category)})
	}
	if f.MinPrice != nil && *f.MinPrice < 0 {
		errs = append(errs, market.ValidationError{Field: "min_price", Message: "must not be negative"})
	}
	if f.MaxPrice != nil && *f.MaxPrice < 0 {
		errs = append(errs, market.ValidationError{Field: "max_price", Message: "must not be negative"})
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		errs = append(errs, market.ValidationError{Field: "min_price", Message: "must not exceed max_price"})
	}
	return errs
}

func quote(v string) string { return "\"" + v + "\"" }

// HasLocalFacet reports whether f carries a facet the gateway dialect
// cannot express. Only verification=verified qualifies: it needs a
// non-null check on last_verified_at, which the dialect lacks.
func HasLocalFacet(f market.FilterState) bool {
	return f.Verification == VerificationVerified
}

// BuildQuery translates the gateway-native facets of f into a gateway
// query. The verification facet is excluded; callers that need it apply
// Matches to the fetched rows instead.
func BuildQuery(f market.FilterState) *gateway.Query {
	q := gateway.NewQuery()
	if f.Biome != "" {
		q.Eq("biome", f.Biome)
	}
	if f.Direction != "" {
		q.Eq("direction", f.Direction)
	}
	if f.Category != "" {
		q.Eq("category", f.Category)
	}
	if f.MinPrice != nil {
		q.Gte("price", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q.Lte("price", *f.MaxPrice)
	}
	if f.Search != "" {
		q.ILike("name", f.Search)
	}
	return q
}

// Matches evaluates the full filter conjunction against a single item,
// mirroring the gateway-side operators so that locally filtered pages
// agree with gateway-filtered ones.
func Matches(f market.FilterState, item market.Item) bool {
	if f.Biome != "" && item.Biome != f.Biome {
		return false
	}
	if f.Direction != "" && item.Direction != f.Direction {
		return false
	}
	if f.Category != "" && item.Category != f.Category {
		return false
	}
	if f.MinPrice != nil && item.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && item.Price > *f.MaxPrice {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(item.Name), strings.ToLower(f.Search)) {
		return false
	}
	if f.Verification == VerificationVerified && !item.Verified() {
		return false
	}
	return true
}

// Apply returns the rows of items that satisfy f, preserving input order.
func Apply(f market.FilterState, items []market.Item) []market.Item {
	out := make([]market.Item, 0, len(items))
	for _, item := range items {
		if Matches(f, item) {
			out = append(out, item)
		}
	}
	return out
}
