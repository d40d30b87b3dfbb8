// Package links derives the per-viewer action links attached to catalog
// items. A link's presence is the access signal: actions the viewer cannot
// take are omitted entirely rather than flagged.
package links

import (
	"strings"

	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/market"
)

// DefaultBasePath prefixes every generated href.
const DefaultBasePath = "/api/v1"

// Generator builds action link sets for items as seen by a viewer.
type Generator struct {
	BasePath string
}

// NewGenerator returns a Generator rooted at basePath. An empty basePath
// selects DefaultBasePath; a trailing slash is stripped so hrefs never
// contain double slashes.
func NewGenerator(basePath string) *Generator {
	basePath = strings.TrimRight(strings.TrimSpace(basePath), "/")
	if basePath == "" {
		basePath = DefaultBasePath
	}
	return &Generator{BasePath: basePath}
}

// Generate returns the actions user may take on item. The self link is
// always present. Mutating links appear only when the viewer holds the
// matching grant, so two viewers of the same item can receive different
// maps.
func (g *Generator) Generate(item market.Item, user market.UserContext) map[string]market.Link {
	base := g.BasePath + "/items/" + item.ID
	out := map[string]market.Link{
		"self": {Href: base, Method: "GET"},
	}
	if item.HasWarp() {
		out["copyWarp"] = market.Link{Href: base + "/warp", Method: "GET"}
	}
	if !user.Authenticated {
		return out
	}
	out["reportPrice"] = market.Link{Href: base + "/price-reports", Method: "POST", RequiresAuth: true}
	if user.Owns(item.ID) {
		out["edit"] = market.Link{Href: base, Method: "PUT", RequiresAuth: true}
		out["updateStock"] = market.Link{Href: base + "/stock", Method: "PATCH", RequiresAuth: true}
	}
	if user.Can(market.CapVerifyListings) {
		out["verifyItem"] = market.Link{Href: base + "/verification", Method: "POST", RequiresAuth: true}
	}
	return out
}

// Enrich attaches a freshly generated link set to every item. Cached rows
// pass through here on every read so links always reflect the caller,
// never the viewer that populated the cache.
func (g *Generator) Enrich(items []market.Item, user market.UserContext) []market.EnrichedItem {
	out := make([]market.EnrichedItem, len(items))
	for i, item := range items {
		out[i] = market.EnrichedItem{Item: item, Links: g.Generate(item, user)}
	}
	return out
}
