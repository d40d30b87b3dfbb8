package market

import (
	"strings"
	"time"
)

// Item is a raw catalog record as returned by the data gateway.
// The engine never mutates items, it only wraps them.
type Item struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Category       string     `json:"category"`
	Price          float64    `json:"price"`
	StockQuantity  int        `json:"stock_quantity"`
	OwnerID        string     `json:"owner_id"`
	OwnerShopName  string     `json:"owner_shop_name"`
	Biome          string     `json:"biome,omitempty"`
	Direction      string     `json:"direction,omitempty"`
	WarpCommand    string     `json:"warp_command,omitempty"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
	VerifiedBy     string     `json:"verified_by,omitempty"`
}

type Location struct {
	Biome       string `json:"biome"`
	Direction   string `json:"direction"`
	WarpCommand string `json:"warp_command"`
}

type Verification struct {
	LastVerifiedAt time.Time `json:"last_verified_at"`
	VerifiedBy     string    `json:"verified_by"`
}

// Location projects the optional location descriptor.
func (i Item) Location() (Location, bool) {
	if i.Biome == "" && i.Direction == "" && i.WarpCommand == "" {
		return Location{}, false
	}
	return Location{Biome: i.Biome, Direction: i.Direction, WarpCommand: i.WarpCommand}, true
}

// Verification projects the optional verification descriptor.
func (i Item) Verification() (Verification, bool) {
	if i.LastVerifiedAt == nil {
		return Verification{}, false
	}
	return Verification{LastVerifiedAt: *i.LastVerifiedAt, VerifiedBy: i.VerifiedBy}, true
}

// Verified reports whether the item carries a non-null verification descriptor.
func (i Item) Verified() bool {
	return i.LastVerifiedAt != nil
}

// HasWarp reports whether the item carries a copyable location reference.
func (i Item) HasWarp() bool {
	return strings.TrimSpace(i.WarpCommand) != ""
}

// ItemRef is the narrow projection used for totals and distinct-value counts.
type ItemRef struct {
	ID            string `json:"id"`
	Category      string `json:"category"`
	OwnerShopName string `json:"owner_shop_name"`
}

// FilterState is the closed set of catalog facets a caller may supply.
// The zero value of a field means the facet is absent and imposes no
// constraint; MinPrice and MaxPrice are pointers so an explicit zero bound
// stays distinguishable from an absent one.
type FilterState struct {
	Biome        string
	Direction    string
	MinPrice     *float64
	MaxPrice     *float64
	Verification string
	Category     string
	Search       string
}

// IsZero reports whether no facet is set.
func (f FilterState) IsZero() bool {
	return f.Biome == "" && f.Direction == "" && f.MinPrice == nil && f.MaxPrice == nil &&
		f.Verification == "" && f.Category == "" && f.Search == ""
}

// Capability is an enumerated permission token carried by a UserContext.
type Capability string

const (
	CapEditOwnListings Capability = "EDIT_OWN_LISTINGS"
	CapVerifyListings  Capability = "VERIFY_LISTINGS"
)

// ParseCapability maps a raw claim token to a known capability.
// Unknown tokens are dropped when a session is resolved.
func ParseCapability(raw string) (Capability, bool) {
	switch Capability(strings.ToUpper(strings.TrimSpace(raw))) {
	case CapEditOwnListings:
		return CapEditOwnListings, true
	case CapVerifyListings:
		return CapVerifyListings, true
	}
	return "", false
}

// ParseCapabilities maps raw claim tokens to known capabilities, silently
// dropping unrecognized ones.
func ParseCapabilities(raw []string) []Capability {
	var out []Capability
	for _, r := range raw {
		if c, ok := ParseCapability(r); ok {
			out = append(out, c)
		}
	}
	return out
}

// UserContext is the resolved identity/permission/ownership snapshot the
// engine uses to decide which actions to expose. It is read-only input.
type UserContext struct {
	Authenticated bool         `json:"authenticated"`
	Username      string       `json:"username,omitempty"`
	Capabilities  []Capability `json:"capabilities,omitempty"`
	OwnedItemIDs  []string     `json:"owned_item_ids,omitempty"`
}

// Anonymous returns the context used for unauthenticated callers.
func Anonymous() UserContext {
	return UserContext{}
}

// Can reports whether the context carries the given capability.
func (u UserContext) Can(cap Capability) bool {
	for _, c := range u.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Owns reports whether the item identifier is in the context's owned set.
func (u UserContext) Owns(itemID string) bool {
	for _, id := range u.OwnedItemIDs {
		if id == itemID {
			return true
		}
	}
	return false
}

// Link describes one permission-gated action on an item.
type Link struct {
	Href         string `json:"href"`
	Method       string `json:"method"`
	RequiresAuth bool   `json:"requires_auth"`
}

// EnrichedItem is an Item plus the action links generated for one caller.
// It is a transient projection, never cached and never persisted.
type EnrichedItem struct {
	Item
	Links map[string]Link `json:"links"`
}

type Pagination struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
	TotalItems  int `json:"total_items"`
}

type Stats struct {
	ShopCount     int `json:"shop_count"`
	CategoryCount int `json:"category_count"`
}

// Degraded reason codes. A degraded page is structurally valid but empty,
// and always distinguishable from a legitimately empty catalog.
const (
	ReasonGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	ReasonGatewayBadResponse = "GATEWAY_BAD_RESPONSE"
)

// CatalogPage is the paginated result returned to callers. Recomputed on
// every request; Stats and Pagination always describe the same filtered set.
type CatalogPage struct {
	Items      []EnrichedItem `json:"items"`
	Pagination Pagination     `json:"pagination"`
	Stats      Stats          `json:"stats"`
	Degraded   bool           `json:"degraded"`
	Reason     string         `json:"reason,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
}

// CachedPage is the cache value for one (filters, page, pageSize) key:
// raw rows plus aggregates, no link data, so a cache hit can never leak
// another caller's permissions.
type CachedPage struct {
	Rows          []Item `json:"rows"`
	TotalItems    int    `json:"total_items"`
	ShopCount     int    `json:"shop_count"`
	CategoryCount int    `json:"category_count"`
}

// ValidationError names one rejected input field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors aggregates per-field failures from one request.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "invalid query"
	}
	parts := make([]string, 0, len(e))
	for _, v := range e {
		parts = append(parts, v.Error())
	}
	return strings.Join(parts, "; ")
}
