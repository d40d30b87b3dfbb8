package filter

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/market"
)

func floatPtr(v float64) *float64 { return &v }

func TestValidateAcceptsWellFormedState(t *testing.T) {
	f := market.FilterState{
		Biome:        "jungle",
		Direction:    "north",
		Category:     "weapons",
		MinPrice:     floatPtr(5),
		MaxPrice:     floatPtr(50),
		Verification: "verified",
		Search:       "sword",
	}
	if errs := Validate(f); len(errs) != 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
	if errs := Validate(market.FilterState{}); len(errs) != 0 {
		t.Fatalf("zero state must validate, got %v", errs)
	}
}

func TestValidateRejectsUnknownEnums(t *testing.T) {
	cases := []struct {
		name  string
		state market.FilterState
		field string
	}{
		{"biome", market.FilterState{Biome: "void"}, "biome"},
		{"direction", market.FilterState{Direction: "up"}, "direction"},
		{"category", market.FilterState{Category: "spells"}, "category"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errs := Validate(tc.state)
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %v", errs)
			}
			if errs[0].Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, errs[0].Field)
			}
		})
	}
}

func TestValidateRejectsBadPriceBounds(t *testing.T) {
	errs := Validate(market.FilterState{MinPrice: floatPtr(-1)})
	if len(errs) != 1 || errs[0].Field != "min_price" {
		t.Fatalf("negative min: %v", errs)
	}
	errs = Validate(market.FilterState{MaxPrice: floatPtr(-0.5)})
	if len(errs) != 1 || errs[0].Field != "max_price" {
		t.Fatalf("negative max: %v", errs)
	}
	errs = Validate(market.FilterState{MinPrice: floatPtr(10), MaxPrice: floatPtr(5)})
	if len(errs) != 1 || !strings.Contains(errs[0].Message, "max_price") {
		t.Fatalf("inverted bounds: %v", errs)
	}
	// Equal bounds are a valid single-price window.
	if errs := Validate(market.FilterState{MinPrice: floatPtr(5), MaxPrice: floatPtr(5)}); len(errs) != 0 {
		t.Fatalf("equal bounds must validate, got %v", errs)
	}
}

func TestValidateIgnoresVerificationValues(t *testing.T) {
	for _, v := range []string{"verified", "unverified", "anything", ""} {
		if errs := Validate(market.FilterState{Verification: v}); len(errs) != 0 {
			t.Fatalf("verification %q must not be validated, got %v", v, errs)
		}
	}
}

func TestHasLocalFacet(t *testing.T) {
	if !HasLocalFacet(market.FilterState{Verification: "verified"}) {
		t.Fatal("verified must require local evaluation")
	}
	for _, v := range []string{"", "unverified", "all", "VERIFIED"} {
		if HasLocalFacet(market.FilterState{Verification: v}) {
			t.Fatalf("verification %q must not require local evaluation", v)
		}
	}
}

func TestBuildQueryTranslatesNativeFacets(t *testing.T) {
	f := market.FilterState{
		Biome:        "desert",
		Direction:    "east",
		Category:     "tools",
		MinPrice:     floatPtr(2),
		MaxPrice:     floatPtr(30.5),
		Verification: "verified",
		Search:       "pick",
	}
	vals, err := url.ParseQuery(BuildQuery(f).Encode())
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	if got := vals.Get("biome"); got != "eq.desert" {
		t.Errorf("biome = %q", got)
	}
	if got := vals.Get("direction"); got != "eq.east" {
		t.Errorf("direction = %q", got)
	}
	if got := vals.Get("category"); got != "eq.tools" {
		t.Errorf("category = %q", got)
	}
	prices := vals["price"]
	if len(prices) != 2 || prices[0] != "gte.2" || prices[1] != "lte.30.5" {
		t.Errorf("price = %v", prices)
	}
	if got := vals.Get("name"); got != "ilike.*pick*" {
		t.Errorf("name = %q", got)
	}
	// The dialect cannot express the verification facet.
	if _, ok := vals["last_verified_at"]; ok {
		t.Error("verification must not reach the gateway query")
	}
}

func TestBuildQueryEmptyState(t *testing.T) {
	if enc := BuildQuery(market.FilterState{}).Encode(); enc != "" {
		t.Fatalf("zero state must build an empty query, got %q", enc)
	}
}

func TestMatchesEvaluatesEveryFacet(t *testing.T) {
	now := time.Now()
	item := market.Item{
		ID:             "item_001",
		Name:           "Diamond Sword",
		Category:       "weapons",
		Price:          25,
		Biome:          "jungle",
		Direction:      "north",
		LastVerifiedAt: &now,
	}

	cases := []struct {
		name  string
		state market.FilterState
		want  bool
	}{
		{"zero state", market.FilterState{}, true},
		{"biome match", market.FilterState{Biome: "jungle"}, true},
		{"biome mismatch", market.FilterState{Biome: "desert"}, false},
		{"direction mismatch", market.FilterState{Direction: "south"}, false},
		{"category match", market.FilterState{Category: "weapons"}, true},
		{"price window", market.FilterState{MinPrice: floatPtr(20), MaxPrice: floatPtr(30)}, true},
		{"below min", market.FilterState{MinPrice: floatPtr(26)}, false},
		{"above max", market.FilterState{MaxPrice: floatPtr(24)}, false},
		{"min at boundary", market.FilterState{MinPrice: floatPtr(25)}, true},
		{"max at boundary", market.FilterState{MaxPrice: floatPtr(25)}, true},
		{"search case-insensitive", market.FilterState{Search: "diamond"}, true},
		{"search substring", market.FilterState{Search: "SWORD"}, true},
		{"search miss", market.FilterState{Search: "axe"}, false},
		{"verified item passes verified facet", market.FilterState{Verification: "verified"}, true},
		{"unverified value is inert", market.FilterState{Verification: "unverified"}, true},
		{"unknown value is inert", market.FilterState{Verification: "whatever"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Matches(tc.state, item); got != tc.want {
				t.Fatalf("Matches(%+v) = %v, want %v", tc.state, got, tc.want)
			}
		})
	}
}

func TestMatchesVerifiedFacetAgainstUnverifiedItem(t *testing.T) {
	item := market.Item{ID: "item_002", Name: "Dirt"}
	if Matches(market.FilterState{Verification: "verified"}, item) {
		t.Fatal("item without last_verified_at must fail the verified facet")
	}
	if !Matches(market.FilterState{Verification: "unverified"}, item) {
		t.Fatal("unverified value must not constrain")
	}
}

func TestApplyPreservesOrder(t *testing.T) {
	items := []market.Item{
		{ID: "a", Name: "Iron Sword", Price: 10},
		{ID: "b", Name: "Stone Sword", Price: 4},
		{ID: "c", Name: "Bread", Price: 1},
		{ID: "d", Name: "Gold Sword", Price: 18},
	}
	got := Apply(market.FilterState{Search: "sword", MinPrice: floatPtr(5)}, items)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "d" {
		t.Fatalf("unexpected result: %+v", got)
	}
}
