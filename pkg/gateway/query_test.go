package gateway

import (
	"net/url"
	"testing"
)

func TestQueryOperators(t *testing.T) {
	q := NewQuery().
		Eq("biome", "jungle").
		Gte("price", 10).
		Lte("price", 50.5).
		ILike("name", "sword").
		OrderBy("name", "asc").
		OrderBy("id", "asc").
		Limit(20).
		Offset(40)

	v := q.Values()
	if got := v.Get("biome"); got != "eq.jungle" {
		t.Fatalf("biome = %q", got)
	}
	prices := v["price"]
	if len(prices) != 2 || prices[0] != "gte.10" || prices[1] != "lte.50.5" {
		t.Fatalf("price params = %v", prices)
	}
	if got := v.Get("name"); got != "ilike.*sword*" {
		t.Fatalf("name = %q", got)
	}
	if got := v.Get("order"); got != "name.asc,id.asc" {
		t.Fatalf("order = %q", got)
	}
	if got := v.Get("limit"); got != "20" {
		t.Fatalf("limit = %q", got)
	}
	if got := v.Get("offset"); got != "40" {
		t.Fatalf("offset = %q", got)
	}
}

func TestQuerySelectProjection(t *testing.T) {
	q := NewQuery().Select("id", "category").Select("owner_shop_name")
	if got := q.Values().Get("select"); got != "id,category,owner_shop_name" {
		t.Fatalf("select = %q", got)
	}
}

func TestQueryEncodeRoundTrips(t *testing.T) {
	encoded := NewQuery().ILike("name", "golden apple").Eq("category", "food").Encode()
	parsed, err := url.ParseQuery(encoded)
	if err != nil {
		t.Fatalf("parse encoded query: %v", err)
	}
	if got := parsed.Get("name"); got != "ilike.*golden apple*" {
		t.Fatalf("name after round trip = %q", got)
	}
	if got := parsed.Get("category"); got != "eq.food" {
		t.Fatalf("category after round trip = %q", got)
	}
}

func TestQueryEmpty(t *testing.T) {
	if got := NewQuery().Encode(); got != "" {
		t.Fatalf("empty query must encode to nothing, got %q", got)
	}
}

func TestQueryNumberFormatting(t *testing.T) {
	q := NewQuery().Gte("price", 0).Lte("price", 1234.25)
	prices := q.Values()["price"]
	if prices[0] != "gte.0" || prices[1] != "lte.1234.25" {
		t.Fatalf("price formatting = %v", prices)
	}
}
