package market

import "testing"

func floatPtr(v float64) *float64 { return &v }

func TestQueryKeyDeterministic(t *testing.T) {
	f := FilterState{Biome: "jungle", MinPrice: floatPtr(10), MaxPrice: floatPtr(50)}
	a := f.QueryKey(1, 20)
	b := f.QueryKey(1, 20)
	if a != b {
		t.Fatalf("identical queries must collide: %q vs %q", a, b)
	}
}

func TestQueryKeyDistinguishesEveryInput(t *testing.T) {
	base := FilterState{Biome: "jungle", Direction: "north", Verification: "verified", Category: "weapons", Search: "sword"}
	baseKey := base.QueryKey(1, 20)

	variants := []FilterState{
		{Direction: "north", Verification: "verified", Category: "weapons", Search: "sword"},
		{Biome: "desert", Direction: "north", Verification: "verified", Category: "weapons", Search: "sword"},
		{Biome: "jungle", Verification: "verified", Category: "weapons", Search: "sword"},
		{Biome: "jungle", Direction: "north", Category: "weapons", Search: "sword"},
		{Biome: "jungle", Direction: "north", Verification: "verified", Search: "sword"},
		{Biome: "jungle", Direction: "north", Verification: "verified", Category: "weapons"},
		{Biome: "jungle", Direction: "north", Verification: "verified", Category: "weapons", Search: "sword", MinPrice: floatPtr(0)},
	}
	seen := map[string]int{baseKey: -1}
	for i, f := range variants {
		key := f.QueryKey(1, 20)
		if prev, ok := seen[key]; ok {
			t.Fatalf("variant %d collides with %d: %q", i, prev, key)
		}
		seen[key] = i
	}

	if base.QueryKey(2, 20) == baseKey {
		t.Fatal("page must be part of the key")
	}
	if base.QueryKey(1, 10) == baseKey {
		t.Fatal("page size must be part of the key")
	}
}

func TestQueryKeyAbsentVsZeroBound(t *testing.T) {
	absent := FilterState{}
	zero := FilterState{MinPrice: floatPtr(0)}
	if absent.QueryKey(1, 20) == zero.QueryKey(1, 20) {
		t.Fatal("absent bound and explicit zero bound must not collide")
	}
}

func TestQueryKeySearchCannotSmuggleSeparators(t *testing.T) {
	a := FilterState{Search: "x|page=9"}
	b := FilterState{Search: "x"}
	if a.QueryKey(9, 20) == b.QueryKey(9, 20) {
		t.Fatal("separator inside search must not collide with page field")
	}
	if a.QueryKey(1, 20) == a.QueryKey(9, 20) {
		t.Fatal("page must stay distinguishable with hostile search terms")
	}
}
