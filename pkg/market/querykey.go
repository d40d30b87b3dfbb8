package market

import (
	"net/url"
	"strconv"
	"strings"
)

// QueryKey derives the cache key for this filter state at one page.
// The key incorporates every distinguishing input in a fixed field order with
// explicit empty markers, so two logically different queries can never collide
// and two identical queries always do. Price bounds keep the absent-vs-zero
// distinction; the free-text search term is escaped so it cannot smuggle the
// field separator.
func (f FilterState) QueryKey(page, pageSize int) string {
	var b strings.Builder
	b.WriteString("catalog|biome=")
	b.WriteString(f.Biome)
	b.WriteString("|dir=")
	b.WriteString(f.Direction)
	b.WriteString("|min=")
	b.WriteString(priceBound(f.MinPrice))
	b.WriteString("|max=")
	b.WriteString(priceBound(f.MaxPrice))
	b.WriteString("|ver=")
	b.WriteString(f.Verification)
	b.WriteString("|cat=")
	b.WriteString(f.Category)
	b.WriteString("|q=")
	b.WriteString(url.QueryEscape(f.Search))
	b.WriteString("|page=")
	b.WriteString(strconv.Itoa(page))
	b.WriteString("|size=")
	b.WriteString(strconv.Itoa(pageSize))
	return b.String()
}

func priceBound(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
