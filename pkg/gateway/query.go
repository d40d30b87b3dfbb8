package gateway

import (
	"net/url"
	"strconv"
	"strings"
)

// Query accumulates read parameters in the gateway's operator dialect:
// equality (`field=eq.value`), inclusive ranges (`gte.`/`lte.`), substring
// match (`ilike.*value*`), ordering (`order=field.dir`), pagination
// (`limit`/`offset`) and column projection (`select=col,col`).
type Query struct {
	filters []filterParam
	order   []string
	columns []string
	limit   *int
	offset  *int
}

type filterParam struct {
	field string
	value string
}

func NewQuery() *Query {
	return &Query{}
}

// Eq narrows the result to rows whose field equals value.
func (q *Query) Eq(field, value string) *Query {
	q.filters = append(q.filters, filterParam{field: field, value: "eq." + value})
	return q
}

// Gte applies an inclusive lower bound.
func (q *Query) Gte(field string, value float64) *Query {
	q.filters = append(q.filters, filterParam{field: field, value: "gte." + formatNumber(value)})
	return q
}

// Lte applies an inclusive upper bound.
func (q *Query) Lte(field string, value float64) *Query {
	q.filters = append(q.filters, filterParam{field: field, value: "lte." + formatNumber(value)})
	return q
}

// ILike applies a case-insensitive substring match on field.
func (q *Query) ILike(field, term string) *Query {
	q.filters = append(q.filters, filterParam{field: field, value: "ilike.*" + term + "*"})
	return q
}

// OrderBy appends one ordering term; dir is "asc" or "desc".
func (q *Query) OrderBy(field, dir string) *Query {
	q.order = append(q.order, field+"."+dir)
	return q
}

// Select narrows the response to the given columns.
func (q *Query) Select(columns ...string) *Query {
	q.columns = append(q.columns, columns...)
	return q
}

func (q *Query) Limit(n int) *Query {
	q.limit = &n
	return q
}

func (q *Query) Offset(n int) *Query {
	q.offset = &n
	return q
}

// Values renders the accumulated parameters. Repeated fields (both price
// bounds) become repeated keys, which the dialect treats as AND.
func (q *Query) Values() url.Values {
	v := url.Values{}
	for _, f := range q.filters {
		v.Add(f.field, f.value)
	}
	if len(q.order) > 0 {
		v.Set("order", strings.Join(q.order, ","))
	}
	if len(q.columns) > 0 {
		v.Set("select", strings.Join(q.columns, ","))
	}
	if q.limit != nil {
		v.Set("limit", strconv.Itoa(*q.limit))
	}
	if q.offset != nil {
		v.Set("offset", strconv.Itoa(*q.offset))
	}
	return v
}

func (q *Query) Encode() string {
	return q.Values().Encode()
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
