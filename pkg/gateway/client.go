package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/httpx"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/market"
)

// ErrUnavailable marks transport failures and 5xx responses: the gateway
// could not be reached or could not serve. ErrBadResponse marks everything
// the gateway did return but that cannot be trusted as catalog data.
var (
	ErrUnavailable = errors.New("gateway unavailable")
	ErrBadResponse = errors.New("gateway bad response")
)

// Client reads catalog rows from the data gateway. It is the only component
// that talks to the backing store; everything above it sees plain records.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	AuthHeader string
	AuthToken  string
	Retries    int
	RetryDelay time.Duration
}

func NewClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: client,
		Retries:    1,
		RetryDelay: 50 * time.Millisecond,
	}
}

// FetchItems returns the rows matching the query. The response must be a
// bare JSON array; a row with a mistyped column keeps safe zero defaults for
// that column instead of aborting the page.
func (c *Client) FetchItems(ctx context.Context, q *Query) ([]market.Item, error) {
	body, err := c.get(ctx, q)
	if err != nil {
		return nil, err
	}
	rows, err := splitRows(body)
	if err != nil {
		return nil, err
	}
	items := make([]market.Item, 0, len(rows))
	for _, row := range rows {
		var item market.Item
		if err := json.Unmarshal(row, &item); err != nil {
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &typeErr) {
				return nil, fmt.Errorf("%w: decode row: %v", ErrBadResponse, err)
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// FetchRefs returns the narrow id/category/shop projection used to derive
// totals and distinct-value counts without transferring full records.
func (c *Client) FetchRefs(ctx context.Context, q *Query) ([]market.ItemRef, error) {
	body, err := c.get(ctx, q)
	if err != nil {
		return nil, err
	}
	rows, err := splitRows(body)
	if err != nil {
		return nil, err
	}
	refs := make([]market.ItemRef, 0, len(rows))
	for _, row := range rows {
		var ref market.ItemRef
		if err := json.Unmarshal(row, &ref); err != nil {
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &typeErr) {
				return nil, fmt.Errorf("%w: decode row: %v", ErrBadResponse, err)
			}
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// GetItem looks up a single item by id. The second return value reports
// whether the item exists.
func (c *Client) GetItem(ctx context.Context, id string) (market.Item, bool, error) {
	items, err := c.FetchItems(ctx, NewQuery().Eq("id", id).Limit(1))
	if err != nil {
		return market.Item{}, false, err
	}
	if len(items) == 0 {
		return market.Item{}, false, nil
	}
	return items[0], true, nil
}

// Ping issues a minimal read to verify the gateway is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.FetchRefs(ctx, NewQuery().Select("id").Limit(1))
	return err
}

func (c *Client) get(ctx context.Context, q *Query) ([]byte, error) {
	url := c.BaseURL + "/items"
	if q != nil {
		if encoded := q.Encode(); encoded != "" {
			url += "?" + encoded
		}
	}
	status, body, err := httpx.RequestJSON(ctx, c.HTTPClient, http.MethodGet, url, nil, c.authHeaders(), c.Retries, c.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if status >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, status)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrBadResponse, status)
	}
	return body, nil
}

func (c *Client) authHeaders() map[string]string {
	if c.AuthHeader == "" || c.AuthToken == "" {
		return nil
	}
	return map[string]string{c.AuthHeader: c.AuthToken}
}

func splitRows(body []byte) ([]json.RawMessage, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrBadResponse)
	}
	return rows, nil
}
