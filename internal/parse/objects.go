package parse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// CreateObject inserts a row into a custom class and returns its object id and creation time.
func (c *Client) CreateObject(ctx context.Context, class string, fields map[string]any) (string, time.Time, error) {
	if class == "" {
		return "", time.Time{}, fmt.Errorf("class name is required")
	}
	var out struct {
		ObjectID  string    `json:"objectId"`
		CreatedAt time.Time `json:"createdAt"`
	}
	if err := c.doJSON(ctx, "create_object", http.MethodPost, "classes/"+url.PathEscape(class), nil, asMaster, fields, &out); err != nil {
		return "", time.Time{}, err
	}
	return out.ObjectID, out.CreatedAt, nil
}

// QueryObjects lists rows of a custom class ordered by order (e.g. "-createdAt").
// Each result is returned undecoded so callers can map it onto their own shape.
func (c *Client) QueryObjects(ctx context.Context, class, order string, limit int) ([]json.RawMessage, error) {
	if class == "" {
		return nil, fmt.Errorf("class name is required")
	}
	query := url.Values{}
	if order != "" {
		query.Set("order", order)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var out struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := c.doJSON(ctx, "query_objects", http.MethodGet, "classes/"+url.PathEscape(class), query, asMaster, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}
