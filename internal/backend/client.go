/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dashpoint/internal/domain"

	json "github.com/goccy/go-json"
)

// ErrUnauthorized is returned when the server rejects the bearer token.
var ErrUnauthorized = errors.New("unauthorized")

// ErrForbidden is returned when the server refuses the request outright,
// e.g. token minting without the admin key.
var ErrForbidden = errors.New("forbidden")

// APIError is a non-2xx response with the server's message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Unwrap maps well-known statuses to sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	}
	return nil
}

// Client talks to the collection API.
type Client struct {
	BaseURL  string
	Token    string // bearer token
	// AdminKey is sent with RequestToken to servers not in dev mode.
	AdminKey string
	client   *http.Client
}

// NewClient creates a new backend client. baseURL may include a trailing slash; it will be normalized.
func NewClient(baseURL string, token string) *Client {
	return NewClientWithOptions(baseURL, token, ClientOptions{})
}

// ClientOptions tune the HTTP transport. Zero Timeout means 10s.
type ClientOptions struct {
	Timeout time.Duration
	// TLSInsecure skips certificate verification; for self-signed dev servers only.
	TLSInsecure bool
	// AdminKey authorizes RequestToken on servers outside dev mode.
	AdminKey string
}

// NewClientWithOptions is NewClient with transport settings.
func NewClientWithOptions(baseURL, token string, o ClientOptions) *Client {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	hc := &http.Client{Timeout: o.Timeout}
	if o.TLSInsecure {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in dev setting
		hc.Transport = tr
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:    token,
		AdminKey: o.AdminKey,
		client:   hc,
	}
}

type rawEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	return c.doWithHeader(ctx, method, path, body, nil)
}

func (c *Client) doWithHeader(ctx context.Context, method, path string, body any, hdr http.Header) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env rawEnvelope
		_ = json.Unmarshal(b, &env)
		return nil, &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	return b, nil
}

// doEnvelope performs the request and decodes the envelope's data into dest.
func (c *Client) doEnvelope(ctx context.Context, method, path string, body, dest any) error {
	b, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	var env rawEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return &APIError{Status: http.StatusOK, Message: env.Message}
	}
	if dest == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func collectionPath(id string) string { return "/api/collections/" + url.PathEscape(id) }

// RequestToken asks the server for a token for subject and stores it on the
// client. Outside dev mode the server requires AdminKey.
func (c *Client) RequestToken(ctx context.Context, subject string, ttl time.Duration) (string, error) {
	var hdr http.Header
	if c.AdminKey != "" {
		hdr = http.Header{}
		hdr.Set(AdminKeyHeader, c.AdminKey)
	}
	b, err := c.doWithHeader(ctx, http.MethodPost, "/api/auth/token", map[string]any{
		"subject":     subject,
		"ttl_seconds": int64(ttl / time.Second),
	}, hdr)
	if err != nil {
		return "", err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	c.Token = out.Token
	return out.Token, nil
}

// Page is one page of ListCollections.
type Page struct {
	Collections []domain.Collection `json:"collections"`
	Pagination  struct {
		Current int `json:"current"`
		Pages   int `json:"pages"`
		Total   int `json:"total"`
	} `json:"pagination"`
}

// ListCollections returns one page of the caller's collections.
func (c *Client) ListCollections(ctx context.Context, q ListQuery) (*Page, error) {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/api/collections"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var p Page
	if err := c.doEnvelope(ctx, http.MethodGet, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetCollection fetches collection metadata without items.
func (c *Client) GetCollection(ctx context.Context, id string) (*domain.Collection, error) {
	var out domain.Collection
	if err := c.doEnvelope(ctx, http.MethodGet, collectionPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCollectionWithItems fetches a collection, its items and stored layouts.
func (c *Client) GetCollectionWithItems(ctx context.Context, id string) (*domain.CollectionWithItems, error) {
	var out domain.CollectionWithItems
	if err := c.doEnvelope(ctx, http.MethodGet, collectionPath(id)+"/items", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NewCollection is the create request body.
type NewCollection struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Color       string   `json:"color,omitempty"`
	Icon        string   `json:"icon,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	IsPrivate   *bool    `json:"isPrivate,omitempty"`
}

// CreateCollection creates a collection owned by the token subject.
func (c *Client) CreateCollection(ctx context.Context, in NewCollection) (*domain.Collection, error) {
	var out domain.Collection
	if err := c.doEnvelope(ctx, http.MethodPost, "/api/collections", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCollection deletes a collection and its items.
func (c *Client) DeleteCollection(ctx context.Context, id string) error {
	return c.doEnvelope(ctx, http.MethodDelete, collectionPath(id), nil, nil)
}

// UpdateCollectionLayouts replaces the stored layouts with payload, an
// encoded layout envelope. It is the remote side of the layout store.
func (c *Client) UpdateCollectionLayouts(ctx context.Context, id string, payload []byte) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = []byte("null")
	}
	body := map[string]json.RawMessage{"layouts": payload}
	return c.doEnvelope(ctx, http.MethodPut, collectionPath(id), body, nil)
}

// AddItem attaches an item to a collection.
func (c *Client) AddItem(ctx context.Context, id, itemType, itemID string, itemData any) (*domain.CollectionWithItems, error) {
	body := map[string]any{"itemType": itemType, "itemId": itemID}
	if itemData != nil {
		body["itemData"] = itemData
	}
	var out domain.CollectionWithItems
	if err := c.doEnvelope(ctx, http.MethodPost, collectionPath(id)+"/items", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveItem detaches an item from a collection.
func (c *Client) RemoveItem(ctx context.Context, id, itemType, itemID string) (*domain.CollectionWithItems, error) {
	path := collectionPath(id) + "/items/" + url.PathEscape(itemType) + "/" + url.PathEscape(itemID)
	var out domain.CollectionWithItems
	if err := c.doEnvelope(ctx, http.MethodDelete, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
