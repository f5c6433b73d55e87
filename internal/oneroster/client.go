// Package oneroster is the client for the paginated rostering source-of-record
// API. It materializes complete collections in memory so the sync engine knows
// it has the full snapshot before it commits a replace.
package oneroster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rosterhub/rostersync/pkg/common/apperr"
	"github.com/rosterhub/rostersync/pkg/common/logger"
	"github.com/rosterhub/rostersync/pkg/repositories/rosterstore"
)

// DefaultPageSize matches the upstream's maximum page size.
const DefaultPageSize = 1000

const maxBodySize = 32 << 20 // 32MB per page

// Application is one entry of the upstream /applications listing. Each
// application carries the per-tenant OneRoster credentials.
type Application struct {
	Name           string `json:"name"`
	OneRosterAppID string `json:"oneroster_application_id"`
	TenantID       string `json:"tenant_id"`
	Bearer         string `json:"bearer"`
}

// Client talks to one rostering deployment. Construct once per sync
// invocation; it holds no mutable state beyond the HTTP client.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) get(ctx context.Context, url string) (map[string]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, err, "build request for %s", url)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, err, "request %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Upstream("request %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, err, "read response from %s", url)
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, err, "decode response from %s", url)
	}
	return envelope, nil
}

// FetchAll retrieves the complete collection behind endpoint using offset
// pagination. It requests ?limit=pageSize&offset=O starting at 0 and stops
// when a page comes back with fewer than pageSize records: a short page is
// the last page. A collection whose size is an exact multiple of pageSize
// costs one extra empty-page round trip, which is accepted; the loop cannot
// run forever because an empty page is always short when pageSize > 0.
func (c *Client) FetchAll(ctx context.Context, endpoint, collectionKey string, pageSize int) ([]rosterstore.Record, error) {
	if pageSize <= 0 {
		return nil, apperr.Upstream("page size must be positive, got %d", pageSize)
	}
	var all []rosterstore.Record
	offset := 0
	for {
		url := fmt.Sprintf("%s%s?limit=%d&offset=%d", c.BaseURL, endpoint, pageSize, offset)
		envelope, err := c.get(ctx, url)
		if err != nil {
			return nil, err
		}
		page, err := decodePage(envelope[collectionKey])
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUpstream, err, "decode %q page at offset %d", collectionKey, offset)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
		offset += pageSize
	}
	logger.Debug("fetched %d records from %s", len(all), endpoint)
	return all, nil
}

// decodePage unmarshals one page's record array with numeric precision
// preserved. A missing collection field counts as an empty page.
func decodePage(raw json.RawMessage) ([]rosterstore.Record, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var page []rosterstore.Record
	if err := dec.Decode(&page); err != nil {
		return nil, err
	}
	return page, nil
}

// Applications lists the upstream applications available to the admin token.
func (c *Client) Applications(ctx context.Context) ([]Application, error) {
	envelope, err := c.get(ctx, c.BaseURL+"/applications")
	if err != nil {
		return nil, err
	}
	raw, ok := envelope["applications"]
	if !ok {
		return nil, apperr.Upstream("applications listing missing 'applications' field")
	}
	var apps []Application
	if err := json.Unmarshal(raw, &apps); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, err, "decode applications listing")
	}
	return apps, nil
}

// SelectApplication picks the configured application by name or OneRoster
// application id. The upstream list order is not a documented contract, so a
// positional pick is never used here.
func SelectApplication(apps []Application, nameOrID string) (*Application, error) {
	if nameOrID == "" {
		return nil, apperr.Upstream("no application configured for ingestion")
	}
	for i := range apps {
		if apps[i].Name == nameOrID || apps[i].OneRosterAppID == nameOrID {
			return &apps[i], nil
		}
	}
	return nil, apperr.Upstream("application %q not found in upstream listing", nameOrID)
}

// BasePath returns the OneRoster API path prefix for an application.
func (a *Application) BasePath() string {
	return "/" + a.OneRosterAppID + "/ims/oneroster/v1p1"
}
