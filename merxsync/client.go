package merxsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// pageSize is the upstream page size. Pagination continues while a full
// page comes back.
const pageSize = 100

// maxPages is a safety cap on unbounded pagination.
const maxPages = 500

// UpstreamError is a non-2xx response from the Merx API, with the response
// body kept for the sync error log.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("merx api error %d: %s", e.StatusCode, e.Body)
}

type merxClient struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

func newMerxClient() (*merxClient, error) {
	baseURL := strings.TrimSpace(os.Getenv("MERX_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.merxpos.com"
	}
	apiKey := strings.TrimSpace(os.Getenv("MERX_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("merx api key is empty")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("MERX_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "Authorization"
	}
	rateLimitPerMin := int64(120)
	if v := strings.TrimSpace(os.Getenv("MERX_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &merxClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

type merxListResponse struct {
	Results []json.RawMessage `json:"results"`
	Total   *int              `json:"total"`
}

func (c *merxClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	<-c.limiter
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKeyHdr == "Authorization" {
		req.Header.Set(c.apiKeyHdr, "Bearer "+c.apiKey)
	} else {
		req.Header.Set(c.apiKeyHdr, c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func (c *merxClient) getList(ctx context.Context, path string, params url.Values) (merxListResponse, error) {
	body, err := c.get(ctx, path, params)
	if err != nil {
		return merxListResponse{}, err
	}
	// An empty body is success with no results.
	if len(strings.TrimSpace(string(body))) == 0 {
		return merxListResponse{}, nil
	}
	var parsed merxListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return merxListResponse{}, err
	}
	return parsed, nil
}

// getObject fetches one resource. An empty 2xx body leaves dest untouched
// and returns false.
func (c *merxClient) getObject(ctx context.Context, path string, dest any) (bool, error) {
	body, err := c.get(ctx, path, nil)
	if err != nil {
		return false, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return false, err
	}
	return true, nil
}

// listAll walks a paginated list endpoint, invoking fn per raw record.
// Pagination stops on the first short page or at the safety cap.
func (c *merxClient) listAll(ctx context.Context, path string, params url.Values, fn func(raw json.RawMessage) error) error {
	for page := 1; page <= maxPages; page++ {
		pageParams := url.Values{}
		for k, vs := range params {
			pageParams[k] = vs
		}
		pageParams.Set("page", strconv.Itoa(page))
		pageParams.Set("per_page", strconv.Itoa(pageSize))

		resp, err := c.getList(ctx, path, pageParams)
		if err != nil {
			return err
		}
		for _, raw := range resp.Results {
			if err := fn(raw); err != nil {
				return err
			}
		}
		if len(resp.Results) < pageSize {
			return nil
		}
	}
	return nil
}

// FetchInventoryLevels pulls the current on-hand quantity per item.
// Implements analysis.InventoryLevels.
func (c *merxClient) FetchInventoryLevels(ctx context.Context) (map[string]int, error) {
	levels := map[string]int{}
	params := url.Values{}
	params.Set("group_by", "item")
	err := c.listAll(ctx, "/v1/inventory/levels", params, func(raw json.RawMessage) error {
		var level merxInventoryLevel
		if err := json.Unmarshal(raw, &level); err != nil {
			return err
		}
		if strings.TrimSpace(level.ItemId) == "" {
			return nil
		}
		levels[level.ItemId] += level.QtyOnHand
		return nil
	})
	if err != nil {
		return nil, err
	}
	return levels, nil
}
