package tesla

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"tesla-telemetry-backend/internal/logging"
	"tesla-telemetry-backend/internal/metrics"
)

// MaxResponseLength caps the bytes read from one Fleet API response.
const MaxResponseLength = 10 << 20

// Regional Fleet API base URLs.
var RegionBaseURLs = map[string]string{
	"NORTH_AMERICA": "https://fleet-api.prd.na.vn.cloud.tesla.com",
	"EUROPE":        "https://fleet-api.prd.eu.vn.cloud.tesla.com",
	"CHINA":         "https://fleet-api.prd.cn.vn.cloud.tesla.cn",
}

var domainRE = regexp.MustCompile(`^[A-Za-z0-9-.]+$`)

// Client implements Gateway over HTTP.
type Client struct {
	baseURL    string
	region     string
	userAgent  string
	httpClient *http.Client
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL pins the API host. When empty the host is taken from the token audience.
	BaseURL   string
	Region    string
	UserAgent string
	Timeout   time.Duration
}

// NewClient creates a Fleet API client. A nil httpClient uses a client with cfg.Timeout.
func NewClient(cfg ClientConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		region:     cfg.Region,
		userAgent:  cfg.UserAgent,
		httpClient: httpClient,
	}
}

func (c *Client) regionBaseURL() string {
	if u, ok := RegionBaseURLs[c.region]; ok {
		return u
	}
	return RegionBaseURLs["NORTH_AMERICA"]
}

// BaseURL resolves the API host for token.
func (c *Client) BaseURL(token string) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	if d := domainFromToken(token); d != "" {
		return "https://" + d
	}
	return c.regionBaseURL()
}

// domainFromToken picks a fleet-api audience, preferring the one that matches the
// token's ou_code region. The signature is not checked; the token is only used to route.
func domainFromToken(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	audiences, err := claims.GetAudience()
	if err != nil {
		return ""
	}
	ouCode, _ := claims["ou_code"].(string)
	ouMatch := "." + strings.ToLower(ouCode) + "."

	domain := ""
	for _, aud := range audiences {
		if strings.HasPrefix(aud, "https://auth.tesla.") {
			continue
		}
		d, _ := strings.CutPrefix(aud, "https://")
		d, _ = strings.CutSuffix(d, "/")
		if !domainRE.MatchString(d) || !strings.HasPrefix(d, "fleet-api.") || !validTeslaDomain(d) {
			continue
		}
		domain = d
		if ouCode != "" && strings.Contains(d, ouMatch) {
			return d
		}
	}
	return domain
}

func validTeslaDomain(d string) bool {
	return strings.HasSuffix(d, ".tesla.com") || strings.HasSuffix(d, ".tesla.cn") || strings.HasSuffix(d, ".teslamotors.com")
}

type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    string          `json:"error,omitempty"`
}

// do sends one request and returns the body of the response envelope.
func (c *Client) do(ctx context.Context, method, token, endpoint, path string, query url.Values) ([]byte, error) {
	start := time.Now()
	body, err := c.send(ctx, method, token, path, query)
	metrics.RecordUpstream(endpoint, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("fleet api: decode %s: %w", endpoint, err)
	}
	if len(env.Response) == 0 || bytes.Equal(env.Response, []byte("null")) {
		return nil, fmt.Errorf("fleet api: %s returned an empty response: %s", endpoint, env.Error)
	}
	return env.Response, nil
}

func (c *Client) send(ctx context.Context, method, token, path string, query url.Values) ([]byte, error) {
	target := c.BaseURL(token) + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("error constructing request to %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	logging.Debug().Str("method", method).Str("url", target).Msg("fleet api request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseLength+1))
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	if len(body) > MaxResponseLength {
		return nil, fmt.Errorf("fleet api: response from %s exceeds %d bytes", path, MaxResponseLength)
	}
	logging.Debug().Int("status", resp.StatusCode).Int("bytes", len(body)).Str("url", target).Msg("fleet api response")

	if err := classify(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func classify(status int, body []byte) error {
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusRequestTimeout, http.StatusServiceUnavailable:
		return ErrVehicleUnavailable
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	if bytes.Contains(body, []byte("vehicle is offline")) {
		return ErrVehicleUnavailable
	}
	return &HTTPError{Code: status, Message: strings.TrimSpace(string(body))}
}

func (c *Client) ListVehicles(ctx context.Context, token string) ([]Vehicle, error) {
	body, err := c.do(ctx, http.MethodGet, token, "vehicles", "/api/1/vehicles", nil)
	if err != nil {
		return nil, err
	}
	var vehicles []Vehicle
	if err := json.Unmarshal(body, &vehicles); err != nil {
		return nil, fmt.Errorf("fleet api: decode vehicles: %w", err)
	}
	return vehicles, nil
}

func (c *Client) VehicleData(ctx context.Context, token, id string, endpoints []string) ([]byte, error) {
	if len(endpoints) == 0 {
		endpoints = DefaultVehicleEndpoints
	}
	query := url.Values{"endpoints": {strings.Join(endpoints, ";")}}
	return c.do(ctx, http.MethodGet, token, "vehicle_data", "/api/1/vehicles/"+url.PathEscape(id)+"/vehicle_data", query)
}

func (c *Client) WakeUp(ctx context.Context, token, id string) (*Vehicle, error) {
	body, err := c.do(ctx, http.MethodPost, token, "wake_up", "/api/1/vehicles/"+url.PathEscape(id)+"/wake_up", nil)
	if err != nil {
		return nil, err
	}
	var v Vehicle
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("fleet api: decode wake_up: %w", err)
	}
	return &v, nil
}

// ListEnergySites returns the products that are energy sites.
func (c *Client) ListEnergySites(ctx context.Context, token string) ([]EnergySite, error) {
	body, err := c.do(ctx, http.MethodGet, token, "products", "/api/1/products", nil)
	if err != nil {
		return nil, err
	}
	var products []EnergySite
	if err := json.Unmarshal(body, &products); err != nil {
		return nil, fmt.Errorf("fleet api: decode products: %w", err)
	}
	sites := products[:0]
	for _, p := range products {
		if p.EnergySiteID != 0 {
			sites = append(sites, p)
		}
	}
	return sites, nil
}

func (c *Client) SiteLiveStatus(ctx context.Context, token, siteID string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, token, "live_status", "/api/1/energy_sites/"+url.PathEscape(siteID)+"/live_status", nil)
}
