// Package upstream talks to the external route service that computes the
// shortest paths for an incident.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/exp/slog"

	"github.com/atharv3903/routeplay/internal/model"
)

var ErrUpstream = errors.New("upstream: route service failed")

const (
	DefaultIncidentField = "ocurrenceVertex"
	DefaultTimeout       = 30 * time.Second
)

// DefaultAliases are older spellings of the incident vertex field.
var DefaultAliases = []string{"ocourrenceVertex"}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	// IncidentField is the canonical name of the incident vertex field;
	// Aliases are tried in order when it is absent.
	IncidentField string
	Aliases       []string
	Log           *slog.Logger
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		HTTP:          &http.Client{Timeout: DefaultTimeout},
		IncidentField: DefaultIncidentField,
		Aliases:       DefaultAliases,
		Log:           slog.Default(),
	}
}

// Fetch asks the service for a random incident.
func (c *Client) Fetch(ctx context.Context) (model.AccidentRoute, error) {
	return c.get(ctx, c.BaseURL)
}

// FetchByVertex asks the service for the routes through incident vertex v.
func (c *Client) FetchByVertex(ctx context.Context, v int) (model.AccidentRoute, error) {
	return c.get(ctx, fmt.Sprintf("%s/%d", c.BaseURL, v))
}

func (c *Client) get(ctx context.Context, url string) (model.AccidentRoute, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.AccidentRoute{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.AccidentRoute{}, ctxErr
		}
		return model.AccidentRoute{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.AccidentRoute{}, ctxErr
		}
		return model.AccidentRoute{}, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.AccidentRoute{}, fmt.Errorf("%w: %s returned %d", ErrUpstream, url, resp.StatusCode)
	}

	acc, err := Decode(body, c.fields())
	if err != nil {
		return model.AccidentRoute{}, err
	}

	c.logger().Debug("upstream route", "url", url, "status", resp.StatusCode,
		"incident", acc.OccurrenceVertex, "took", time.Since(start))
	return acc, nil
}

func (c *Client) fields() []string {
	field := c.IncidentField
	if field == "" {
		field = DefaultIncidentField
	}
	return append([]string{field}, c.Aliases...)
}

func (c *Client) logger() *slog.Logger {
	if c.Log == nil {
		return slog.Default()
	}
	return c.Log
}

// Decode parses a route service payload. The incident vertex is read from
// the first of fields present in the object; when none is, it falls back to
// the last vertex of the path to the incident, or -1.
func Decode(data []byte, fields []string) (model.AccidentRoute, error) {
	var acc model.AccidentRoute
	if err := json.Unmarshal(data, &acc); err != nil {
		return model.AccidentRoute{}, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.AccidentRoute{}, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}

	for _, name := range fields {
		v, ok := raw[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, &acc.OccurrenceVertex); err != nil {
			return model.AccidentRoute{}, fmt.Errorf("%w: field %s: %v", ErrUpstream, name, err)
		}
		return acc, nil
	}

	if n := len(acc.ToOccurrencePath); n > 0 {
		acc.OccurrenceVertex = acc.ToOccurrencePath[n-1]
	} else {
		acc.OccurrenceVertex = -1
	}
	return acc, nil
}
