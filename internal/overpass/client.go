// Package overpass implements the external landmark fetcher: an adapter to
// the upstream Overpass-style geospatial query service.
package overpass

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/baroni200/overpass-landmarks/internal/core/model"
	"github.com/baroni200/overpass-landmarks/internal/core/observability"
)

// FetchedLandmark is the parsed shape of one Overpass "elements[]" entry.
type FetchedLandmark struct {
	OSMType model.OSMType
	OSMID   int64
	Name    string
	Lat     float64
	Lng     float64
	Tags    map[string]string
}

type Client struct {
	httpClient *http.Client
	url        string
	timeout    time.Duration
	retries    int
}

func New(httpClient *http.Client, url string, timeout time.Duration, retries int) *Client {
	return &Client{httpClient: httpClient, url: url, timeout: timeout, retries: retries}
}

// Fetch builds an Overpass QL query for tourism-attraction ways/relations
// within `around:radius,lat,lng`, applies the configured timeout, retries
// transient transport failures only, and parses the response.
func (c *Client) Fetch(ctx context.Context, lat, lng float64, radiusMeters int) ([]FetchedLandmark, error) {
	query := buildQuery(lat, lng, radiusMeters)

	var lastErr error
	attempts := c.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		start := time.Now()
		landmarks, err := c.doFetch(ctx, query)
		if err == nil {
			observability.ObserveExternalFetch("ok", time.Since(start).Seconds())
			return landmarks, nil
		}
		lastErr = err
		if !isTransient(err) {
			observability.ObserveExternalFetch(outcomeFor(err), time.Since(start).Seconds())
			return nil, err
		}
		observability.ObserveExternalFetch("retry", time.Since(start).Seconds())
		if attempt < attempts-1 {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil, model.NewError(model.ErrExternal, "context canceled during retry", ctx.Err())
			}
		}
	}
	return nil, lastErr
}

func (c *Client) doFetch(ctx context.Context, query string) ([]FetchedLandmark, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBufferString("data="+query))
	if err != nil {
		return nil, model.NewError(model.ErrExternal, "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, model.NewError(model.ErrExternal, "request timed out", err)
		}
		return nil, model.NewError(model.ErrExternal, "transport failure", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewError(model.ErrExternal, "read response body", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewError(model.ErrExternal, fmt.Sprintf("upstream returned status %d", resp.StatusCode), nil)
	}

	return parseElements(body)
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type   string         `json:"type"`
	ID     int64          `json:"id"`
	Lat    *float64       `json:"lat"`
	Lon    *float64       `json:"lon"`
	Center *overpassCenter `json:"center"`
	Tags   map[string]any `json:"tags"`
}

type overpassCenter struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func parseElements(body []byte) ([]FetchedLandmark, error) {
	var resp overpassResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, model.NewError(model.ErrExternal, "parse upstream response", err)
	}
	if len(resp.Elements) == 0 {
		return []FetchedLandmark{}, nil
	}

	out := make([]FetchedLandmark, 0, len(resp.Elements))
	for _, el := range resp.Elements {
		osmType, ok := mapOSMType(el.Type)
		if !ok {
			continue
		}

		var lat, lng float64
		switch {
		case el.Center != nil:
			lat, lng = el.Center.Lat, el.Center.Lon
		case el.Lat != nil && el.Lon != nil:
			lat, lng = *el.Lat, *el.Lon
		default:
			continue
		}

		tags := make(map[string]string, len(el.Tags))
		for k, v := range el.Tags {
			tags[k] = stringify(v)
		}

		out = append(out, FetchedLandmark{
			OSMType: osmType,
			OSMID:   el.ID,
			Name:    tags["name"],
			Lat:     lat,
			Lng:     lng,
			Tags:    tags,
		})
	}
	return out, nil
}

func mapOSMType(t string) (model.OSMType, bool) {
	switch t {
	case "way":
		return model.OSMWay, true
	case "relation":
		return model.OSMRelation, true
	case "node":
		return model.OSMNode, true
	default:
		return "", false
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func buildQuery(lat, lng float64, radiusMeters int) string {
	var b strings.Builder
	b.WriteString("[out:json];")
	b.WriteString("(")
	fmt.Fprintf(&b, "way[tourism](around:%d,%f,%f);", radiusMeters, lat, lng)
	fmt.Fprintf(&b, "relation[tourism](around:%d,%f,%f);", radiusMeters, lat, lng)
	b.WriteString(");")
	b.WriteString("out center;")
	return b.String()
}

// isTransient reports whether err is connection-refused, DNS failure, or
// network reset - the transient transport failures worth a retry. A hard
// timeout (the per-call deadline in doFetch) is deliberately excluded: the
// net/http stack wraps it in a *url.Error that also satisfies net.Error, so
// the deadline check must run before any generic net.Error match.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	return false
}

func outcomeFor(err error) string {
	var me *model.Error
	if errors.As(err, &me) {
		return "error_" + string(me.Kind)
	}
	return "error"
}
