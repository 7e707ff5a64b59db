// Package pvlive fetches the half-hourly live generation series used as the
// rescaling reference, and maintains its local CSV cache.
//
// The upstream API serves column-major JSON: a meta array of column names
// and a data array of rows. Long windows are fetched in chunks and merged
// keep-last on the settlement period end, so a refetch over an overlapping
// range replaces stale rows.
package pvlive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/openclimatefix/uk-pv-backtest/internal/domain/model"
	"github.com/openclimatefix/uk-pv-backtest/pkg/logger"
	"github.com/openclimatefix/uk-pv-backtest/pkg/metrics"
)

// Defaults for client operations.
const (
	// DefaultBaseURL is the public PVLive v4 endpoint.
	DefaultBaseURL = "https://api0.solar.sheffield.ac.uk/pvlive/api/v4"

	// DefaultEntity addresses GSP-level series; id 0 is the national
	// aggregate.
	DefaultEntity = "gsp"

	// NationalID is the entity id of the national aggregate.
	NationalID = 0

	defaultTimeout = 30 * time.Second
	defaultChunk   = 30 * 24 * time.Hour

	// interval is the settlement period length; period start is derived
	// from the API's end-of-period timestamp.
	interval = 30 * time.Minute

	extraFields = "installedcapacity_mwp,capacity_mwp"
)

// Client talks to the PVLive API.
type Client struct {
	baseURL  string
	entity   string
	entityID int
	chunk    time.Duration
	padStart bool
	client   *http.Client
	logger   logger.Logger
}

// NewClient creates a PVLive client with configuration options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		entity:   DefaultEntity,
		entityID: NationalID,
		chunk:    defaultChunk,
		client:   &http.Client{Timeout: defaultTimeout},
		logger:   logger.Get().Named("pvlive"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// apiResponse is the column-major body the API answers with.
type apiResponse struct {
	Data [][]any  `json:"data"`
	Meta []string `json:"meta"`
}

// Between fetches the reference series covering [start, end], chunked to
// stay inside the API's range limit. Rows come back sorted by period end
// with one row per period.
func (c *Client) Between(ctx context.Context, start, end time.Time) ([]model.ReferenceRow, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: start %s is not before end %s",
			ErrBadRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	start, end = start.UTC(), end.UTC()

	byEnd := make(map[int64]model.ReferenceRow)
	for from := start; from.Before(end); from = from.Add(c.chunk) {
		to := from.Add(c.chunk)
		if to.After(end) {
			to = end
		}
		rows, err := c.fetch(ctx, from, to)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			byEnd[row.EndTime.Unix()] = row
		}
	}

	out := make([]model.ReferenceRow, 0, len(byEnd))
	for _, row := range byEnd {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EndTime.Before(out[j].EndTime)
	})

	if c.padStart {
		out = c.padStartRow(ctx, out, start)
	}
	return out, nil
}

// fetch retrieves one chunk.
func (c *Client) fetch(ctx context.Context, from, to time.Time) ([]model.ReferenceRow, error) {
	query := url.Values{}
	query.Set("start", from.Format(time.RFC3339))
	query.Set("end", to.Format(time.RFC3339))
	query.Set("data_format", "json")
	query.Set("extra_fields", extraFields)
	endpoint := fmt.Sprintf("%s/%s/%d?%s", c.baseURL, c.entity, c.entityID, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Error(ctx, "failed to close response body", logger.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrRequestFailed, resp.StatusCode, string(body))
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	rows, err := decodeRows(payload)
	if err != nil {
		return nil, err
	}
	metrics.RecordPVLiveFetch(len(rows))
	return rows, nil
}

// decodeRows turns the column-major payload into reference rows.
func decodeRows(payload apiResponse) ([]model.ReferenceRow, error) {
	cols := make(map[string]int, len(payload.Meta))
	for i, name := range payload.Meta {
		cols[name] = i
	}
	for _, name := range []string{"datetime_gmt", "generation_mw", "capacity_mwp", "installedcapacity_mwp"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: meta %v lacks %s", ErrBadPayload, payload.Meta, name)
		}
	}

	rows := make([]model.ReferenceRow, 0, len(payload.Data))
	for i, record := range payload.Data {
		if len(record) != len(payload.Meta) {
			return nil, fmt.Errorf("%w: row %d has %d values for %d columns",
				ErrBadPayload, i, len(record), len(payload.Meta))
		}
		endRaw, ok := record[cols["datetime_gmt"]].(string)
		if !ok {
			return nil, fmt.Errorf("%w: row %d datetime_gmt is not a string", ErrBadPayload, i)
		}
		end, err := parseAPITime(endRaw)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrBadPayload, i, err)
		}
		rows = append(rows, model.ReferenceRow{
			StartTime:         end.Add(-interval),
			EndTime:           end,
			GenerationMW:      toFloat(record[cols["generation_mw"]]),
			CapacityMW:        toFloat(record[cols["capacity_mwp"]]),
			InstalledCapacity: toFloat(record[cols["installedcapacity_mwp"]]),
		})
	}
	return rows, nil
}

// parseAPITime accepts the API's timestamps with or without a zone suffix;
// bare timestamps are GMT.
func parseAPITime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q", s)
	}
	return t.UTC(), nil
}

// toFloat reads a JSON number, mapping null to zero.
func toFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

// padStartRow copies the first settlement period backwards when the series
// starts one period late, keeping backtests aligned on their window start.
func (c *Client) padStartRow(ctx context.Context, rows []model.ReferenceRow, start time.Time) []model.ReferenceRow {
	for _, row := range rows {
		if row.EndTime.Equal(start) {
			return rows
		}
	}
	for _, row := range rows {
		if row.EndTime.Equal(start.Add(interval)) {
			pad := row
			pad.EndTime = start
			pad.StartTime = start.Add(-interval)
			return append([]model.ReferenceRow{pad}, rows...)
		}
	}
	c.logger.Warn(ctx, "could not pad series start",
		logger.String("start", start.Format(time.RFC3339)))
	return rows
}
