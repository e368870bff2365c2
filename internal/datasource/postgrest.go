package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/dataplan-genkit"
)

// PostgRESTSource reads tables through a PostgREST endpoint such as the one
// Supabase exposes under /rest/v1.
type PostgRESTSource struct {
	baseURL  string
	apiKey   string
	pageSize int
	client   *http.Client
	logger   *slog.Logger
}

// PostgRESTOption configures a PostgRESTSource.
type PostgRESTOption func(*PostgRESTSource)

// WithPageSize sets the rows requested per page.
func WithPageSize(n int) PostgRESTOption {
	return func(s *PostgRESTSource) {
		s.pageSize = n
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) PostgRESTOption {
	return func(s *PostgRESTSource) {
		s.client = c
	}
}

// WithPostgRESTLogger sets the logger.
func WithPostgRESTLogger(logger *slog.Logger) PostgRESTOption {
	return func(s *PostgRESTSource) {
		s.logger = logger
	}
}

// NewPostgRESTSource creates a source for the project at baseURL.
func NewPostgRESTSource(baseURL, apiKey string, options ...PostgRESTOption) (*PostgRESTSource, error) {
	if baseURL == "" {
		return nil, dataplan.NewConfigurationError("postgrest source requires a base URL", nil)
	}
	if apiKey == "" {
		return nil, dataplan.NewConfigurationError("postgrest source requires an API key", nil)
	}
	s := &PostgRESTSource{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		pageSize: DefaultPageSize,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   slog.Default(),
	}
	for _, option := range options {
		option(s)
	}
	if s.pageSize <= 0 {
		return nil, dataplan.NewConfigurationError("page size must be positive", nil)
	}
	s.logger = s.logger.With("component", "postgrest")
	return s, nil
}

// FetchAll implements dataplan.DataSource. Pages are requested with a Range
// header until a short page is returned.
func (s *PostgRESTSource) FetchAll(ctx context.Context, table string) ([]dataplan.Row, error) {
	if err := validIdentifier(table); err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/rest/v1/%s?select=*", s.baseURL, url.PathEscape(table))

	var rows []dataplan.Row
	for start := 0; ; start += s.pageSize {
		page, err := s.fetchPage(ctx, endpoint, start, start+s.pageSize-1)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)
		s.logger.Debug("page fetched", "table", table, "offset", start, "rows", len(page))
		if len(page) < s.pageSize {
			return rows, nil
		}
	}
}

func (s *PostgRESTSource) fetchPage(ctx context.Context, endpoint string, from, to int) ([]dataplan.Row, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Range-Unit", "items")
	req.Header.Set("Range", fmt.Sprintf("%d-%d", from, to))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("postgrest returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var page []dataplan.Row
	if err := dec.Decode(&page); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return page, nil
}
