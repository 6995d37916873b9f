// Package places adapts the external Places provider: HTTP calls with
// per-method timeouts, retry with a fixed backoff vector, a typed failure
// taxonomy, and normalization of provider payloads into domain result items.
package places

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shacharon/tavola/pkg/config"
	"github.com/shacharon/tavola/pkg/models"
)

// Provider is the outbound Places contract the pipeline depends on.
type Provider interface {
	TextSearch(ctx context.Context, in TextSearchInput) (*SearchPage, error)
	NearbySearch(ctx context.Context, in NearbyInput) (*SearchPage, error)
	FindPlace(ctx context.Context, in FindPlaceInput) (*models.ResultItem, error)
	GeocodeAddress(ctx context.Context, address, region string) (*models.LatLng, error)
}

// TextSearchInput parameterizes a free-text provider search.
type TextSearchInput struct {
	Query     string
	Language  string
	Region    string
	Location  *models.LatLng // bias, optional
	PageToken string
}

// NearbyInput parameterizes a location-anchored search.
type NearbyInput struct {
	Location  models.LatLng
	RadiusM   int
	Keyword   string
	Language  string
	Region    string
	PageToken string
}

// FindPlaceInput parameterizes a single-place lookup.
type FindPlaceInput struct {
	Query    string
	Language string
	Region   string
}

// SearchPage is one page of normalized results.
type SearchPage struct {
	Items         []models.ResultItem
	NextPageToken string
}

// HTTPProvider is the production Provider over the vendor HTTP API.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	fetcher fetcher

	textSearchTimeout time.Duration
	nearbyTimeout     time.Duration
	findPlaceTimeout  time.Duration
	geocodeTimeout    time.Duration
}

// NewHTTPProvider builds the provider from configuration.
// doer may be nil, in which case a default client is used.
func NewHTTPProvider(cfg *config.Config, doer httpDoer) *HTTPProvider {
	if doer == nil {
		doer = &http.Client{}
	}
	return &HTTPProvider{
		baseURL: cfg.ProviderBaseURL,
		apiKey:  cfg.ProviderAPIKey,
		fetcher: fetcher{
			doer:         doer,
			dnsPreflight: cfg.ProviderDNSPreflight,
			attempts:     cfg.ProviderRetryAttempts,
			backoff:      cfg.ProviderRetryBackoff,
		},
		textSearchTimeout: cfg.ProviderTextSearchTimeout,
		nearbyTimeout:     cfg.ProviderNearbyTimeout,
		findPlaceTimeout:  cfg.ProviderFindPlaceTimeout,
		geocodeTimeout:    cfg.ProviderGeocodeTimeout,
	}
}

// TextSearch implements Provider.
func (p *HTTPProvider) TextSearch(ctx context.Context, in TextSearchInput) (*SearchPage, error) {
	q := url.Values{}
	q.Set("query", in.Query)
	setCommon(q, in.Language, in.Region, p.apiKey)
	if in.Location != nil {
		q.Set("location", formatLatLng(*in.Location))
	}
	if in.PageToken != "" {
		q.Set("pagetoken", in.PageToken)
	}

	body, err := p.fetcher.fetch(ctx, "textsearch", p.baseURL+"/textsearch?"+q.Encode(), p.textSearchTimeout)
	if err != nil {
		return nil, err
	}
	return normalizeSearchPage(body)
}

// NearbySearch implements Provider.
func (p *HTTPProvider) NearbySearch(ctx context.Context, in NearbyInput) (*SearchPage, error) {
	q := url.Values{}
	q.Set("location", formatLatLng(in.Location))
	q.Set("radius", strconv.Itoa(in.RadiusM))
	setCommon(q, in.Language, in.Region, p.apiKey)
	if in.Keyword != "" {
		q.Set("keyword", in.Keyword)
	}
	if in.PageToken != "" {
		q.Set("pagetoken", in.PageToken)
	}

	body, err := p.fetcher.fetch(ctx, "nearbysearch", p.baseURL+"/nearbysearch?"+q.Encode(), p.nearbyTimeout)
	if err != nil {
		return nil, err
	}
	return normalizeSearchPage(body)
}

// FindPlace implements Provider.
func (p *HTTPProvider) FindPlace(ctx context.Context, in FindPlaceInput) (*models.ResultItem, error) {
	q := url.Values{}
	q.Set("input", in.Query)
	setCommon(q, in.Language, in.Region, p.apiKey)

	body, err := p.fetcher.fetch(ctx, "findplace", p.baseURL+"/findplace?"+q.Encode(), p.findPlaceTimeout)
	if err != nil {
		return nil, err
	}
	page, err := normalizeSearchPage(body)
	if err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		return nil, nil
	}
	return &page.Items[0], nil
}

// GeocodeAddress implements Provider.
func (p *HTTPProvider) GeocodeAddress(ctx context.Context, address, region string) (*models.LatLng, error) {
	q := url.Values{}
	q.Set("address", address)
	setCommon(q, "", region, p.apiKey)

	body, err := p.fetcher.fetch(ctx, "geocode", p.baseURL+"/geocode?"+q.Encode(), p.geocodeTimeout)
	if err != nil {
		return nil, err
	}
	return normalizeGeocode(body)
}

func setCommon(q url.Values, language, region, apiKey string) {
	if language != "" {
		q.Set("language", language)
	}
	if region != "" {
		q.Set("region", region)
	}
	if apiKey != "" {
		q.Set("key", apiKey)
	}
}

func formatLatLng(l models.LatLng) string {
	return fmt.Sprintf("%.6f,%.6f", l.Lat, l.Lng)
}
