// Package routing wraps the Google Maps Directions API behind a small
// interface so services can be tested without network access.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"food-dispatch/internal/models"
)

// Provider is the contract for an external directions/routing service.
type Provider interface {
	// GetRoute computes a driving route between two coordinates. The returned
	// route carries polyline, steps, and traffic-aware totals but no IDs;
	// the caller owns persistence.
	GetRoute(ctx context.Context, originLat, originLng, destLat, destLng float64) (*models.Route, error)
	// GetETA returns the traffic-aware travel time in seconds between two coordinates.
	GetETA(ctx context.Context, originLat, originLng, destLat, destLng float64) (int, error)
}

// GoogleProvider implements Provider using the Directions API.
type GoogleProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGoogleProvider creates a provider with the given API key.
func NewGoogleProvider(apiKey string) *GoogleProvider {
	return &GoogleProvider{
		apiKey:     apiKey,
		baseURL:    "https://maps.googleapis.com/maps/api/directions/json",
		httpClient: &http.Client{},
	}
}

// googleDirectionsResponse is a minimal structure of the parts of the
// Directions API response that we care about.
type googleDirectionsResponse struct {
	Status string `json:"status"`
	Routes []struct {
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
		Legs []struct {
			Distance struct {
				Value int `json:"value"`
			} `json:"distance"`
			Duration struct {
				Value int `json:"value"`
			} `json:"duration"`
			DurationInTraffic struct {
				Value int `json:"value"`
			} `json:"duration_in_traffic"`
			Steps []struct {
				EndLocation struct {
					Lat float64 `json:"lat"`
					Lng float64 `json:"lng"`
				} `json:"end_location"`
				Distance struct {
					Value int `json:"value"`
				} `json:"distance"`
				Duration struct {
					Value int `json:"value"`
				} `json:"duration"`
				HTMLInstructions string `json:"html_instructions"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

func (p *GoogleProvider) fetchDirections(ctx context.Context, originLat, originLng, destLat, destLng float64) (*googleDirectionsResponse, error) {
	params := url.Values{}
	params.Set("origin", fmt.Sprintf("%f,%f", originLat, originLng))
	params.Set("destination", fmt.Sprintf("%f,%f", destLat, destLng))
	params.Set("departure_time", "now")
	params.Set("key", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("routing.fetchDirections build request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("routing.fetchDirections call directions: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("routing.fetchDirections read body: %w", err)
	}

	var directions googleDirectionsResponse
	if err := json.Unmarshal(body, &directions); err != nil {
		return nil, fmt.Errorf("routing.fetchDirections unmarshal: %w", err)
	}
	if directions.Status != "OK" || len(directions.Routes) == 0 || len(directions.Routes[0].Legs) == 0 {
		return nil, fmt.Errorf("routing.fetchDirections: no route returned (status %s)", directions.Status)
	}
	return &directions, nil
}

// GetRoute computes a route and flattens the first leg's steps.
func (p *GoogleProvider) GetRoute(ctx context.Context, originLat, originLng, destLat, destLng float64) (*models.Route, error) {
	directions, err := p.fetchDirections(ctx, originLat, originLng, destLat, destLng)
	if err != nil {
		return nil, err
	}

	leg := directions.Routes[0].Legs[0]
	route := &models.Route{
		Polyline:        directions.Routes[0].OverviewPolyline.Points,
		DistanceMeters:  leg.Distance.Value,
		DurationSeconds: leg.Duration.Value,
	}
	if leg.DurationInTraffic.Value > 0 {
		route.DurationSeconds = leg.DurationInTraffic.Value
	}
	for _, step := range leg.Steps {
		route.Steps = append(route.Steps, models.RouteStep{
			EndLatitude:     step.EndLocation.Lat,
			EndLongitude:    step.EndLocation.Lng,
			DistanceMeters:  step.Distance.Value,
			DurationSeconds: step.Duration.Value,
			Instruction:     step.HTMLInstructions,
		})
	}
	return route, nil
}

// GetETA returns the traffic-aware duration of the best route in seconds.
func (p *GoogleProvider) GetETA(ctx context.Context, originLat, originLng, destLat, destLng float64) (int, error) {
	directions, err := p.fetchDirections(ctx, originLat, originLng, destLat, destLng)
	if err != nil {
		return 0, err
	}
	leg := directions.Routes[0].Legs[0]
	if leg.DurationInTraffic.Value > 0 {
		return leg.DurationInTraffic.Value, nil
	}
	return leg.Duration.Value, nil
}
