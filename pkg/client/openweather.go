package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/bobby-s-dev/wsenergy/internal/models"
	"go.uber.org/zap"
)

type OpenWeatherClient struct {
	*BaseClient
	apiKey  string
	baseURL string
	cityIDs []string
}

func NewOpenWeatherClient(baseURL, apiKey string, cityIDs []string, config ClientConfig, logger *zap.Logger) *OpenWeatherClient {
	baseClient := NewBaseClient("openweather", config, logger)
	return &OpenWeatherClient{
		BaseClient: baseClient,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cityIDs:    cityIDs,
	}
}

// GetGroupTemperatures fetches current conditions for every configured city
// in one call to the grouped-city endpoint.
func (c *OpenWeatherClient) GetGroupTemperatures(ctx context.Context) (*models.TemperaturePayload, error) {
	query := url.Values{}
	query.Set("id", strings.Join(c.cityIDs, ","))
	query.Set("units", "metric")
	query.Set("appid", c.apiKey)

	data, err := c.GetWithRetry(ctx, c.baseURL+"/group?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch grouped temperatures: %w", err)
	}

	var response models.TemperaturePayload
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("%w: grouped temperatures: %w", ErrMalformedResponse, err)
	}

	return &response, nil
}
