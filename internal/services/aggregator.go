package services

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/bobby-s-dev/wsenergy/internal/models"
)

// TotalSubtype marks the generation series that totals a production type.
const TotalSubtype = "TOTAL"

// ErrInvalidPayload is wrapped by every error caused by an upstream payload
// that cannot be aggregated.
var ErrInvalidPayload = errors.New("invalid upstream payload")

var (
	ErrNoTemperatureReadings = fmt.Errorf("%w: temperature list is empty", ErrInvalidPayload)
	ErrMissingTemperature    = fmt.Errorf("%w: temperature reading has no main block", ErrInvalidPayload)
	ErrNoConsumptionSeries   = fmt.Errorf("%w: short_term is empty", ErrInvalidPayload)
	ErrNoConsumptionValues   = fmt.Errorf("%w: consumption series has no values", ErrInvalidPayload)
	ErrNoProductionValues    = fmt.Errorf("%w: production series has no values", ErrInvalidPayload)
)

// AverageTemperature averages main.temp over every city of the payload and
// formats it with two fractional digits.
func AverageTemperature(payload *models.TemperaturePayload) (*models.AggregatedTemperature, error) {
	if payload == nil || len(payload.List) == 0 {
		return nil, ErrNoTemperatureReadings
	}

	var total float64
	for i, reading := range payload.List {
		if reading.Main == nil {
			return nil, fmt.Errorf("%w (index %d, city %d)", ErrMissingTemperature, i, reading.ID)
		}
		total += reading.Main.Temp
	}

	average := total / float64(len(payload.List))

	return &models.AggregatedTemperature{
		AverageTemperature: strconv.FormatFloat(average, 'f', 2, 64),
	}, nil
}

// InstantConsumption returns the latest value of the first short-term series.
// The payload is not modified.
func InstantConsumption(payload *models.ConsumptionPayload) (*models.AggregatedConsumption, error) {
	if payload == nil || len(payload.ShortTerm) == 0 {
		return nil, ErrNoConsumptionSeries
	}

	latest, ok := lastValue(payload.ShortTerm[0].Values)
	if !ok {
		return nil, fmt.Errorf("%w (type %q)", ErrNoConsumptionValues, payload.ShortTerm[0].Type)
	}

	return &models.AggregatedConsumption{
		ActualConsumption: latest.Value,
	}, nil
}

// InstantProduction collects the latest value of every TOTAL series, in
// upstream order, and sums them. The payload is not modified.
func InstantProduction(payload *models.ProductionPayload) (*models.AggregatedProduction, error) {
	result := &models.AggregatedProduction{
		ProductionPerType: []models.ProductionByType{},
	}
	if payload == nil {
		return result, nil
	}

	for _, series := range payload.GenerationMix {
		if series.ProductionSubtype != TotalSubtype {
			continue
		}

		latest, ok := lastValue(series.Values)
		if !ok {
			return nil, fmt.Errorf("%w (production type %q)", ErrNoProductionValues, series.ProductionType)
		}

		result.ProductionPerType = append(result.ProductionPerType, models.ProductionByType{
			ProductionType: series.ProductionType,
			Value:          latest.Value,
		})
		result.TotalProduction += latest.Value
	}

	return result, nil
}

// Merge flattens the three aggregates into the /getall response.
func Merge(t *models.AggregatedTemperature, c *models.AggregatedConsumption, p *models.AggregatedProduction) *models.Summary {
	return &models.Summary{
		AverageTemperature: t.AverageTemperature,
		ActualConsumption:  c.ActualConsumption,
		TotalProduction:    p.TotalProduction,
		ProductionPerType:  p.ProductionPerType,
	}
}

func lastValue(values []models.TimedValue) (models.TimedValue, bool) {
	if len(values) == 0 {
		return models.TimedValue{}, false
	}
	return values[len(values)-1], true
}
