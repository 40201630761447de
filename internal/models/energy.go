package models

import (
	"time"
)

// TemperaturePayload is the body of the OpenWeatherMap grouped-city endpoint.
type TemperaturePayload struct {
	Cnt  int           `json:"cnt"`
	List []CityReading `json:"list"`
}

type CityReading struct {
	ID   int       `json:"id"`
	Name string    `json:"name"`
	Main *CityMain `json:"main"`
	Dt   int64     `json:"dt"`
}

type CityMain struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	Pressure  float64 `json:"pressure"`
	Humidity  float64 `json:"humidity"`
}

// ConsumptionPayload is the body of the RTE short-term consumption endpoint.
type ConsumptionPayload struct {
	ShortTerm []ConsumptionSeries `json:"short_term"`
}

type ConsumptionSeries struct {
	Type      string       `json:"type"`
	StartDate string       `json:"start_date"`
	EndDate   string       `json:"end_date"`
	Values    []TimedValue `json:"values"`
}

// ProductionPayload is the body of the RTE actual generation mix endpoint.
type ProductionPayload struct {
	GenerationMix []GenerationSeries `json:"generation_mix_15min_time_scale"`
}

type GenerationSeries struct {
	ProductionType    string       `json:"production_type"`
	ProductionSubtype string       `json:"production_subtype"`
	StartDate         string       `json:"start_date"`
	EndDate           string       `json:"end_date"`
	Values            []TimedValue `json:"values"`
}

// TimedValue is one point of an RTE time series. Series are ordered by
// start date, oldest first.
type TimedValue struct {
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
	UpdatedDate string  `json:"updated_date,omitempty"`
	Value       float64 `json:"value"`
}

type AggregatedTemperature struct {
	AverageTemperature string `json:"average_temperature"`
}

type AggregatedConsumption struct {
	ActualConsumption float64 `json:"actual_consumption"`
}

type ProductionByType struct {
	ProductionType string  `json:"production_type"`
	Value          float64 `json:"value"`
}

type AggregatedProduction struct {
	TotalProduction   float64            `json:"total_production"`
	ProductionPerType []ProductionByType `json:"production_per_type"`
}

// Summary is the flat union of the three aggregates served by /getall.
type Summary struct {
	AverageTemperature string             `json:"average_temperature"`
	ActualConsumption  float64            `json:"actual_consumption"`
	TotalProduction    float64            `json:"total_production"`
	ProductionPerType  []ProductionByType `json:"production_per_type"`
}

// Snapshot wraps an upstream payload with the time it was fetched.
type Snapshot[T any] struct {
	Payload   T         `json:"payload"`
	FetchedAt time.Time `json:"fetched_at"`
}
