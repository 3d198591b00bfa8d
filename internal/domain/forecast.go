package domain

import "time"

// HourlySample is one forecast tick.
type HourlySample struct {
	Time                   time.Time `json:"time"`
	RainProbabilityPercent float64   `json:"rainProbabilityPercent"` // 0–100
	WindSpeedKph           float64   `json:"windSpeedKph"`
	TemperatureC           float64   `json:"temperatureC"`
}

// SprayState is the headline recommendation.
type SprayState string

const (
	SprayGood       SprayState = "good"
	SprayCaution    SprayState = "caution"
	SprayDoNotSpray SprayState = "do_not_spray"
)

// ReasonCode explains a SprayState.
type ReasonCode string

const (
	ReasonGood    ReasonCode = "good"
	ReasonRain    ReasonCode = "rain"
	ReasonWind    ReasonCode = "wind"
	ReasonCaution ReasonCode = "caution"
)

// SprayAdvisory is the classifier output. It is derived from the current
// forecast on every refresh and never stored.
type SprayAdvisory struct {
	State               SprayState `json:"state"`
	Reason              ReasonCode `json:"reasonCode"`
	MaxRainProbability  float64    `json:"maxRainProbability"`
	MaxWindSpeed        float64    `json:"maxWindSpeed"`
	NextGoodWindowStart *time.Time `json:"nextGoodWindowStart"`
	NextGoodWindowEnd   *time.Time `json:"nextGoodWindowEnd"`
}
