package domain

import (
	"fmt"
	"time"
)

// Spray thresholds. Rain is a probability in percent, wind a speed in km/h.
// A value equal to a threshold trips it.
const (
	RainStopThreshold    = 40.0
	WindStopThreshold    = 18.0
	RainCautionThreshold = 20.0
	WindCautionThreshold = 12.0
)

// NearTermHours is how many leading samples callers pass to the classifier.
const NearTermHours = 12

// ClassifySprayWindow maps an ordered forecast to a spray advisory. It has no
// hidden state: the same samples always produce the same advisory.
func ClassifySprayWindow(samples []HourlySample) SprayAdvisory {
	adv := SprayAdvisory{State: SprayGood, Reason: ReasonGood}
	if len(samples) == 0 {
		return adv
	}

	var anyRainStop, anyWindStop, anyCaution bool
	for i, s := range samples {
		if i == 0 || s.RainProbabilityPercent > adv.MaxRainProbability {
			adv.MaxRainProbability = s.RainProbabilityPercent
		}
		if i == 0 || s.WindSpeedKph > adv.MaxWindSpeed {
			adv.MaxWindSpeed = s.WindSpeedKph
		}
		if s.RainProbabilityPercent >= RainStopThreshold {
			anyRainStop = true
		}
		if s.WindSpeedKph >= WindStopThreshold {
			anyWindStop = true
		}
		if s.RainProbabilityPercent >= RainCautionThreshold || s.WindSpeedKph >= WindCautionThreshold {
			anyCaution = true
		}
	}

	// Rain is evaluated before wind, so its reason wins when both trip.
	switch {
	case anyRainStop:
		adv.State, adv.Reason = SprayDoNotSpray, ReasonRain
	case anyWindStop:
		adv.State, adv.Reason = SprayDoNotSpray, ReasonWind
	case anyCaution:
		adv.State, adv.Reason = SprayCaution, ReasonCaution
	}

	if start, end, ok := firstGoodRun(samples); ok {
		s, e := samples[start].Time, samples[end].Time
		adv.NextGoodWindowStart = &s
		adv.NextGoodWindowEnd = &e
	}
	return adv
}

// IsGoodSprayHour reports whether a single sample is inside spraying limits.
func IsGoodSprayHour(s HourlySample) bool {
	return s.RainProbabilityPercent < RainCautionThreshold && s.WindSpeedKph < WindCautionThreshold
}

// firstGoodRun returns the index bounds of the first contiguous run of good
// samples.
func firstGoodRun(samples []HourlySample) (start, end int, ok bool) {
	start = -1
	for i, s := range samples {
		if !IsGoodSprayHour(s) {
			if start >= 0 {
				return start, i - 1, true
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		return start, len(samples) - 1, true
	}
	return 0, 0, false
}

// Recommendation is the user-facing reading of an advisory.
type Recommendation struct {
	Headline string `json:"headline"`
	Reason   string `json:"reason"`
	Window   string `json:"window"`
}

// Recommend renders an advisory as English text. Window times are shown in loc.
func Recommend(adv SprayAdvisory, loc *time.Location) Recommendation {
	var rec Recommendation
	switch adv.State {
	case SprayDoNotSpray:
		rec.Headline = "Don't spray"
	case SprayCaution:
		rec.Headline = "Spray with caution"
	default:
		rec.Headline = "Good to spray"
	}

	switch adv.Reason {
	case ReasonRain:
		rec.Reason = fmt.Sprintf("Rain likely in the coming hours (up to %.0f%% chance)", adv.MaxRainProbability)
	case ReasonWind:
		rec.Reason = fmt.Sprintf("Wind too strong for spraying (up to %.0f km/h)", adv.MaxWindSpeed)
	case ReasonCaution:
		rec.Reason = fmt.Sprintf("Marginal conditions: rain up to %.0f%%, wind up to %.0f km/h", adv.MaxRainProbability, adv.MaxWindSpeed)
	default:
		rec.Reason = "Low chance of rain and light wind"
	}

	if adv.NextGoodWindowStart == nil || adv.NextGoodWindowEnd == nil {
		rec.Window = "No safe spray window in the forecast"
		return rec
	}
	start := adv.NextGoodWindowStart.In(loc)
	end := adv.NextGoodWindowEnd.In(loc)
	if start.Format(CivilDateLayout) == end.Format(CivilDateLayout) {
		rec.Window = fmt.Sprintf("Next safe window %s %s–%s", start.Format("Mon 2 Jan"), start.Format("15:04"), end.Format("15:04"))
	} else {
		rec.Window = fmt.Sprintf("Next safe window %s – %s", start.Format("Mon 2 Jan 15:04"), end.Format("Mon 2 Jan 15:04"))
	}
	return rec
}
