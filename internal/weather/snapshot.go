package weather

import "github.com/lox/vantaaweather/internal/fmi"

// Feed parameter identifiers.
const (
	ParamTemperature = "t2m"
	ParamWindSpeed   = "ws_10min"
	ParamWawa        = "wawa"
)

// DefaultStation is the label reported in every snapshot.
const DefaultStation = "Vantaa"

// Snapshot is the public observation shape. Nil fields encode as null.
type Snapshot struct {
	Temperature *float64 `json:"temperature"`
	FeelsLike   *float64 `json:"feels_like"`
	WindSpeed   *float64 `json:"wind_speed"`
	Condition   string   `json:"condition"`
	ConditionFi string   `json:"condition_fi"`
	Station     string   `json:"station"`
	WawaCode    *int     `json:"wawa_code"`
	Timestamp   *string  `json:"timestamp"`
}

// Clone returns a copy that shares no pointers with s.
func (s Snapshot) Clone() Snapshot {
	s.Temperature = clonePtr(s.Temperature)
	s.FeelsLike = clonePtr(s.FeelsLike)
	s.WindSpeed = clonePtr(s.WindSpeed)
	s.WawaCode = clonePtr(s.WawaCode)
	s.Timestamp = clonePtr(s.Timestamp)
	return s
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// BuildSnapshot assembles a snapshot from parsed feed readings. Missing
// parameters degrade to nil fields and an "N/A" condition.
func BuildSnapshot(station string, parsed map[string]fmi.Point) Snapshot {
	temp := value(parsed, ParamTemperature)
	wind := value(parsed, ParamWindSpeed)
	wawa := value(parsed, ParamWawa)

	cond := ClassifyValue(wawa)

	snap := Snapshot{
		Temperature: temp,
		FeelsLike:   WindChill(temp, wind),
		WindSpeed:   wind,
		Condition:   cond.English,
		ConditionFi: cond.Finnish,
		Station:     station,
		WawaCode:    truncate(wawa),
	}

	if p, ok := parsed[ParamTemperature]; ok && p.Time != "" {
		snap.Timestamp = &p.Time
	} else if p, ok := parsed[ParamWindSpeed]; ok && p.Time != "" {
		snap.Timestamp = &p.Time
	}

	return snap
}

func value(parsed map[string]fmi.Point, param string) *float64 {
	p, ok := parsed[param]
	if !ok {
		return nil
	}
	v := p.Value
	return &v
}
