package weather

import "math"

// WindChill returns the apparent temperature in °C using the North American /
// Environment Canada wind chill index. The index is only defined at or below
// 10 °C with wind above 4.8 km/h; outside that range tempC is returned as-is.
// A nil input returns tempC unchanged.
func WindChill(tempC, windMS *float64) *float64 {
	if tempC == nil || windMS == nil {
		return tempC
	}
	t := *tempC
	w := *windMS * 3.6
	if t > 10 || w <= 4.8 {
		return tempC
	}
	wp := math.Pow(w, 0.16)
	wc := 13.12 + 0.6215*t - 11.37*wp + 0.3965*t*wp
	wc = math.Round(wc*10) / 10
	return &wc
}
