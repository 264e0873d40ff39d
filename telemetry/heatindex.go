package telemetry

import "math"

// CelsiusToFahrenheit converts °C to °F.
func CelsiusToFahrenheit(c float64) float64 { return c*1.8 + 32 }

// FahrenheitToCelsius converts °F to °C.
func FahrenheitToCelsius(f float64) float64 { return (f - 32) * 5 / 9 }

// HeatIndex returns the NOAA heat index in °C for a temperature in °C and a
// relative humidity in percent.
func HeatIndex(tempC, humidity float64) float64 {
	return FahrenheitToCelsius(HeatIndexF(CelsiusToFahrenheit(tempC), humidity))
}

// HeatIndexF is the Rothfusz regression with the NOAA adjustments, in °F. The
// simple estimate is used unless it exceeds 79°F.
func HeatIndexF(t, rh float64) float64 {
	hi := 0.5 * (t + 61.0 + ((t - 68.0) * 1.2) + (rh * 0.094))
	if hi <= 79 {
		return hi
	}

	hi = -42.379 + 2.04901523*t + 10.14333127*rh +
		-0.22475541*t*rh +
		-0.00683783*t*t +
		-0.05481717*rh*rh +
		0.00122874*t*t*rh +
		0.00085282*t*rh*rh +
		-0.00000199*t*t*rh*rh

	switch {
	case rh < 13 && t >= 80 && t <= 112:
		hi -= ((13 - rh) * 0.25) * math.Sqrt((17-math.Abs(t-95))*0.05882)
	case rh > 85 && t >= 80 && t <= 87:
		hi += ((rh - 85) * 0.1) * ((87 - t) * 0.2)
	}
	return hi
}
