package telemetry

import (
	"fmt"
	"strconv"
)

// Metric topic suffixes, published under the device serial.
const (
	MetricTemperature = "temperature"
	MetricHeatIndex   = "heat_index"
	MetricPressure    = "pressure"
	MetricAltitude    = "altitude"
	MetricHumidity    = "humidity"
)

// Reading is one acquisition from the sensor driver.
type Reading struct {
	Temperature float64 // °C
	Humidity    float64 // %RH
	Pressure    float64 // hPa
	Altitude    float64 // m
}

// Sample is the latest derived telemetry held in memory.
type Sample struct {
	Temperature float64 `json:"temp"`
	Pressure    float64 `json:"pressure"`
	Altitude    float64 `json:"altitude"`
	Humidity    float64 `json:"humidity"`
	HeatIndex   float64 `json:"-"`
}

// Sensor acquires environmental readings.
type Sensor interface {
	Read() (Reading, error)
}

// Publisher is the subset of the broker client the pipeline needs.
type Publisher interface {
	IsConnected() bool
	Publish(topic string, payload []byte) error
}

// LogFunc is the logging callback signature.
type LogFunc func(format string, args ...interface{})

// Pipeline samples the sensor, derives the heat index, and publishes each
// metric as its own scalar message.
type Pipeline struct {
	sensor  Sensor
	pub     Publisher
	serial  string
	logFn   LogFunc
	debugFn LogFunc
}

// NewPipeline creates a pipeline publishing under serial. Either log function
// may be nil.
func NewPipeline(sensor Sensor, pub Publisher, serial string, logFn, debugFn LogFunc) *Pipeline {
	if logFn == nil {
		logFn = func(string, ...interface{}) {}
	}
	if debugFn == nil {
		debugFn = func(string, ...interface{}) {}
	}
	return &Pipeline{sensor: sensor, pub: pub, serial: serial, logFn: logFn, debugFn: debugFn}
}

// Acquire reads the sensor and computes the derived metrics.
func (p *Pipeline) Acquire() (Sample, error) {
	r, err := p.sensor.Read()
	if err != nil {
		return Sample{}, fmt.Errorf("read sensor: %w", err)
	}
	s := Sample{
		Temperature: r.Temperature,
		Pressure:    r.Pressure,
		Altitude:    r.Altitude,
		Humidity:    r.Humidity,
		HeatIndex:   HeatIndex(r.Temperature, r.Humidity),
	}
	p.debugFn("telemetry: temp=%.2f heat_index=%.2f pressure=%.2f altitude=%.2f humidity=%.2f",
		s.Temperature, s.HeatIndex, s.Pressure, s.Altitude, s.Humidity)
	return s, nil
}

// Publish sends the five metrics if the broker is connected. Failures are
// logged and otherwise dropped; the next sample publishes afresh. It returns the
// number of messages accepted by the broker.
func (p *Pipeline) Publish(s Sample) int {
	if p.pub == nil || !p.pub.IsConnected() {
		p.debugFn("telemetry: not connected to broker")
		return 0
	}
	sent := 0
	for _, m := range []struct {
		name  string
		value float64
	}{
		{MetricTemperature, s.Temperature},
		{MetricHeatIndex, s.HeatIndex},
		{MetricPressure, s.Pressure},
		{MetricAltitude, s.Altitude},
		{MetricHumidity, s.Humidity},
	} {
		if err := p.pub.Publish(Topic(p.serial, m.name), FormatValue(m.value)); err != nil {
			p.logFn("telemetry: publish %s: %v", m.name, err)
			continue
		}
		sent++
	}
	return sent
}

// Topic namespaces a metric under the device serial.
func Topic(serial, metric string) string {
	return serial + "/" + metric
}

// FormatValue renders a metric as a decimal string with two fractional digits.
func FormatValue(v float64) []byte {
	return strconv.AppendFloat(nil, v, 'f', 2, 64)
}
