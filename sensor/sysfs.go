// Package sensor reads the environmental sensors exposed by the Linux kernel
// drivers: a barometer through IIO and a humidity sensor through hwmon.
package sensor

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"aionclock/config"
	"aionclock/telemetry"
)

// ErrNotDetected is returned by Open when a configured sensor is absent.
var ErrNotDetected = errors.New("sensor not detected")

// Sysfs reads pressure from an IIO device and temperature plus humidity from
// a hwmon device.
type Sysfs struct {
	pressureDir string
	humidityDir string
	seaLevel    float64
}

// Open locates both devices by driver name.
func Open(cfg config.SensorConfig) (*Sysfs, error) {
	p, err := findByName(cfg.IIORoot, cfg.PressureDevice)
	if err != nil {
		return nil, err
	}
	h, err := findByName(cfg.HwmonRoot, cfg.HumidityDevice)
	if err != nil {
		return nil, err
	}
	sea := cfg.SeaLevelPressure
	if sea <= 0 {
		sea = 1013.25
	}
	return &Sysfs{pressureDir: p, humidityDir: h, seaLevel: sea}, nil
}

func findByName(root, name string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", name, ErrNotDetected, err)
	}
	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		data, err := os.ReadFile(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(data)) == name {
			return dir, nil
		}
	}
	return "", fmt.Errorf("%s under %s: %w", name, root, ErrNotDetected)
}

// Read samples both devices.
func (s *Sysfs) Read() (telemetry.Reading, error) {
	kpa, err := readFloat(filepath.Join(s.pressureDir, "in_pressure_input"))
	if err != nil {
		return telemetry.Reading{}, err
	}
	milliC, err := readFloat(filepath.Join(s.humidityDir, "temp1_input"))
	if err != nil {
		return telemetry.Reading{}, err
	}
	milliRH, err := readFloat(filepath.Join(s.humidityDir, "humidity1_input"))
	if err != nil {
		return telemetry.Reading{}, err
	}
	hpa := kpa * 10
	return telemetry.Reading{
		Temperature: milliC / 1000,
		Humidity:    milliRH / 1000,
		Pressure:    hpa,
		Altitude:    Altitude(hpa, s.seaLevel),
	}, nil
}

// Altitude converts pressure to metres above the reference sea-level pressure
// using the international barometric formula.
func Altitude(hpa, seaLevel float64) float64 {
	return 44330 * (1 - math.Pow(hpa/seaLevel, 0.1903))
}

func readFloat(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}
