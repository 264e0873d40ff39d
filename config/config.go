package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level daemon configuration. It is read once at boot and
// describes the hardware and endpoints; the device-facing settings mutated over
// the control API live in the settings document instead.
type Config struct {
	mu sync.Mutex `yaml:"-"`

	Device       DeviceConfig       `yaml:"device"`
	Storage      StorageConfig      `yaml:"storage"`
	Web          WebConfig          `yaml:"web"`
	AccessPoint  AccessPointConfig  `yaml:"access_point"`
	WiFi         WiFiConfig         `yaml:"wifi"`
	Registration RegistrationConfig `yaml:"registration"`
	Messaging    MessagingConfig    `yaml:"messaging"`
	Button       ButtonConfig       `yaml:"button"`
	Timing       TimingConfig       `yaml:"timing"`
	Sensor       SensorConfig       `yaml:"sensor"`
}

// DeviceConfig holds the static identity announced to the cloud.
type DeviceConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Version string `yaml:"version"`
	// Serial overrides the hardware-derived serial. Leave empty in production.
	Serial string `yaml:"serial"`
}

// StorageConfig locates the persisted state.
type StorageConfig struct {
	CredentialsPath string `yaml:"credentials_path"`
	SettingsPath    string `yaml:"settings_path"`
	JournalPath     string `yaml:"journal_path"`
}

// WebConfig defines the HTTP listener shared by provisioning and the control API.
type WebConfig struct {
	Addr string `yaml:"addr"`
}

// AccessPointConfig is the temporary network brought up for provisioning.
type AccessPointConfig struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
}

// WiFiConfig names the wireless interface managed through NetworkManager.
type WiFiConfig struct {
	Interface string `yaml:"interface"`
}

// RegistrationConfig defines the cloud registration call and its failure policy.
type RegistrationConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	Policy  string        `yaml:"policy"` // "terminal" or "backoff"
	// Backoff policy bounds; ignored for "terminal".
	MaxAttempts int           `yaml:"max_attempts"`
	MinBackoff  time.Duration `yaml:"min_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

// MessagingConfig defines the telemetry broker.
type MessagingConfig struct {
	Backend          string        `yaml:"backend"` // "mqtt" or "kafka"
	MQTT             MQTTConfig    `yaml:"mqtt"`
	Kafka            KafkaConfig   `yaml:"kafka"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`
}

// MQTTConfig defines MQTT broker settings.
type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	Port           int           `yaml:"port"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// KafkaConfig defines Kafka broker settings.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ButtonConfig locates the reset button on the GPIO character device.
type ButtonConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Chip     string        `yaml:"chip"`
	Line     int           `yaml:"line"`
	Inverted bool          `yaml:"inverted"`
	Hold     time.Duration `yaml:"hold"`
	Debounce time.Duration `yaml:"debounce"`
}

// TimingConfig holds the loop and lifecycle delays.
type TimingConfig struct {
	Tick          time.Duration `yaml:"tick"`
	JoinPoll      time.Duration `yaml:"join_poll"`
	JoinTimeout   time.Duration `yaml:"join_timeout"`
	ConnectReboot time.Duration `yaml:"connect_reboot"`
	ResetReboot   time.Duration `yaml:"reset_reboot"`
}

// SensorConfig points the sensor driver at the sysfs device trees. The
// barometer is an IIO device, the humidity sensor a hwmon device.
type SensorConfig struct {
	IIORoot          string  `yaml:"iio_root"`
	HwmonRoot        string  `yaml:"hwmon_root"`
	PressureDevice   string  `yaml:"pressure_device"`
	HumidityDevice   string  `yaml:"humidity_device"`
	SeaLevelPressure float64 `yaml:"sea_level_pressure"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:    "Aion 2",
			Type:    "Sensor Clock",
			Version: "1.0",
		},
		Storage: StorageConfig{
			CredentialsPath: "/var/lib/aionclock/eeprom.bin",
			SettingsPath:    "/var/lib/aionclock/config.json",
			JournalPath:     "/var/lib/aionclock/journal.db",
		},
		Web: WebConfig{
			Addr: ":80",
		},
		AccessPoint: AccessPointConfig{
			SSID:     "DEVICE",
			Password: "12345678",
		},
		WiFi: WiFiConfig{
			Interface: "wlan0",
		},
		Registration: RegistrationConfig{
			URL:         "http://cloud.vecode.net/api/devices/register",
			Timeout:     15 * time.Second,
			Policy:      "terminal",
			MaxAttempts: 5,
			MinBackoff:  5 * time.Second,
			MaxBackoff:  5 * time.Minute,
		},
		Messaging: MessagingConfig{
			Backend: "mqtt",
			MQTT: MQTTConfig{
				Broker:         "cloud.vecode.net",
				Port:           1883,
				ConnectTimeout: 5 * time.Second,
			},
			Kafka: KafkaConfig{
				WriteTimeout: 2 * time.Second,
			},
			ReconnectBackoff: 30 * time.Second,
		},
		Button: ButtonConfig{
			Enabled:  true,
			Chip:     "gpiochip0",
			Line:     2,
			Inverted: true,
			Hold:     5 * time.Second,
			Debounce: 50 * time.Millisecond,
		},
		Timing: TimingConfig{
			Tick:          10 * time.Millisecond,
			JoinPoll:      500 * time.Millisecond,
			JoinTimeout:   2 * time.Minute,
			ConnectReboot: time.Second,
			ResetReboot:   100 * time.Millisecond,
		},
		Sensor: SensorConfig{
			IIORoot:          "/sys/bus/iio/devices",
			HwmonRoot:        "/sys/class/hwmon",
			PressureDevice:   "bmp280",
			HumidityDevice:   "aht10",
			SeaLevelPressure: 1013.25,
		},
	}
}

// Load reads a YAML config file. If the file doesn't exist, defaults are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
