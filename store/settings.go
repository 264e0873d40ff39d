package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Settings is the device-facing configuration record. JSON names match the
// document the companion app reads back through the control API.
type Settings struct {
	TimeOffset     int    `json:"timeOffset"`
	Brightness     int    `json:"brightness"`
	UpdateInterval int    `json:"updateInterval"`
	APIKey         string `json:"apiKey"`
	APIToken       string `json:"apiToken"`
}

// DefaultSettings returns the record used when nothing valid is persisted.
func DefaultSettings() Settings {
	return Settings{
		TimeOffset:     0,
		Brightness:     8,
		UpdateInterval: 60000,
		APIKey:         "",
		APIToken:       "",
	}
}

// HasBrokerCredentials reports whether both broker credentials are set.
func (s Settings) HasBrokerCredentials() bool {
	return s.APIKey != "" && s.APIToken != ""
}

var ErrSettingsDocument = errors.New("settings document is not a JSON object")

// LoadSettings reads the document at path. A missing or unparsable document
// yields DefaultSettings with a warning; a field that is absent or of the wrong
// type falls back to its own default. It never fails.
func LoadSettings(path string) Settings {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("settings: read %s: %v (using defaults)", path, err)
		return s
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Printf("settings: parse %s: %v (using defaults)", path, err)
		return s
	}
	intField(doc, "timeOffset", &s.TimeOffset)
	intField(doc, "brightness", &s.Brightness)
	intField(doc, "updateInterval", &s.UpdateInterval)
	stringField(doc, "apiKey", &s.APIKey)
	stringField(doc, "apiToken", &s.APIToken)
	if s.UpdateInterval <= 0 {
		s.UpdateInterval = DefaultSettings().UpdateInterval
	}
	return s
}

func intField(doc map[string]json.RawMessage, key string, dst *int) {
	raw, ok := doc[key]
	if !ok {
		return
	}
	var v int
	if err := json.Unmarshal(raw, &v); err == nil {
		*dst = v
	}
}

func stringField(doc map[string]json.RawMessage, key string, dst *string) {
	raw, ok := doc[key]
	if !ok {
		return
	}
	var v string
	if err := json.Unmarshal(raw, &v); err == nil {
		*dst = v
	}
}

// SaveSettings writes the full record, replacing any prior content.
func SaveSettings(path string, s Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return fmt.Errorf("create settings file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}

// ReadSettingsDocument returns the persisted document verbatim, as served by
// the control API. It fails when the file is missing or not a JSON object.
func ReadSettingsDocument(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSettingsDocument, err)
	}
	return json.RawMessage(data), nil
}
