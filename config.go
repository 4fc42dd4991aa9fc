/*
File Name:  config.go

Config is the engine's YAML configuration, grounded on the teacher's
Config.go: a user file is read if present and non-empty, otherwise an
embedded default is used. Expanded past the teacher's listen/seed-list
shape with the mesh-specific keys SPEC_FULL.md calls for (transport
toggles, BLE duty-cycle windows, identity rotation policy, RouterSeen
sizing).
*/

package meshcore

import (
	_ "embed" // required for embedding the default config file
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the engine's full runtime configuration.
type Config struct {
	LogFile  string `yaml:"LogFile"`
	LogLevel string `yaml:"LogLevel"` // "debug", "info", "production" (zap.NewProduction)

	Nickname     string `yaml:"Nickname"`
	KeystorePath string `yaml:"KeystorePath"` // empty uses an in-memory keystore

	EnableBLE       bool   `yaml:"EnableBLE"`
	EnableLocalPeer bool   `yaml:"EnableLocalPeer"`
	ControlAPIListen string `yaml:"ControlAPIListen"` // empty disables controlapi
	EnableUPnP      bool   `yaml:"EnableUPnP"`

	BLEDutyCycleActiveSeconds int `yaml:"BLEDutyCycleActiveSeconds"`
	BLEDutyCyclePauseSeconds  int `yaml:"BLEDutyCyclePauseSeconds"`

	IdentityMinRotateMinutes int `yaml:"IdentityMinRotateMinutes"`

	RouterSeenCapacity   int `yaml:"RouterSeenCapacity"`
	RouterSeenTTLSeconds int `yaml:"RouterSeenTTLSeconds"`
}

//go:embed "Config Default.yaml"
var defaultConfig []byte

// LoadConfig reads filename as YAML into cfg, falling back to the embedded
// default when filename does not exist or is empty. The returned status is
// one of the ExitError* constants (ExitSuccess on success).
func LoadConfig(filename string, cfg *Config) (status int, err error) {
	var data []byte

	stats, statErr := os.Stat(filename)
	switch {
	case statErr != nil && os.IsNotExist(statErr):
		data = defaultConfig
	case statErr != nil:
		return ExitErrorConfigAccess, statErr
	case stats.Size() == 0:
		data = defaultConfig
	default:
		if data, err = os.ReadFile(filename); err != nil {
			return ExitErrorConfigRead, err
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return ExitErrorConfigParse, err
	}
	return ExitSuccess, nil
}

// SaveConfig writes cfg back to filename as YAML.
func SaveConfig(filename string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

func (c *Config) bleDutyCycleActive() time.Duration {
	if c.BLEDutyCycleActiveSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.BLEDutyCycleActiveSeconds) * time.Second
}

func (c *Config) bleDutyCyclePause() time.Duration {
	if c.BLEDutyCyclePauseSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.BLEDutyCyclePauseSeconds) * time.Second
}

func (c *Config) identityMinRotateInterval() time.Duration {
	if c.IdentityMinRotateMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.IdentityMinRotateMinutes) * time.Minute
}
