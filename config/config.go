// Package config resolves the runtime configuration from command line flags
// and an optional YAML file. Explicit flags win over file values, which in
// turn win over built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fogleman/ease"
	"github.com/gruntwork-io/go-commons/errors"
	flags "github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"

	"voltlight/dac"
)

// Options is the command line surface.
type Options struct {
	ConfigFile string `short:"c" long:"config" description:"path to an optional YAML config file"`

	MQTTHost     string `long:"mqtt-host" default:"localhost" description:"MQTT broker hostname"`
	MQTTPort     int    `long:"mqtt-port" default:"1883" description:"MQTT broker port"`
	MQTTUsername string `long:"mqtt-username" description:"MQTT broker username (optional)"`
	MQTTPassword string `long:"mqtt-password" description:"MQTT broker password (optional)"`
	BaseTopic    string `long:"mqtt-topic" default:"homeassistant/light/gp8413" description:"MQTT base topic"`

	DeviceName string `long:"device-name" default:"GP8413 Light" description:"device name shown in Home Assistant"`
	UniqueID   string `long:"unique-id" default:"gp8413_light" description:"unique ID used for discovery"`

	Range      string `long:"range" choice:"0-5V" choice:"0-10V" default:"0-10V" description:"DAC output voltage range"`
	I2CBus     string `long:"i2c-bus" default:"1" description:"I2C bus name or number"`
	I2CAddress string `long:"address" default:"0x58" description:"I2C address of the GP8413"`

	FadeDuration time.Duration `long:"fade-duration" default:"500ms" description:"fade time for a full range transition"`
	FadeCurve    string        `long:"fade-curve" choice:"linear" choice:"in-out-quad" choice:"in-out-sine" default:"linear" description:"fade interpolation curve"`
	LogLevel     string        `long:"log-level" default:"info" description:"log verbosity"`
}

// fileConfig mirrors Options for the YAML file.
type fileConfig struct {
	MQTT struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Topic    string `yaml:"topic"`
	} `yaml:"mqtt"`
	Light struct {
		DeviceName   string `yaml:"device_name"`
		UniqueID     string `yaml:"unique_id"`
		FadeDuration string `yaml:"fade_duration"`
		FadeCurve    string `yaml:"fade_curve"`
	} `yaml:"light"`
	DAC struct {
		Range   string `yaml:"range"`
		Bus     string `yaml:"bus"`
		Address string `yaml:"address"`
	} `yaml:"dac"`
	LogLevel string `yaml:"log_level"`
}

// Config is the fully resolved runtime configuration.
type Config struct {
	MQTTHost     string
	MQTTPort     int
	MQTTUsername string
	MQTTPassword string
	BaseTopic    string

	DeviceName string
	UniqueID   string

	Range      dac.Range
	I2CBus     string
	I2CAddress uint16

	FadeDuration time.Duration
	FadeCurve    string
	LogLevel     string
}

// Load parses args (without the program name) into a resolved Config.
func Load(args []string) (*Config, error) {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if opts.ConfigFile != "" {
		if err := mergeFile(parser, &opts); err != nil {
			return nil, err
		}
	}

	return resolve(&opts)
}

// mergeFile overlays file values onto options the user did not set explicitly
// on the command line.
func mergeFile(parser *flags.Parser, opts *Options) error {
	b, err := os.ReadFile(opts.ConfigFile)
	if err != nil {
		return errors.WithStackTrace(err)
	}

	var f fileConfig
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", opts.ConfigFile, err)
	}

	explicit := func(long string) bool {
		opt := parser.FindOptionByLongName(long)
		return opt != nil && opt.IsSet() && !opt.IsSetDefault()
	}

	if !explicit("mqtt-host") && f.MQTT.Host != "" {
		opts.MQTTHost = f.MQTT.Host
	}
	if !explicit("mqtt-port") && f.MQTT.Port != 0 {
		opts.MQTTPort = f.MQTT.Port
	}
	if !explicit("mqtt-username") && f.MQTT.Username != "" {
		opts.MQTTUsername = f.MQTT.Username
	}
	if !explicit("mqtt-password") && f.MQTT.Password != "" {
		opts.MQTTPassword = f.MQTT.Password
	}
	if !explicit("mqtt-topic") && f.MQTT.Topic != "" {
		opts.BaseTopic = f.MQTT.Topic
	}
	if !explicit("device-name") && f.Light.DeviceName != "" {
		opts.DeviceName = f.Light.DeviceName
	}
	if !explicit("unique-id") && f.Light.UniqueID != "" {
		opts.UniqueID = f.Light.UniqueID
	}
	if !explicit("fade-duration") && f.Light.FadeDuration != "" {
		d, err := time.ParseDuration(f.Light.FadeDuration)
		if err != nil {
			return fmt.Errorf("parse fade_duration %q: %w", f.Light.FadeDuration, err)
		}
		opts.FadeDuration = d
	}
	if !explicit("fade-curve") && f.Light.FadeCurve != "" {
		opts.FadeCurve = f.Light.FadeCurve
	}
	if !explicit("range") && f.DAC.Range != "" {
		opts.Range = f.DAC.Range
	}
	if !explicit("i2c-bus") && f.DAC.Bus != "" {
		opts.I2CBus = f.DAC.Bus
	}
	if !explicit("address") && f.DAC.Address != "" {
		opts.I2CAddress = f.DAC.Address
	}
	if !explicit("log-level") && f.LogLevel != "" {
		opts.LogLevel = f.LogLevel
	}

	return nil
}

func resolve(opts *Options) (*Config, error) {
	cfg := &Config{
		MQTTHost:     opts.MQTTHost,
		MQTTPort:     opts.MQTTPort,
		MQTTUsername: opts.MQTTUsername,
		MQTTPassword: opts.MQTTPassword,
		BaseTopic:    strings.TrimRight(opts.BaseTopic, "/"),
		DeviceName:   opts.DeviceName,
		UniqueID:     opts.UniqueID,
		I2CBus:       opts.I2CBus,
		FadeDuration: opts.FadeDuration,
		FadeCurve:    opts.FadeCurve,
		LogLevel:     opts.LogLevel,
	}

	switch opts.Range {
	case "0-5V":
		cfg.Range = dac.Range5V
	case "0-10V":
		cfg.Range = dac.Range10V
	default:
		return nil, fmt.Errorf("invalid range %q, must be 0-5V or 0-10V", opts.Range)
	}

	addr, err := strconv.ParseUint(opts.I2CAddress, 0, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid I2C address %q: %w", opts.I2CAddress, err)
	}
	cfg.I2CAddress = uint16(addr)

	if cfg.MQTTPort <= 0 || cfg.MQTTPort > 65535 {
		return nil, fmt.Errorf("invalid MQTT port %d", cfg.MQTTPort)
	}
	if cfg.BaseTopic == "" {
		return nil, fmt.Errorf("mqtt topic is required")
	}
	if cfg.FadeDuration <= 0 {
		cfg.FadeDuration = 500 * time.Millisecond
	}
	if _, ok := curves[cfg.FadeCurve]; !ok {
		return nil, fmt.Errorf("invalid fade curve %q", cfg.FadeCurve)
	}

	return cfg, nil
}

// curves holds the selectable fade interpolation functions. The choice tag on
// Options keeps the flag in sync; file values are validated against this map.
var curves = map[string]ease.Function{
	"linear":      ease.Linear,
	"in-out-quad": ease.InOutQuad,
	"in-out-sine": ease.InOutSine,
}

// Span returns the full-scale voltage of the configured range.
func (c *Config) Span() float64 {
	return c.Range.Span()
}

// Curve returns the configured fade interpolation function.
func (c *Config) Curve() ease.Function {
	return curves[c.FadeCurve]
}
