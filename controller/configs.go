package controller

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configName      = ".pilldispenser"
	configType      = "yaml"
	envPrefix       = "PILLDISPENSER"
	envKeySeparator = "_"

	DefaultBaudRate      = 115200
	DefaultDeviceID      = "pilldispenser"
	DefaultReportTimeout = 5 * time.Second
	DefaultEEPROMImage   = "eeprom.bin"
	DefaultSpeed         = 1.0
)

var (
	ErrInvalidBaudRate = errors.New("baud rate must be positive")
	ErrInvalidSpeed    = errors.New("simulator speed must not be negative")
	ErrInvalidTimeout  = errors.New("report timeout must be positive")
	ErrMissingImage    = errors.New("simulator eeprom image is required")
)

// Config is the host-side configuration. Field tags use mapstructure for viper unmarshalling
type Config struct {
	Serial    SerialConfig    `mapstructure:"serial"`
	Report    ReportConfig    `mapstructure:"report"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
}

// SerialConfig selects the device console. An empty Port uses the first USB serial port and
// SerialPortNone runs without a device
type SerialConfig struct {
	Port     string `mapstructure:"port"`
	BaudRate int    `mapstructure:"baud_rate"`
}

// ReportConfig enables forwarding events to a REST API when Addr is set
type ReportConfig struct {
	Addr     string        `mapstructure:"addr"`
	DeviceID string        `mapstructure:"device_id"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SimulatorConfig has the simulated hardware settings
type SimulatorConfig struct {
	// EEPROMImage is the file holding the simulated memory. It survives restarts like the chip
	EEPROMImage string `mapstructure:"eeprom_image"`
	// Speed divides every delay. Zero runs without real delays, which spins the idle loop
	Speed              float64 `mapstructure:"speed"`
	StepsPerRevolution int     `mapstructure:"steps_per_revolution"`
	IndexPosition      int     `mapstructure:"index_position"`
	SensorFault        bool    `mapstructure:"sensor_fault"`
	// PowerLossAfter cuts power after this many motor steps. Zero disables it
	PowerLossAfter int `mapstructure:"power_loss_after"`
}

// LoadConfig loads configuration from file, env vars, and defaults. A missing config file is not
// an error when configPath is empty
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	err := viperCfg.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	err = viperCfg.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("serial.port", "")
	viperCfg.SetDefault("serial.baud_rate", DefaultBaudRate)

	viperCfg.SetDefault("report.addr", "")
	viperCfg.SetDefault("report.device_id", DefaultDeviceID)
	viperCfg.SetDefault("report.timeout", DefaultReportTimeout)

	viperCfg.SetDefault("simulator.eeprom_image", DefaultEEPROMImage)
	viperCfg.SetDefault("simulator.speed", DefaultSpeed)
	viperCfg.SetDefault("simulator.steps_per_revolution", 0)
	viperCfg.SetDefault("simulator.index_position", 0)
	viperCfg.SetDefault("simulator.sensor_fault", false)
	viperCfg.SetDefault("simulator.power_loss_after", 0)
}

// Validate checks the loaded values
func (c *Config) Validate() error {
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBaudRate, c.Serial.BaudRate)
	}
	if c.Report.Timeout <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, c.Report.Timeout)
	}
	if c.Simulator.Speed < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, c.Simulator.Speed)
	}
	if c.Simulator.EEPROMImage == "" {
		return ErrMissingImage
	}
	return nil
}
