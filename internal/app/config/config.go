package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/womat/debug"
	"gopkg.in/yaml.v2"

	"github.com/oxplot/go-typec-cc/tcsm"
)

// Config defines the struct of global config and the struct of the configuration file
type Config struct {
	Flag      FlagConfig      `yaml:"-"`
	Port      PortConfig      `yaml:"port"`
	I2C       I2CConfig       `yaml:"i2c"`
	GPIO      GPIOConfig      `yaml:"gpio"`
	Debug     DebugConfig     `yaml:"debug"`
	Webserver WebserverConfig `yaml:"webserver"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Serial    SerialConfig    `yaml:"serial"`
}

// FlagConfig defines the configured flags (parameters)
type FlagConfig struct {
	Debug      string
	ConfigFile string
}

// PortConfig defines the state machine settings.
type PortConfig struct {
	// Control is the host control byte the port starts with.
	Control            uint8           `yaml:"control"`
	AlternateModes     bool            `yaml:"alternatemodes"`
	InterruptTriggered bool            `yaml:"interrupttriggered"`
	VBus               tcsm.Hysteresis `yaml:"vbus"`
}

// I2CConfig defines the bus the FUSB302 sits on.
type I2CConfig struct {
	Bus     string `yaml:"bus"`
	SpeedHz int64  `yaml:"speed"`
	MPN     string `yaml:"mpn"`
}

// GPIOConfig defines the lines wired to the port. A negative line number
// means the line isn't connected.
type GPIOConfig struct {
	// Backend is either gpiod (character device) or gpiomem (/dev/gpiomem).
	Backend    string `yaml:"backend"`
	Chip       string `yaml:"chip"`
	Interrupt  int    `yaml:"interrupt"`
	VBus5V     int    `yaml:"vbus5v"`
	VBusLevel1 int    `yaml:"vbuslevel1"`
}

// WebserverConfig defines the struct of the webserver and webservice configuration and configuration file
type WebserverConfig struct {
	URL         string          `yaml:"url"`
	Webservices map[string]bool `yaml:"webservices"`
}

// MQTTConfig defines the struct of the mqtt client configuration and configuration file
type MQTTConfig struct {
	Connection string `yaml:"connection"`
	Topic      string `yaml:"topic"`
}

// SerialConfig defines the host link. Mode is binary for the framed command
// set or text for the console. An empty device disables the link.
type SerialConfig struct {
	Device         string        `yaml:"device"`
	Baud           int           `yaml:"baud"`
	Mode           string        `yaml:"mode"`
	ReadTimeoutInt int           `yaml:"readtimeout"`
	ReadTimeout    time.Duration `yaml:"-"`
}

// DebugConfig defines the struct of the debug configuration and configuration file
type DebugConfig struct {
	File       io.WriteCloser `yaml:"-"`
	Flag       int            `yaml:"-"`
	FlagString string         `yaml:"flag"`
	FileString string         `yaml:"file"`
}

func NewConfig() *Config {
	return &Config{
		Port: PortConfig{
			// enabled DRP advertising default current
			Control: 0x92,
			VBus:    tcsm.DefaultVBus,
		},
		I2C: I2CConfig{
			Bus:     "1",
			SpeedHz: 1000000,
			MPN:     "FUSB302BMPX",
		},
		GPIO: GPIOConfig{
			Backend:    "gpiod",
			Chip:       "gpiochip0",
			Interrupt:  -1,
			VBus5V:     -1,
			VBusLevel1: -1,
		},
		Debug: DebugConfig{
			FileString: "stderr",
			FlagString: "standard",
		},
		Webserver: WebserverConfig{
			URL: "http://0.0.0.0:4000",
			Webservices: map[string]bool{
				"version": true,
				"health":  true,
				"status":  true,
				"log":     true,
				"config":  true,
			},
		},
		MQTT: MQTTConfig{
			Topic: "/typec/port0",
		},
		Serial: SerialConfig{
			Baud:           115200,
			Mode:           "binary",
			ReadTimeoutInt: 0,
		},
	}
}

func (c *Config) LoadConfig() error {
	if err := c.readConfigFile(); err != nil {
		return fmt.Errorf("error reading config file %q: %w", c.Flag.ConfigFile, err)
	}

	if c.Flag.Debug != "" {
		c.Debug.FlagString = c.Flag.Debug
	}
	if err := c.setDebugConfig(); err != nil {
		return fmt.Errorf("unable to open debug file %q: %w", c.Debug.FileString, err)
	}

	return c.check()
}

func (c *Config) readConfigFile() error {
	file, err := os.Open(c.Flag.ConfigFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	return c.decode(file)
}

func (c *Config) decode(r io.Reader) error {
	return yaml.NewDecoder(r).Decode(c)
}

// check validates the settings and fills in the derived fields.
func (c *Config) check() error {
	c.Serial.ReadTimeout = time.Duration(c.Serial.ReadTimeoutInt) * time.Millisecond
	if c.Port.VBus.High == 0 {
		c.Port.VBus = tcsm.DefaultVBus
	}
	if c.Port.VBus.DownDiff > c.Port.VBus.High {
		return fmt.Errorf("vbus downdiff %d above high threshold %d", c.Port.VBus.DownDiff, c.Port.VBus.High)
	}

	switch c.GPIO.Backend {
	case "gpiod", "gpiomem", "none":
	default:
		return fmt.Errorf("unknown gpio backend %q", c.GPIO.Backend)
	}
	switch c.Serial.Mode {
	case "binary", "text":
	default:
		return fmt.Errorf("unknown serial mode %q", c.Serial.Mode)
	}
	return nil
}

func (c *Config) setDebugConfig() (err error) {
	// defines Debug section of global.Config
	switch c.Debug.FlagString {
	case "trace", "full":
		c.Debug.Flag = debug.Full
	case "debug":
		c.Debug.Flag = debug.Warning | debug.Info | debug.Error | debug.Fatal | debug.Debug
	case "standard":
		c.Debug.Flag = debug.Standard
	}

	switch c.Debug.FileString {
	case "stderr":
		c.Debug.File = os.Stderr
	case "stdout":
		c.Debug.File = os.Stdout
	default:
		if c.Debug.File, err = os.OpenFile(c.Debug.FileString, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666); err != nil {
			return
		}
	}

	return
}
