// Package config loads motorctl settings from the environment and an optional .env file.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mastercactapus/motorctl/machine/grbl"
	"github.com/mastercactapus/motorctl/machine/serial"
	"github.com/mastercactapus/motorctl/position"
)

// Config holds everything needed to open a motor session.
type Config struct {
	Serial serial.Config
	Motor  MotorConfig

	PositionFile string
	LogLevel     string
	HTTPAddr     string
}

// MotorConfig holds the protocol settings of one motor.
type MotorConfig struct {
	Name             string
	ID               int
	FeedRate         float64
	SettleDelay      time.Duration
	MotionStartDelay time.Duration
	PollInterval     time.Duration
	StatusRetries    int
	CommandTimeout   time.Duration
	AutoSave         bool
}

// Load reads configuration from the environment, after loading files (or
// ./.env when none are given) if they exist.
func Load(files ...string) *Config {
	_ = godotenv.Load(files...)

	def := grbl.DefaultOptions()
	return &Config{
		Serial: serial.Config{
			Device:      getEnv("MOTOR_PORT", "/dev/ttyUSB0"),
			Baud:        getEnvAsInt("MOTOR_BAUD", serial.DefaultBaud),
			ReadTimeout: getEnvAsDuration("MOTOR_READ_TIMEOUT", 100*time.Millisecond),
			Driver:      getEnv("MOTOR_DRIVER", serial.DriverTarm),
			BridgeURL:   getEnv("MOTOR_SPJS_URL", ""),
		},
		Motor: MotorConfig{
			Name:             getEnv("MOTOR_NAME", def.Name),
			ID:               getEnvAsInt("MOTOR_ID", def.ID),
			FeedRate:         getEnvAsFloat("MOTOR_FEED_RATE", def.FeedRate),
			SettleDelay:      getEnvAsDuration("MOTOR_SETTLE_DELAY", def.SettleDelay),
			MotionStartDelay: getEnvAsDuration("MOTOR_START_DELAY", def.MotionStartDelay),
			PollInterval:     getEnvAsDuration("MOTOR_POLL_INTERVAL", def.PollInterval),
			StatusRetries:    getEnvAsInt("MOTOR_STATUS_RETRIES", def.StatusRetries),
			CommandTimeout:   getEnvAsDuration("MOTOR_COMMAND_TIMEOUT", def.CommandTimeout),
			AutoSave:         getEnvAsBool("MOTOR_AUTO_SAVE", true),
		},
		PositionFile: getEnv("MOTOR_POSITION_FILE", position.DefaultPath),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		HTTPAddr:     getEnv("HTTP_ADDR", ":9091"),
	}
}

// Options converts the motor settings for grbl.New. Store and Logger are left unset.
func (m MotorConfig) Options() grbl.Options {
	return grbl.Options{
		Name:             m.Name,
		ID:               m.ID,
		FeedRate:         m.FeedRate,
		SettleDelay:      m.SettleDelay,
		MotionStartDelay: m.MotionStartDelay,
		PollInterval:     m.PollInterval,
		StatusRetries:    m.StatusRetries,
		CommandTimeout:   m.CommandTimeout,
		DisableAutoSave:  !m.AutoSave,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(name string, defaultValue int) int {
	valueStr := getEnv(name, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(name string, defaultValue float64) float64 {
	valueStr := getEnv(name, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	val, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return val
}

// getEnvAsDuration accepts Go durations ("1.5s") or plain milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
