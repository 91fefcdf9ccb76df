package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker            string
	MQTTClientIDProducer  string
	MQTTClientIDConsole   string
	MQTTClientIDWeb       string
	MQTTClientIDDisplay   string
	MQTTClientIDCalibrate string
	MQTTClientIDSerial    string

	// Topics
	TopicHits     string
	TopicPose     string
	TopicCommands string

	// Sensor hub hardware
	SensorSPIDevice string
	SensorSPIHz     int64
	SensorCSPin     string
	SensorINTPin    string
	SensorRSTPin    string
	// Report interval in microseconds (10000 = 100Hz)
	SensorReportIntervalUS uint32

	// Gesture detection
	// Threshold on the y-axis angular rate (scaled mrad/s); a hit fires on
	// the first sample below this value while the detector is armed.
	GyroHitThreshold int

	// DAC output
	DACSPIDevice string
	DACSPIHz     int64
	// DAC resolution in bits; full scale is (1<<DACBits)-1
	DACBits int

	// Audio
	ToneSampleRate int
	SampleDir      string
	PlayQueueSize  int

	// Serial event stream
	SerialPort string
	SerialBaud int

	// Web Server
	WebServerPort int

	// Display
	DisplayUpdateInterval int // milliseconds
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported (lowercase) so other packages cannot access it directly.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock (Lock) for initialization,
//     read lock (RLock) for Get() allows multiple concurrent readers without blocking each other.
//
// External code must use InitGlobal() to set and Get() to read, ensuring thread safety.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := &Config{}
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "MQTT_CLIENT_ID_CALIBRATE":
		c.MQTTClientIDCalibrate = value
	case "MQTT_CLIENT_ID_SERIAL":
		c.MQTTClientIDSerial = value

	// Topics
	case "TOPIC_HITS":
		c.TopicHits = value
	case "TOPIC_POSE":
		c.TopicPose = value
	case "TOPIC_COMMANDS":
		c.TopicCommands = value

	// Sensor hub hardware
	case "SENSOR_SPI_DEVICE":
		c.SensorSPIDevice = value
	case "SENSOR_SPI_HZ":
		hz, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SENSOR_SPI_HZ %q: %w", value, err)
		}
		c.SensorSPIHz = hz
	case "SENSOR_CS_PIN":
		c.SensorCSPin = value
	case "SENSOR_INT_PIN":
		c.SensorINTPin = value
	case "SENSOR_RST_PIN":
		c.SensorRSTPin = value
	case "SENSOR_REPORT_INTERVAL_US":
		interval, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid SENSOR_REPORT_INTERVAL_US %q: %w", value, err)
		}
		c.SensorReportIntervalUS = uint32(interval)

	// Gesture detection
	case "GYRO_HIT_THRESHOLD":
		threshold, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GYRO_HIT_THRESHOLD %q: %w", value, err)
		}
		if threshold >= 0 {
			return fmt.Errorf("GYRO_HIT_THRESHOLD must be negative (downstroke), got %d", threshold)
		}
		c.GyroHitThreshold = threshold

	// DAC output
	case "DAC_SPI_DEVICE":
		c.DACSPIDevice = value
	case "DAC_SPI_HZ":
		hz, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid DAC_SPI_HZ %q: %w", value, err)
		}
		c.DACSPIHz = hz
	case "DAC_BITS":
		bits, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DAC_BITS %q: %w", value, err)
		}
		if bits < 8 || bits > 16 {
			return fmt.Errorf("DAC_BITS must be 8-16, got %d", bits)
		}
		c.DACBits = bits

	// Audio
	case "TONE_SAMPLE_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid TONE_SAMPLE_RATE %q: %w", value, err)
		}
		c.ToneSampleRate = rate
	case "SAMPLE_DIR":
		c.SampleDir = value
	case "PLAY_QUEUE_SIZE":
		size, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid PLAY_QUEUE_SIZE %q: %w", value, err)
		}
		if size < 1 {
			return fmt.Errorf("PLAY_QUEUE_SIZE must be at least 1, got %d", size)
		}
		c.PlayQueueSize = size

	// Serial event stream
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD %q: %w", value, err)
		}
		c.SerialBaud = rate

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.SensorSPIDevice == "" {
		return fmt.Errorf("SENSOR_SPI_DEVICE is required")
	}
	if c.SensorCSPin == "" {
		return fmt.Errorf("SENSOR_CS_PIN is required")
	}
	if c.SensorINTPin == "" {
		return fmt.Errorf("SENSOR_INT_PIN is required")
	}
	if c.DACSPIDevice == "" {
		return fmt.Errorf("DAC_SPI_DEVICE is required")
	}
	if c.DACBits == 0 {
		return fmt.Errorf("DAC_BITS is required")
	}
	if c.GyroHitThreshold == 0 {
		return fmt.Errorf("GYRO_HIT_THRESHOLD is required")
	}
	if c.ToneSampleRate == 0 {
		return fmt.Errorf("TONE_SAMPLE_RATE is required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
// Acquires write lock (configMu.Lock) during initialization to prevent concurrent access.
// This is the only function that can set globalConfig.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
// Uses read lock (configMu.RLock) to allow multiple concurrent readers without blocking.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
