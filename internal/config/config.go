package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	VideoSource            string
	SaveOutput             bool
	OutputPath             string
	ModelPath              string
	ModelConfigPath        string
	ClassesPath            string
	ConfidenceThreshold    float64
	DetectionTimeout       time.Duration
	ReadTimeout            time.Duration
	MaxConsecutiveFailures int
	FPSWindow              int
	Display                bool // Okno podglądu (gocv)
	StdinCommands          bool

	StoreBackend string // sqlite, influxdb, mqtt, none
	DBPath       string
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
	MQTTBroker   string
	MQTTTopic    string

	Measurement            string
	SourceID               string
	TelemetryBatchSize     int
	TelemetryFlushInterval time.Duration
	TelemetryQueueSize     int
	RetryAttempts          int
	RetryBase              time.Duration
	ShutdownFlushTimeout   time.Duration

	SnapshotDirectory string
	Port              int // 0 wyłącza serwer HTTP
	LogDirectory      string
}

// LoadEnvFile loads variables from an optional .env file. A missing file is
// not an error; a malformed one is.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from the environment. Call LoadEnvFile first to
// pick up a .env file.
func Load() *Config {
	return &Config{
		VideoSource:            getEnv("VIDEO_SOURCE", "0"),
		SaveOutput:             getEnvAsBool("SAVE_OUTPUT", false),
		OutputPath:             getEnv("OUTPUT_PATH", filepath.Join(".", "output", "annotated.mp4")),
		ModelPath:              getEnv("MODEL_PATH", filepath.Join(".", "models", "frozen_inference_graph.pb")),
		ModelConfigPath:        getEnv("MODEL_CONFIG_PATH", filepath.Join(".", "models", "ssd_mobilenet_v2_coco.pbtxt")),
		ClassesPath:            getEnv("CLASSES_PATH", filepath.Join(".", "config", "classes.yaml")),
		ConfidenceThreshold:    getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.5),
		DetectionTimeout:       getEnvAsMillis("DETECTION_TIMEOUT_MS", 2000),
		ReadTimeout:            getEnvAsMillis("READ_TIMEOUT_MS", 5000),
		MaxConsecutiveFailures: getEnvAsInt("MAX_CONSECUTIVE_FAILURES", 10),
		FPSWindow:              getEnvAsInt("FPS_WINDOW", 30),
		Display:                getEnvAsBool("DISPLAY_WINDOW", false),
		StdinCommands:          getEnvAsBool("STDIN_COMMANDS", true),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),
		DBPath:       getEnv("DB_PATH", filepath.Join(".", "data", "telemetry.db")),
		InfluxURL:    getEnv("INFLUX_URL", "http://localhost:8086"),
		InfluxToken:  getEnv("INFLUX_TOKEN", ""),
		InfluxOrg:    getEnv("INFLUX_ORG", "animalcensus"),
		InfluxBucket: getEnv("INFLUX_BUCKET", "animal_detection"),
		MQTTBroker:   getEnv("MQTT_BROKER", "localhost:1883"),
		MQTTTopic:    getEnv("MQTT_TOPIC", "animalcensus/telemetry"),

		Measurement:            getEnv("MEASUREMENT", "animal_detections"),
		SourceID:               getEnv("SOURCE_ID", "camera_1"),
		TelemetryBatchSize:     getEnvAsInt("TELEMETRY_BATCH_SIZE", 1),
		TelemetryFlushInterval: getEnvAsMillis("TELEMETRY_FLUSH_INTERVAL_MS", 1000),
		TelemetryQueueSize:     getEnvAsInt("TELEMETRY_QUEUE_SIZE", 256),
		RetryAttempts:          getEnvAsInt("TELEMETRY_RETRY_ATTEMPTS", 3),
		RetryBase:              getEnvAsMillis("TELEMETRY_RETRY_BASE_MS", 500),
		ShutdownFlushTimeout:   getEnvAsMillis("SHUTDOWN_FLUSH_MS", 2000),

		SnapshotDirectory: getEnv("SNAPSHOT_DIR", filepath.Join(".", "snapshots")),
		Port:              getEnvAsInt("PORT", 8080),
		LogDirectory:      getEnv("LOG_DIR", filepath.Join(".", "logs")),
	}
}

// Validate checks the values the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.VideoSource == "" {
		return fmt.Errorf("VIDEO_SOURCE must not be empty")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be within [0,1], got %v", c.ConfidenceThreshold)
	}
	if c.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("MAX_CONSECUTIVE_FAILURES must be positive, got %d", c.MaxConsecutiveFailures)
	}
	if c.FPSWindow < 1 {
		return fmt.Errorf("FPS_WINDOW must be positive, got %d", c.FPSWindow)
	}
	if c.TelemetryBatchSize < 1 || c.TelemetryQueueSize < 1 {
		return fmt.Errorf("telemetry batch and queue sizes must be positive")
	}
	if c.TelemetryFlushInterval <= 0 {
		return fmt.Errorf("TELEMETRY_FLUSH_INTERVAL_MS must be positive")
	}
	if c.SaveOutput && c.OutputPath == "" {
		return fmt.Errorf("OUTPUT_PATH is required when SAVE_OUTPUT is enabled")
	}

	switch c.StoreBackend {
	case "sqlite", "influxdb", "mqtt", "none":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsMillis(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultValue)) * time.Millisecond
}
