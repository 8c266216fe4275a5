package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Monitor MonitorConfig `yaml:"monitor"`
	Stream  StreamConfig  `yaml:"stream"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type MonitorConfig struct {
	// Interval between metric samples.
	Interval time.Duration `yaml:"interval"`
	// StopWait bounds how long stopping a monitor blocks for the
	// in-flight sample cycle.
	StopWait time.Duration `yaml:"stop_wait"`
}

type StreamConfig struct {
	// PopTimeout is the dequeue wait per cycle; a quiet stream emits a
	// keep-alive frame at this cadence.
	PopTimeout time.Duration `yaml:"pop_timeout"`
	// IdleTimeout is the default absolute idle ceiling after which a
	// stream is terminated.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	// QueueCapacity bounds each session's delivery queue.
	QueueCapacity int `yaml:"queue_capacity"`
	// WSWriteTimeout bounds each WebSocket frame write.
	WSWriteTimeout time.Duration `yaml:"ws_write_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: 5 * time.Second,
		},
		Monitor: MonitorConfig{
			Interval: 2 * time.Second,
			StopWait: 2 * time.Second,
		},
		Stream: StreamConfig{
			PopTimeout:     15 * time.Second,
			IdleTimeout:    5 * time.Minute,
			QueueCapacity:  1024,
			WSWriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
