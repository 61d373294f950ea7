// Package config loads service configuration from an optional YAML file
// with environment-variable overrides.
package config

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"local"`
	DBPath     string `yaml:"db_path" env:"DB_PATH" env-default:"./data/payroll.db"`
	UploadDir  string `yaml:"upload_dir" env:"UPLOAD_DIR" env-default:"./data/uploads"`
	SeedPath   string `yaml:"seed_path" env:"SEED_PATH" env-default:""`
	HTTPServer `yaml:"http_server"`
	Queue      `yaml:"queue"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	Timeout     time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

type Queue struct {
	Workers    int           `yaml:"workers" env:"QUEUE_WORKERS" env-default:"4"`
	MaxRetries int           `yaml:"max_retries" env:"QUEUE_MAX_RETRIES" env-default:"3"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"QUEUE_RETRY_DELAY" env-default:"30s"`
}

// MustLoad reads the config file named by -config or CONFIG_PATH, falling
// back to environment variables alone when neither is set. Exits on any
// load error.
func MustLoad() *Config {
	path := fetchConfigPath()

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			log.Fatalf("config file does not exist: %s", path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			log.Fatalf("cannot read config %s: %v", path, err)
		}
		return &cfg
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatalf("cannot read config from environment: %v", err)
	}
	return &cfg
}

func fetchConfigPath() string {
	var path string
	flag.StringVar(&path, "config", "", "path to config file")
	flag.Parse()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return path
}
