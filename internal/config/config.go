package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
		LockTTL  string `yaml:"lock_ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Questions struct {
		TTL string `yaml:"ttl"`
	} `yaml:"questions"`
	Game struct {
		QuestionTimeout string `yaml:"question_timeout"`
		AnswerDwell     string `yaml:"answer_dwell"`
		TimeoutDwell    string `yaml:"timeout_dwell"`
		SettleTimeout   string `yaml:"settle_timeout"`
		SoloCount       int    `yaml:"solo_count"`
		SoloMinimum     int    `yaml:"solo_minimum"`
		MinAnswerPace   string `yaml:"min_answer_pace"`
		VisibilityLimit int    `yaml:"visibility_limit"`
	} `yaml:"game"`
	Outbox struct {
		// Backend is one of memory, redis or file.
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
	} `yaml:"outbox"`
	Payments struct {
		RedirectURL string `yaml:"redirect_url"`
	} `yaml:"payments"`
	Bootstrap struct {
		Failsafe           string `yaml:"failsafe"`
		RecentTransactions int    `yaml:"recent_transactions"`
	} `yaml:"bootstrap"`
	Jobs struct {
		ContestInterval string `yaml:"contest_interval"`
		SweepInterval   string `yaml:"sweep_interval"`
	} `yaml:"jobs"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// IntOr returns v, or fallback when v is not positive.
func IntOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
