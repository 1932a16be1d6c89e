package queue

import (
	"encoding/json"
	"time"
)

// Config controls the consumer side.
type Config struct {
	Workers     int           `yaml:"workers" toml:"workers" default:"1"`
	RetryLimit  int           `yaml:"retry_limit" toml:"retry_limit" default:"5"`
	RetryDelay  time.Duration `yaml:"retry_delay" toml:"retry_delay" default:"10s"`
	PollTimeout time.Duration `yaml:"poll_timeout" toml:"poll_timeout" default:"1s"`
	KeyPrefix   string        `yaml:"key_prefix" toml:"key_prefix" default:"effortlab:queue"`
}

func (c *Config) normalize() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "effortlab:queue"
	}
}

// Message is the envelope stored in Redis.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// retryAt spaces retries linearly by attempt.
func retryAt(now time.Time, delay time.Duration, attempts int) time.Time {
	return now.Add(time.Duration(attempts) * delay)
}
