package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Listen struct {
	BindIp string `yaml:"bind_ip" env-default:"0.0.0.0"`
	Port   string `yaml:"port" env-default:"8080"`
}

type Mongo struct {
	Enabled  bool   `yaml:"enabled" env:"MONGO_ENABLED" env-default:"false"`
	Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
	User     string `yaml:"user" env:"MONGO_USER" env-default:""`
	Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:""`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"votesecret"`
}

type Meeting struct {
	CodeLength           int           `yaml:"code_length" env-default:"8"`
	ScrutatorCodePrefix  string        `yaml:"scrutator_code_prefix" env-default:"SC"`
	HeartbeatTTL         time.Duration `yaml:"heartbeat_ttl" env-default:"12h" env-description:"meetings without heartbeat for this long are purged"`
	OrganizerAbsentAfter time.Duration `yaml:"organizer_absent_after" env-default:"5m"`
	ReportRequestTTL     time.Duration `yaml:"report_request_ttl" env-default:"15m"`
	ReportTTL            time.Duration `yaml:"report_ttl" env-default:"1h" env-description:"generated report is kept for download this long"`
	SweepInterval        time.Duration `yaml:"sweep_interval" env-default:"1m"`
	PollSweepInterval    time.Duration `yaml:"poll_sweep_interval" env-default:"5s"`
}

type Telegram struct {
	Enabled  bool   `yaml:"enabled" env-default:"false"`
	ApiKey   string `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
	ChatID   int64  `yaml:"chat_id" env:"TELEGRAM_CHAT_ID" env-default:"0"`
	MinLevel string `yaml:"min_level" env-default:"error"`
	// FlushInterval batches alerts; zero sends every record immediately.
	FlushInterval time.Duration `yaml:"flush_interval" env-default:"0s"`
}

type Config struct {
	Env      string   `yaml:"env" env:"ENV" env-default:"local"`
	Listen   Listen   `yaml:"listen"`
	Mongo    Mongo    `yaml:"mongo"`
	Meeting  Meeting  `yaml:"meeting"`
	Telegram Telegram `yaml:"telegram"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
		if err = instance.Validate(); err != nil {
			log.Fatal(fmt.Errorf("config: %w", err))
		}
	})
	return instance
}

// Validate rejects settings that would let meeting and scrutator codes collide.
func (c *Config) Validate() error {
	m := c.Meeting
	if m.CodeLength < 6 || m.CodeLength > 16 {
		return fmt.Errorf("meeting.code_length must be between 6 and 16, got %d", m.CodeLength)
	}
	if len(m.ScrutatorCodePrefix) != 2 {
		return fmt.Errorf("meeting.scrutator_code_prefix must be two characters, got %q", m.ScrutatorCodePrefix)
	}
	if m.SweepInterval <= 0 || m.PollSweepInterval <= 0 {
		return fmt.Errorf("meeting sweep intervals must be positive")
	}
	if c.Telegram.Enabled && (c.Telegram.ApiKey == "" || c.Telegram.ChatID == 0) {
		return fmt.Errorf("telegram.enabled requires api_key and chat_id")
	}
	return nil
}
