// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"

	"github.com/efchatnet/memories/backend/bot"
	"github.com/efchatnet/memories/backend/realtime"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Port          int    `env:"PORT,default=8080"`
	StorageDriver string `env:"STORAGE_DRIVER,default=postgres"`
	DatabaseURL   string `env:"DATABASE_URL,default=postgres://localhost/memories?sslmode=disable"`
	RedisURL      string `env:"REDIS_URL"`
	JWTSecret     string `env:"JWT_SECRET,required=true"`
	JWTIssuer     string `env:"JWT_ISSUER"`
	LogLevel      string `env:"LOG_LEVEL,default=INFO"`
	CORSOrigin    string `env:"CORS_ORIGIN,default=http://localhost:5173"`
	UnlockCron    string `env:"UNLOCK_CRON,default=0 * * * *"`

	GeminiAPIKey    string        `env:"GEMINI_API_KEY"`
	GeminiModel     string        `env:"GEMINI_MODEL,default=gemini-2.5-flash"`
	GeminiEndpoint  string        `env:"GEMINI_ENDPOINT,default=https://generativelanguage.googleapis.com"`
	GeminiTimeout   time.Duration `env:"GEMINI_TIMEOUT,default=20s"`
	AIRatePerMinute int           `env:"AI_RATE_PER_MINUTE,default=30"`

	BotMentionToken     string        `env:"BOT_MENTION_TOKEN,default=@gemini"`
	BotMentionDelay     time.Duration `env:"BOT_MENTION_DELAY,default=1s"`
	BotMentionJitter    time.Duration `env:"BOT_MENTION_JITTER,default=1500ms"`
	BotRoastDelay       time.Duration `env:"BOT_ROAST_DELAY,default=2s"`
	BotRoastJitter      time.Duration `env:"BOT_ROAST_JITTER,default=3s"`
	BotRoastProbability float64       `env:"BOT_ROAST_PROBABILITY,default=0.25"`
	BotRoastMinLength   int           `env:"BOT_ROAST_MIN_LENGTH,default=10"`
	BotContextWindow    int           `env:"BOT_CONTEXT_WINDOW,default=15"`

	WSPingInterval    time.Duration `env:"WS_PING_INTERVAL,default=25s"`
	WSPongTimeout     time.Duration `env:"WS_PONG_TIMEOUT,default=60s"`
	WSMaxMessageBytes int64         `env:"WS_MAX_MESSAGE_BYTES,default=65536"`
	WSSendBuffer      int           `env:"WS_SEND_BUFFER,default=256"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.StorageDriver != "postgres" && c.StorageDriver != "memory" {
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be postgres or memory, got %q", c.StorageDriver))
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is empty"))
	}
	if !gronx.IsValid(c.UnlockCron) {
		errs = append(errs, fmt.Errorf("UNLOCK_CRON %q is not a cron expression", c.UnlockCron))
	}
	if c.BotRoastProbability < 0 || c.BotRoastProbability > 1 {
		errs = append(errs, fmt.Errorf("BOT_ROAST_PROBABILITY must be within [0,1], got %v", c.BotRoastProbability))
	}
	for name, d := range map[string]time.Duration{
		"WS_PING_INTERVAL": c.WSPingInterval,
		"WS_PONG_TIMEOUT":  c.WSPongTimeout,
		"SHUTDOWN_TIMEOUT": c.ShutdownTimeout,
		"GEMINI_TIMEOUT":   c.GeminiTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.WSPingInterval >= c.WSPongTimeout {
		errs = append(errs, errors.New("WS_PING_INTERVAL must be shorter than WS_PONG_TIMEOUT"))
	}
	if c.WSSendBuffer <= 0 || c.WSMaxMessageBytes <= 0 || c.BotContextWindow <= 0 {
		errs = append(errs, errors.New("WS_SEND_BUFFER, WS_MAX_MESSAGE_BYTES and BOT_CONTEXT_WINDOW must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// AllowedOrigins splits CORS_ORIGIN on commas.
func (c Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c Config) BotConfig() bot.Config {
	return bot.Config{
		MentionToken:     c.BotMentionToken,
		MentionDelay:     c.BotMentionDelay,
		MentionJitter:    c.BotMentionJitter,
		RoastDelay:       c.BotRoastDelay,
		RoastJitter:      c.BotRoastJitter,
		RoastProbability: c.BotRoastProbability,
		RoastMinLength:   c.BotRoastMinLength,
		ContextWindow:    c.BotContextWindow,
	}
}

func (c Config) GeminiConfig() bot.GeminiConfig {
	return bot.GeminiConfig{
		APIKey:        c.GeminiAPIKey,
		Model:         c.GeminiModel,
		Endpoint:      c.GeminiEndpoint,
		Timeout:       c.GeminiTimeout,
		RatePerMinute: c.AIRatePerMinute,
	}
}

// WSOptions leaves CheckOrigin to the caller.
func (c Config) WSOptions() realtime.Options {
	return realtime.Options{
		PingInterval:    c.WSPingInterval,
		PongTimeout:     c.WSPongTimeout,
		MaxMessageBytes: c.WSMaxMessageBytes,
		SendBuffer:      c.WSSendBuffer,
	}
}
