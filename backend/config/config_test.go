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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "postgres", cfg.StorageDriver)
	require.Equal(t, "0 * * * *", cfg.UnlockCron)
	require.Equal(t, 1500*time.Millisecond, cfg.BotMentionJitter)
	require.InDelta(t, 0.25, cfg.BotRoastProbability, 1e-9)
	require.Equal(t, "@gemini", cfg.BotConfig().MentionToken)
	require.Equal(t, 256, cfg.WSOptions().SendBuffer)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Chdir(t.TempDir())

	_, err := Load()
	require.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Chdir(t.TempDir())
	base, err := Load()
	require.NoError(t, err)

	cases := map[string]func(*Config){
		"bad cron":        func(c *Config) { c.UnlockCron = "every minute" },
		"probability":     func(c *Config) { c.BotRoastProbability = 1.5 },
		"driver":          func(c *Config) { c.StorageDriver = "sqlite" },
		"ping after pong": func(c *Config) { c.WSPingInterval = 2 * c.WSPongTimeout },
		"zero buffer":     func(c *Config) { c.WSSendBuffer = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := Config{CORSOrigin: " https://a.example , ,https://b.example"}
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins())
}
