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

package integration

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	"github.com/efchatnet/memories/backend/bot"
	"github.com/efchatnet/memories/backend/handlers"
	"github.com/efchatnet/memories/backend/metrics"
	"github.com/efchatnet/memories/backend/middleware"
	"github.com/efchatnet/memories/backend/realtime"
	"github.com/efchatnet/memories/backend/storage"
	redisstore "github.com/efchatnet/memories/backend/storage/redis"
	"github.com/efchatnet/memories/backend/unlock"
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds everything the memories backend needs from its host process.
type Config struct {
	Store storage.Store
	// Pinger backs /health. Nil reports healthy.
	Pinger Pinger
	// Redis enables cross-instance fan-out. Nil delivers in-process only.
	Redis     *redis.Client
	JWTSecret string
	JWTIssuer string
	// Generator backs the mention and roast branches. Nil disables both.
	Generator      bot.Generator
	Bot            bot.Config
	UnlockCron     string
	WS             realtime.Options
	AllowedOrigins []string
	// Registry receives the service metrics. Nil creates a private one.
	Registry *prometheus.Registry
	Logger   *slog.Logger
	// BotOptions are passed through to the dispatcher, mostly for tests.
	BotOptions []bot.Option
}

// Memories wires the realtime engine, bot, unlock scheduler and REST handlers
// around one store.
type Memories struct {
	cfg        Config
	registry   *prometheus.Registry
	hub        *realtime.Hub
	engine     *realtime.Engine
	relay      *redisstore.Relay
	dispatcher *bot.Dispatcher
	sweeper    *unlock.Sweeper
	resolver   *middleware.TokenResolver
	socket     *realtime.Server
	chat       *handlers.ChatHandler
	games      *handlers.GameHandler
	capsules   *handlers.CapsuleHandler
	wg         sync.WaitGroup
}

// New builds the service. ctx bounds background work started on behalf of
// clients, so it should outlive individual requests.
func New(ctx context.Context, cfg Config) (*Memories, error) {
	if cfg.Store == nil {
		return nil, &ValidationError{Message: "store is not configured"}
	}
	if cfg.JWTSecret == "" {
		return nil, &ValidationError{Message: "JWT secret is not configured"}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.UnlockCron == "" {
		cfg.UnlockCron = unlock.DefaultCron
	}
	cfg.Bot = withBotDefaults(cfg.Bot)
	if cfg.WS.SendBuffer == 0 {
		cfg.WS = realtime.DefaultOptions()
	}
	if cfg.WS.CheckOrigin == nil {
		cfg.WS.CheckOrigin = originChecker(cfg.AllowedOrigins)
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m := metrics.New(registry)
	logger := cfg.Logger

	hub := realtime.NewHub(logger, m)
	var out realtime.Broadcaster = hub
	var relay *redisstore.Relay
	if cfg.Redis != nil {
		relay = redisstore.NewRelay(cfg.Redis, logger)
		out = relay
	}

	engine := realtime.NewEngine(cfg.Store, hub, out, logger, m)
	games := bot.NewGames(rand.IntN)
	dispatcher := bot.NewDispatcher(ctx, engine, cfg.Store, cfg.Generator, games, cfg.Bot, logger, m, cfg.BotOptions...)
	engine.SetSideEffects(dispatcher)

	sweeper, err := unlock.NewSweeper(cfg.Store, cfg.UnlockCron, logger, m)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	resolver := middleware.NewTokenResolver(cfg.JWTSecret, cfg.JWTIssuer, cfg.Store)

	return &Memories{
		cfg:        cfg,
		registry:   registry,
		hub:        hub,
		engine:     engine,
		relay:      relay,
		dispatcher: dispatcher,
		sweeper:    sweeper,
		resolver:   resolver,
		socket:     realtime.NewServer(ctx, hub, engine, resolver, cfg.Store, cfg.WS, logger, m),
		chat:       handlers.NewChatHandler(cfg.Store, logger),
		games:      handlers.NewGameHandler(games),
		capsules:   handlers.NewCapsuleHandler(cfg.Store, logger, m),
	}, nil
}

// withBotDefaults fills each unset field from bot.DefaultConfig. An entirely
// zero config means all defaults; otherwise a zero RoastProbability is kept as
// a deliberate setting.
func withBotDefaults(c bot.Config) bot.Config {
	d := bot.DefaultConfig()
	if c == (bot.Config{}) {
		return d
	}
	if c.MentionToken == "" {
		c.MentionToken = d.MentionToken
	}
	if c.MentionDelay == 0 {
		c.MentionDelay = d.MentionDelay
	}
	if c.MentionJitter == 0 {
		c.MentionJitter = d.MentionJitter
	}
	if c.RoastDelay == 0 {
		c.RoastDelay = d.RoastDelay
	}
	if c.RoastJitter == 0 {
		c.RoastJitter = d.RoastJitter
	}
	if c.RoastMinLength == 0 {
		c.RoastMinLength = d.RoastMinLength
	}
	if c.ContextWindow == 0 {
		c.ContextWindow = d.ContextWindow
	}
	return c
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || lo.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin.
		return origin == "" || lo.Contains(allowed, origin)
	}
}

// RegisterRoutes mounts the websocket endpoint, the REST API, health and
// metrics on router.
func (s *Memories) RegisterRoutes(router *mux.Router) {
	router.Use(middleware.CORS(s.cfg.AllowedOrigins))

	router.Handle("/ws", s.socket).Methods(http.MethodGet)
	router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.RequireIdentity(s.resolver))

	api.HandleFunc("/chat/unread", s.chat.Unread).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/chat/{groupId}/messages", s.chat.History).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/chat/{groupId}/members", s.chat.Members).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/game/tod", s.games.TruthOrDare).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/game/sike", s.games.Sike).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/capsules/{id}/unlock", s.capsules.Unlock).Methods(http.MethodPost, http.MethodOptions)
}

func (s *Memories) health(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Pinger != nil {
		if err := s.cfg.Pinger.Ping(r.Context()); err != nil {
			s.cfg.Logger.Warn("Health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Database unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Start launches the unlock scheduler and, with Redis configured, the room
// relay. Relay failures are reported on the returned channel.
func (s *Memories) Start(ctx context.Context) <-chan error {
	errs := make(chan error, 1)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweeper.Run(ctx)
	}()

	if s.relay != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.relay.Run(ctx, s.hub); err != nil {
				errs <- err
			}
		}()
	}
	return errs
}

// Ready is closed once the service can deliver broadcasts.
func (s *Memories) Ready() <-chan struct{} {
	if s.relay != nil {
		return s.relay.Ready()
	}
	ready := make(chan struct{})
	close(ready)
	return ready
}

// Shutdown waits for background loops to observe their cancelled context and
// for in-flight bot work to finish.
func (s *Memories) Shutdown() {
	s.wg.Wait()
	s.dispatcher.Wait()
}

// SweepNow runs one unlock sweep outside the schedule.
func (s *Memories) SweepNow(ctx context.Context) (unlock.Report, error) {
	return s.sweeper.RunOnce(ctx)
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
