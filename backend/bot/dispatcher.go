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

package bot

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/efchatnet/memories/backend/metrics"
	"github.com/efchatnet/memories/backend/models"
)

// Poster persists and broadcasts a message as the bot.
type Poster interface {
	SendSystem(ctx context.Context, groupID, content string) (models.Message, error)
}

// History loads recent group messages, newest first.
type History interface {
	RecentMessages(ctx context.Context, groupID string, limit int) ([]models.MessageView, error)
}

type Config struct {
	MentionToken     string
	MentionDelay     time.Duration
	MentionJitter    time.Duration
	RoastDelay       time.Duration
	RoastJitter      time.Duration
	RoastProbability float64
	RoastMinLength   int
	ContextWindow    int
}

func DefaultConfig() Config {
	return Config{
		MentionToken:     "@gemini",
		MentionDelay:     time.Second,
		MentionJitter:    1500 * time.Millisecond,
		RoastDelay:       2 * time.Second,
		RoastJitter:      3 * time.Second,
		RoastProbability: 0.25,
		RoastMinLength:   10,
		ContextWindow:    15,
	}
}

type Option func(*Dispatcher)

// WithChance replaces the uniform [0,1) source used for the roast gate.
func WithChance(chance func() float64) Option {
	return func(d *Dispatcher) { d.chance = chance }
}

// WithJitter replaces the source of extra delay in [0,max).
func WithJitter(jitter func(max time.Duration) time.Duration) Option {
	return func(d *Dispatcher) { d.jitter = jitter }
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) { d.sleep = sleep }
}

// Dispatcher runs bot side effects for human chat messages. Work runs in the
// background on the dispatcher's own context; failures are logged and never
// reach clients.
type Dispatcher struct {
	ctx       context.Context
	poster    Poster
	history   History
	generator Generator
	games     *Games
	cfg       Config
	mention   *regexp.Regexp
	logger    *slog.Logger
	metrics   *metrics.Metrics
	wg        sync.WaitGroup

	chance func() float64
	jitter func(max time.Duration) time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewDispatcher builds a dispatcher. A nil generator disables the mention and
// roast branches; game commands still work.
func NewDispatcher(ctx context.Context, poster Poster, history History, generator Generator,
	games *Games, cfg Config, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ctx:       ctx,
		poster:    poster,
		history:   history,
		generator: generator,
		games:     games,
		cfg:       cfg,
		mention:   regexp.MustCompile(`(?i)` + regexp.QuoteMeta(cfg.MentionToken)),
		logger:    logger,
		metrics:   m,
		chance:    rand.Float64,
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return rand.N(max)
		},
		sleep: sleepCtx,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch schedules side effects for msg and returns immediately. Messages
// from the bot itself are ignored.
func (d *Dispatcher) Dispatch(msg models.Message, sender models.Identity) {
	if sender.ID == models.BotID {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Bot side effect panicked", "group_id", msg.GroupID, "message_id", msg.ID, "panic", r)
				d.metrics.SideEffect("dispatch", "panic")
			}
		}()
		d.run(msg, sender)
	}()
}

// Wait blocks until in-flight side effects finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(msg models.Message, sender models.Identity) {
	if line, ok := d.games.Command(msg.Content); ok {
		d.post(msg.GroupID, "command", line)
	}

	if d.generator == nil {
		return
	}
	if d.mention.MatchString(msg.Content) {
		d.answerMention(msg, sender)
		return
	}
	if utf8.RuneCountInString(msg.Content) >= d.cfg.RoastMinLength && d.chance() < d.cfg.RoastProbability {
		d.roast(msg, sender)
	}
}

func (d *Dispatcher) answerMention(msg models.Message, sender models.Identity) {
	if err := d.sleep(d.ctx, d.cfg.MentionDelay+d.jitter(d.cfg.MentionJitter)); err != nil {
		return
	}

	recent, err := d.history.RecentMessages(d.ctx, msg.GroupID, d.cfg.ContextWindow)
	if err != nil {
		d.logger.Warn("Failed to load chat context", "group_id", msg.GroupID, "error", err)
	}
	history := lo.Map(lo.Reverse(recent), func(v models.MessageView, _ int) ContextLine {
		return ContextLine{Username: v.Sender.Username, Content: v.Content}
	})

	reply, err := d.generator.Reply(d.ctx, MentionRequest{
		GroupID: msg.GroupID,
		Sender:  sender.Username,
		Prompt:  strings.TrimSpace(d.mention.ReplaceAllString(msg.Content, "")),
		History: history,
	})
	if err != nil {
		d.logger.Error("Mention reply failed", "group_id", msg.GroupID, "error", err)
		d.metrics.SideEffect("mention", "error")
		return
	}
	if strings.TrimSpace(reply) == "" {
		d.metrics.SideEffect("mention", "empty")
		return
	}
	d.post(msg.GroupID, "mention", reply)
}

func (d *Dispatcher) roast(msg models.Message, sender models.Identity) {
	roast, ok, err := d.generator.Roast(d.ctx, RoastRequest{Sender: sender.Username, Content: msg.Content})
	if err != nil {
		d.logger.Warn("Roast check failed", "group_id", msg.GroupID, "error", err)
		d.metrics.SideEffect("roast", "error")
		return
	}
	if !ok {
		d.metrics.SideEffect("roast", "skipped")
		return
	}

	if err := d.sleep(d.ctx, d.cfg.RoastDelay+d.jitter(d.cfg.RoastJitter)); err != nil {
		return
	}
	d.post(msg.GroupID, "roast", roast)
}

func (d *Dispatcher) post(groupID, branch, content string) {
	if _, err := d.poster.SendSystem(d.ctx, groupID, content); err != nil {
		d.logger.Error("Failed to post bot message", "group_id", groupID, "branch", branch, "error", err)
		d.metrics.SideEffect(branch, "error")
		return
	}
	d.metrics.SideEffect(branch, "posted")
}
