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

package bot_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/efchatnet/memories/backend/bot"
	"github.com/efchatnet/memories/backend/bot/mocks"
	"github.com/efchatnet/memories/backend/models"
)

var human = models.Identity{ID: "u-alice", Username: "alice"}

type recordingPoster struct {
	mu    sync.Mutex
	posts []string
}

func (p *recordingPoster) SendSystem(_ context.Context, groupID, content string) (models.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, content)
	return models.Message{ID: "m", GroupID: groupID, SenderID: models.BotID, Content: content}, nil
}

func (p *recordingPoster) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.posts...)
}

type staticHistory []models.MessageView

func (h staticHistory) RecentMessages(context.Context, string, int) ([]models.MessageView, error) {
	return append([]models.MessageView(nil), h...), nil
}

type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = append(s.slept, d)
	return nil
}

func newDispatcher(poster bot.Poster, history bot.History, gen bot.Generator, chance float64, sleeper *sleepRecorder) *bot.Dispatcher {
	first := func(int) int { return 0 }
	return bot.NewDispatcher(context.Background(), poster, history, gen, bot.NewGames(first),
		bot.DefaultConfig(), logs.GetLoggerFromLevel(slog.LevelDebug), nil,
		bot.WithChance(func() float64 { return chance }),
		bot.WithJitter(func(max time.Duration) time.Duration { return max / 2 }),
		bot.WithSleep(sleeper.sleep),
	)
}

func message(content string) models.Message {
	return models.Message{ID: "m1", GroupID: "g1", SenderID: human.ID, MessageType: models.MessageText, Content: content}
}

func TestDispatch_IgnoresBotMessages(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gen := mocks.NewMockGenerator(ctrl)
	poster := &recordingPoster{}
	d := newDispatcher(poster, staticHistory{}, gen, 0, &sleepRecorder{})

	for i := 0; i < 100; i++ {
		d.Dispatch(message("/truth @gemini this is long enough to roast"), models.BotIdentity())
	}
	d.Wait()

	require.Empty(t, poster.all())
}

func TestDispatch_TruthCommand(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gen := mocks.NewMockGenerator(ctrl)
	poster := &recordingPoster{}
	d := newDispatcher(poster, staticHistory{}, gen, 0, &sleepRecorder{})

	d.Dispatch(message("/truth"), human)
	d.Wait()

	posts := poster.all()
	req.Len(posts, 1)
	req.Equal("🎭 **TRUTH**: What is the most embarrassing thing you've ever done?", posts[0])
}

func TestDispatch_MentionRepliesOnceAfterDelay(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gen := mocks.NewMockGenerator(ctrl)
	poster := &recordingPoster{}
	sleeper := &sleepRecorder{}
	history := staticHistory{
		{Message: models.Message{Content: "@Gemini what's up?"}, Sender: human},
		{Message: models.Message{Content: "earlier"}, Sender: models.Identity{Username: "bob"}},
	}
	d := newDispatcher(poster, history, gen, 0.99, sleeper)

	gen.EXPECT().Reply(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r bot.MentionRequest) (string, error) {
			req.Equal("g1", r.GroupID)
			req.Equal("alice", r.Sender)
			req.Equal("what's up?", r.Prompt)
			req.Equal([]bot.ContextLine{
				{Username: "bob", Content: "earlier"},
				{Username: "alice", Content: "@Gemini what's up?"},
			}, r.History)
			return "not much, you?", nil
		}).Times(1)

	d.Dispatch(message("@Gemini what's up?"), human)
	d.Wait()

	req.Equal([]string{"not much, you?"}, poster.all())
	req.Equal([]time.Duration{time.Second + 750*time.Millisecond}, sleeper.slept)
}

func TestDispatch_MentionFailurePostsNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gen := mocks.NewMockGenerator(ctrl)
	poster := &recordingPoster{}
	d := newDispatcher(poster, staticHistory{}, gen, 0.99, &sleepRecorder{})

	gen.EXPECT().Reply(gomock.Any(), gomock.Any()).Return("", bot.ErrUpstream)

	d.Dispatch(message("hey @gemini"), human)
	d.Wait()

	require.Empty(t, poster.all())
}

func TestDispatch_RoastGate(t *testing.T) {
	const content = "I am literally the best driver in this whole city"

	t.Run("chance above probability skips the model", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		gen := mocks.NewMockGenerator(ctrl)
		poster := &recordingPoster{}
		d := newDispatcher(poster, staticHistory{}, gen, 0.3, &sleepRecorder{})

		d.Dispatch(message(content), human)
		d.Wait()
		require.Empty(t, poster.all())
	})

	t.Run("short messages are never roasted", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		gen := mocks.NewMockGenerator(ctrl)
		poster := &recordingPoster{}
		d := newDispatcher(poster, staticHistory{}, gen, 0, &sleepRecorder{})

		d.Dispatch(message("ok lol"), human)
		d.Wait()
		require.Empty(t, poster.all())
	})

	t.Run("roast is posted after delay", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		gen := mocks.NewMockGenerator(ctrl)
		poster := &recordingPoster{}
		sleeper := &sleepRecorder{}
		d := newDispatcher(poster, staticHistory{}, gen, 0.1, sleeper)

		gen.EXPECT().Roast(gomock.Any(), bot.RoastRequest{Sender: "alice", Content: content}).
			Return("Best driver, worst parker 🚗", true, nil)

		d.Dispatch(message(content), human)
		d.Wait()
		require.Equal(t, []string{"Best driver, worst parker 🚗"}, poster.all())
		require.Equal(t, []time.Duration{2*time.Second + 1500*time.Millisecond}, sleeper.slept)
	})

	t.Run("declined or failed roasts post nothing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		gen := mocks.NewMockGenerator(ctrl)
		poster := &recordingPoster{}
		d := newDispatcher(poster, staticHistory{}, gen, 0.1, &sleepRecorder{})

		gen.EXPECT().Roast(gomock.Any(), gomock.Any()).Return("", false, nil)
		gen.EXPECT().Roast(gomock.Any(), gomock.Any()).Return("", false, errors.New("boom"))

		d.Dispatch(message(content), human)
		d.Dispatch(message(content), human)
		d.Wait()
		require.Empty(t, poster.all())
	})
}

func TestDispatch_WithoutGeneratorOnlyGames(t *testing.T) {
	poster := &recordingPoster{}
	d := newDispatcher(poster, staticHistory{}, nil, 0, &sleepRecorder{})

	d.Dispatch(message("@gemini are you there? nobody answers"), human)
	d.Dispatch(message("/SIKE"), human)
	d.Wait()

	posts := poster.all()
	require.Len(t, posts, 1)
	require.True(t, strings.HasPrefix(posts[0], "🎯 **SIKE**: 🎯 "))
}

type panickingPoster struct{}

func (panickingPoster) SendSystem(context.Context, string, string) (models.Message, error) {
	panic("store exploded")
}

func TestDispatch_RecoversFromPanics(t *testing.T) {
	d := newDispatcher(panickingPoster{}, staticHistory{}, nil, 0, &sleepRecorder{})
	require.NotPanics(t, func() {
		d.Dispatch(message("/dare"), human)
		d.Wait()
	})
}
