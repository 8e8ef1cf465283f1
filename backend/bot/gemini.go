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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

const persona = `You are "Gemini", the savage AI assistant living inside a group chat.
You are witty and sarcastic and love a clever roast, but you are never cruel,
bigoted or vulgar. Keep answers to 1-3 sentences, help when asked, and reply
in the language the user writes in. If someone seems upset, drop the roast.`

const roastPrompt = `You are monitoring a group chat. Decide whether the message deserves a
short witty roast: cringe, humble-brags, bad puns, overly dramatic or confidently
wrong statements qualify; normal conversation, serious topics, greetings and
real questions do not.
Respond with ONLY a JSON object:
{"shouldRoast": true/false, "roast": "your roast if shouldRoast is true, otherwise empty"}`

type GeminiConfig struct {
	APIKey        string
	Model         string
	Endpoint      string
	Timeout       time.Duration
	RatePerMinute int
}

// Gemini talks to the Generative Language REST API.
type Gemini struct {
	client  *fasthttp.Client
	cfg     GeminiConfig
	limiter *rate.Limiter
}

var _ Generator = (*Gemini)(nil)

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 30
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Gemini{
		client: &fasthttp.Client{
			Name:                "memories-bot",
			MaxIdleConnDuration: time.Minute,
		},
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), cfg.RatePerMinute),
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) Reply(ctx context.Context, req MentionRequest) (string, error) {
	var history strings.Builder
	for _, line := range req.History {
		username := line.Username
		if username == "" {
			username = "Unknown"
		}
		fmt.Fprintf(&history, "%s: %s\n", username, line.Content)
	}

	prompt := fmt.Sprintf("%s\n\nHere's the recent chat history for context:\n---\n%s---\n\n%s just tagged you and said: %q\n\nRespond naturally as part of the chat:",
		persona, history.String(), req.Sender, req.Prompt)
	return g.generate(ctx, prompt)
}

func (g *Gemini) Roast(ctx context.Context, req RoastRequest) (string, bool, error) {
	prompt := fmt.Sprintf("%s\n\nThe message from %q: %q\n\nRespond with ONLY valid JSON:", roastPrompt, req.Sender, req.Content)
	text, err := g.generate(ctx, prompt)
	if err != nil {
		return "", false, err
	}
	return parseRoast(text)
}

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}})
	if err != nil {
		return "", err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimRight(g.cfg.Endpoint, "/"), g.cfg.Model, g.cfg.APIKey))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	timeout := g.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	if err := g.client.DoTimeout(req, resp, timeout); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUpstream, code)
	}

	var out generateResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrUpstream)
	}

	var text strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	return strings.TrimSpace(text.String()), nil
}

// parseRoast reads the model's verdict, tolerating a markdown code fence
// around the JSON.
func parseRoast(text string) (string, bool, error) {
	clean := strings.TrimSpace(text)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)

	var verdict struct {
		ShouldRoast bool   `json:"shouldRoast"`
		Roast       string `json:"roast"`
	}
	if err := json.Unmarshal([]byte(clean), &verdict); err != nil {
		return "", false, fmt.Errorf("%w: unparsable roast verdict: %v", ErrUpstream, err)
	}
	roast := strings.TrimSpace(verdict.Roast)
	if !verdict.ShouldRoast || roast == "" {
		return "", false, nil
	}
	return roast, true, nil
}
