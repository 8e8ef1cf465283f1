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

//go:generate go run go.uber.org/mock/mockgen -source=generator.go -destination=mocks/mock_generator.go -package=mocks

package bot

import (
	"context"
	"errors"
)

// ErrUpstream wraps failures of the language model service.
var ErrUpstream = errors.New("upstream generator failure")

// ContextLine is one chat line given to the model as history.
type ContextLine struct {
	Username string
	Content  string
}

type MentionRequest struct {
	GroupID string
	Sender  string
	Prompt  string
	// History is oldest first.
	History []ContextLine
}

type RoastRequest struct {
	Sender  string
	Content string
}

// Generator produces bot replies.
type Generator interface {
	Reply(ctx context.Context, req MentionRequest) (string, error)
	// Roast reports ok=false when the message is not worth a reaction.
	Roast(ctx context.Context, req RoastRequest) (roast string, ok bool, err error)
}
