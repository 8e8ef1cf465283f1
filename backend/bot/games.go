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
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
)

var truths = []string{
	"What is the most embarrassing thing you've ever done?",
	"Have you ever ghosted someone?",
	"What is a secret you've never told anyone in this room?",
	"Who is your secret crush?",
	"What is the biggest lie you've ever told?",
}

var dares = []string{
	"Do 10 pushups right now.",
	"Text your ex 'I miss you' and send a screenshot.",
	"Let the group choose a song and you have to lip sync to it.",
	"Speak in an accent for the next 3 rounds.",
	"Post a weird selfie on your story and leave it for 1 hour.",
}

type SikeQuestion struct {
	Question string `json:"question"`
	Category string `json:"category"`
	Answer   string `json:"answer"`
}

var sikeQuestions = []SikeQuestion{
	{Question: "What is the only planet that rotates clockwise?", Category: "Space", Answer: "Venus"},
	{Question: "How many hearts does an octopus have?", Category: "Animals", Answer: "Three"},
	{Question: "Which country invented instant noodles?", Category: "Food", Answer: "Japan"},
	{Question: "What colour is a polar bear's skin?", Category: "Animals", Answer: "Black"},
	{Question: "What is the smallest bone in the human body?", Category: "Science", Answer: "The stapes"},
	{Question: "Which band released the album 'Abbey Road'?", Category: "Music", Answer: "The Beatles"},
	{Question: "How many minutes is a rugby match?", Category: "Sport", Answer: "80"},
	{Question: "What was the first film released by Pixar?", Category: "Movies", Answer: "Toy Story"},
}

var commandPattern = regexp.MustCompile(`(?i)^/(truth|dare|sike)`)

// Games picks party game prompts.
type Games struct {
	intn func(n int) int
}

// NewGames uses intn to pick items; nil means math/rand.
func NewGames(intn func(n int) int) *Games {
	if intn == nil {
		intn = rand.IntN
	}
	return &Games{intn: intn}
}

func (g *Games) Truth() string {
	return truths[g.intn(len(truths))]
}

func (g *Games) Dare() string {
	return dares[g.intn(len(dares))]
}

func (g *Games) Sike() SikeQuestion {
	return sikeQuestions[g.intn(len(sikeQuestions))]
}

// Command returns the bot line for a chat command such as "/truth", or false
// when content is not a command.
func (g *Games) Command(content string) (string, bool) {
	match := commandPattern.FindStringSubmatch(content)
	if match == nil {
		return "", false
	}

	switch kind := strings.ToLower(match[1]); kind {
	case "truth":
		return fmt.Sprintf("🎭 **TRUTH**: %s", g.Truth()), true
	case "dare":
		return fmt.Sprintf("⚡ **DARE**: %s", g.Dare()), true
	default:
		q := g.Sike()
		return fmt.Sprintf("🎯 **SIKE**: 🎯 %s\n\n📚 Category: %s\n\n(Answer: %s)", q.Question, q.Category, q.Answer), true
	}
}
