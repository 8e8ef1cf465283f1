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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGames_Command(t *testing.T) {
	g := NewGames(func(n int) int { return n - 1 })

	tests := []struct {
		content string
		want    string
		ok      bool
	}{
		{content: "/truth", want: "🎭 **TRUTH**: " + truths[len(truths)-1], ok: true},
		{content: "/DARE me", want: "⚡ **DARE**: " + dares[len(dares)-1], ok: true},
		{
			content: "/sike",
			want:    "🎯 **SIKE**: 🎯 What was the first film released by Pixar?\n\n📚 Category: Movies\n\n(Answer: Toy Story)",
			ok:      true,
		},
		{content: "say /truth", ok: false},
		{content: "hello", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			got, ok := g.Command(tt.content)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestGames_DefaultRandomStaysInRange(t *testing.T) {
	g := NewGames(nil)
	for i := 0; i < 50; i++ {
		require.Contains(t, truths, g.Truth())
		require.Contains(t, dares, g.Dare())
		require.Contains(t, sikeQuestions, g.Sike())
	}
}
