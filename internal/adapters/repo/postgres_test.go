package repo

import (
	"testing"
	"time"
)

func TestCountReactions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{name: "empty", raw: "", want: 0},
		{name: "empty array", raw: "[]", want: 0},
		{name: "strings", raw: `["👍","🎉","🔥"]`, want: 3},
		{name: "grouped", raw: `[{"emoji":"👍","count":2},{"emoji":"🎉"}]`, want: 3},
		{name: "negative count", raw: `[{"emoji":"👍","count":-5}]`, want: 1},
		{name: "mixed", raw: `["👍",{"emoji":"🎉","count":4}]`, want: 5},
		{name: "garbage", raw: `{"x":1}`, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := countReactions([]byte(tt.raw)); got != tt.want {
				t.Fatalf("ожидали %d реакций, получили %d", tt.want, got)
			}
		})
	}
}

func TestCountReactionsLargeCounts(t *testing.T) {
	start := time.Now()
	if got := countReactions([]byte(`[{"emoji":"x","count":20000000}]`)); got != maxReactionCount {
		t.Fatalf("ожидали ограничение %d, получили %d", maxReactionCount, got)
	}
	if got := countReactions([]byte(`[{"emoji":"x","count":9223372036854775807},{"emoji":"y","count":9223372036854775807}]`)); got != maxReactionCount {
		t.Fatalf("сумма не должна переполняться, получили %d", got)
	}
	if got := countReactions([]byte(`[{"emoji":"x","count":1000},{"emoji":"y","count":24}]`)); got != 1024 {
		t.Fatalf("ожидали 1024, получили %d", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("подсчёт не должен зависеть от величины счётчиков, заняло %s", elapsed)
	}
}
