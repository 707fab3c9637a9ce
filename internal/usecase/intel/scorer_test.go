package intel

import (
	"math"
	"strings"
	"testing"
)

func TestScoreMessage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{name: "empty", text: "", want: 0},
		{name: "whitespace", text: "   ", want: 0},
		{name: "no keywords", text: "Hey team", want: 0},
		{name: "positive", text: "this is great", want: 1.0 / 3},
		{name: "negative", text: "I'll fix the login bug", want: -1.0 / 3},
		{name: "two negatives", text: "This is urgent, server is down", want: -2.0 / 3},
		{name: "intensifier", text: "this is very great", want: 0.5},
		{name: "negation", text: "this is not great", want: -1.0 / 6},
		{name: "negation without hits", text: "not sure yet", want: 0},
		{name: "keyword counted once", text: "great great great", want: 1.0 / 3},
		{name: "clamped", text: "great awesome excellent amazing wonderful fantastic perfect", want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScoreMessage(tt.text); math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("ScoreMessage(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestScoreMessageNegationHalvesAndFlips(t *testing.T) {
	plain := ScoreMessage("this is great")
	negated := ScoreMessage("this is not great")
	if math.Abs(negated-(-0.5*plain)) > 1e-9 {
		t.Fatalf("ожидали -0.5 от исходной оценки: %v против %v", negated, plain)
	}
	if ScoreMessage("this isn’t great") != negated {
		t.Fatalf("типографский апостроф должен распознаваться как отрицание")
	}
}

func TestScoreMessageBounds(t *testing.T) {
	texts := []string{
		strings.Repeat("terrible awful hate broken fail error wrong ", 10),
		"extremely " + strings.Join(positiveWords, " "),
		"never " + strings.Join(negativeWords, " "),
		"@@@ ??? !!!",
	}
	for _, text := range texts {
		score := ScoreMessage(text)
		if score < -1 || score > 1 {
			t.Fatalf("оценка вне диапазона: %v", score)
		}
		if n := Normalize(score); n < 0 || n > 100 {
			t.Fatalf("нормализованная оценка вне диапазона: %d", n)
		}
	}
}
