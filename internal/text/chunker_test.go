package text

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunk(t *testing.T) {
	tests := []struct {
		name string
		text string
		opts Options
		want []string
	}{
		{
			name: "SingleSentence",
			text: "Goroutines are lightweight threads managed by the Go runtime.",
			opts: Options{MaxTokens: 100},
			want: []string{"Goroutines are lightweight threads managed by the Go runtime."},
		},
		{
			name: "PacksSentencesWithoutOverlap",
			text: "Alpha beta gamma. Delta epsilon. Zeta eta theta. Iota kappa.",
			opts: Options{MaxTokens: 10, OverlapTokens: 3},
			want: []string{"Alpha beta gamma. Delta epsilon.", "Zeta eta theta. Iota kappa."},
		},
		{
			name: "RepeatsTrailingSentence",
			text: "Alpha beta gamma. Delta epsilon. Zeta eta theta. Iota kappa.",
			opts: Options{MaxTokens: 10, OverlapTokens: 4},
			want: []string{
				"Alpha beta gamma. Delta epsilon.",
				"Delta epsilon. Zeta eta theta.",
				"Zeta eta theta. Iota kappa.",
			},
		},
		{
			name: "KeepsCodeFenceWhole",
			text: "Intro paragraph that explains the example below.\n\n```go\nfunc main() {}\n```\n\nClosing words about the example above.",
			opts: Options{MaxTokens: 100},
			want: []string{
				"Intro paragraph that explains the example below.",
				"```go\nfunc main() {}\n```",
				"Closing words about the example above.",
			},
		},
		{
			name: "SplitsOversizedFence",
			text: "```sh\necho one\necho two\necho three\n```",
			opts: Options{MaxTokens: 5},
			want: []string{"```sh\necho one\necho two\n```", "```sh\necho three\n```"},
		},
		{
			name: "SplitsOversizedWord",
			text: strings.Repeat("x", 45),
			opts: Options{MaxTokens: 5},
			want: []string{strings.Repeat("x", 20), strings.Repeat("x", 20)},
		},
		{
			name: "DropsShortFragments",
			text: "This paragraph is long enough to keep around.\n\n```go\nx\n```",
			opts: Options{MaxTokens: 100},
			want: []string{"This paragraph is long enough to keep around."},
		},
		{
			name: "StripsEditLinks",
			text: "[Edit this page](https://example.com/edit)\n",
			opts: Options{MaxTokens: 100},
			want: nil,
		},
		{
			name: "Empty",
			text: "  \n\n ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Chunk(tt.text, tt.opts))
		})
	}
}

func TestChunk_RespectsLimit(t *testing.T) {
	text := strings.Repeat("Channels let goroutines communicate safely. ", 200)
	opts := Options{MaxTokens: 32, OverlapTokens: 8}
	maxChars, _ := opts.limits()

	chunks := Chunk(text, opts)
	assert.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), maxChars)
	}
}

func TestSplitSentences(t *testing.T) {
	assert.Equal(t, []string{"Hello...world. ", "Next one"}, splitSentences("Hello...world. Next one"))
	assert.Equal(t, []string{"No punctuation at all"}, splitSentences("No punctuation at all"))
}

func TestOptions_Limits(t *testing.T) {
	maxChars, overlapChars := Options{}.limits()
	assert.Equal(t, 2048, maxChars)
	assert.Equal(t, 0, overlapChars)

	maxChars, overlapChars = Options{MaxTokens: 10, OverlapTokens: 20}.limits()
	assert.Equal(t, 40, maxChars)
	assert.Equal(t, 0, overlapChars, "overlap at or above the chunk size is ignored")
}
