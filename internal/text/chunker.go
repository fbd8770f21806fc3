package text

import (
	"regexp"
	"strings"
)

const (
	charsPerToken = 4
	// MinChunkChars drops fragments too short to be worth a vector.
	MinChunkChars = 20
)

var (
	fenceRe    = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*[[:space:]]*\\n.*?\\n[[:space:]]*```")
	sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+(?:\s+|$)`)
	editLinkRe = regexp.MustCompile(`(?mi)^\[edit[^\]]*\]\([^\)]+\)\s*$`)
)

type Options struct {
	MaxTokens     int
	OverlapTokens int
}

func (o Options) limits() (maxChars, overlapChars int) {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 512
	}
	maxChars = o.MaxTokens * charsPerToken
	overlapChars = o.OverlapTokens * charsPerToken
	if overlapChars < 0 || overlapChars >= maxChars {
		overlapChars = 0
	}
	return maxChars, overlapChars
}

// Chunk splits markdown text into overlapping chunks of at most
// opts.MaxTokens (estimated at four characters per token). Code fences are
// never split unless they alone exceed the limit; prose is packed sentence
// by sentence and each chunk repeats up to opts.OverlapTokens of trailing
// sentences from the previous one.
func Chunk(text string, opts Options) []string {
	text = editLinkRe.ReplaceAllString(text, "")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	maxChars, overlapChars := opts.limits()

	var chunks []string
	last := 0
	for _, loc := range fenceRe.FindAllStringIndex(text, -1) {
		chunks = append(chunks, packProse(text[last:loc[0]], maxChars, overlapChars)...)
		chunks = append(chunks, splitCode(text[loc[0]:loc[1]], maxChars)...)
		last = loc[1]
	}
	chunks = append(chunks, packProse(text[last:], maxChars, overlapChars)...)

	out := chunks[:0]
	for _, c := range chunks {
		if len(strings.TrimSpace(c)) >= MinChunkChars {
			out = append(out, c)
		}
	}
	return out
}

// sentences splits prose into paragraph-aware units no longer than maxChars.
func sentences(prose string, maxChars int) []string {
	var units []string
	for _, para := range strings.Split(prose, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for _, s := range splitSentences(para) {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if len(s) > maxChars {
				units = append(units, splitWords(s, maxChars)...)
				continue
			}
			units = append(units, s)
		}
	}
	return units
}

// splitSentences never drops text: anything the sentence pattern skips is
// joined to the following sentence, and unterminated trailing text is kept.
func splitSentences(para string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(para, -1) {
		out = append(out, para[last:loc[1]])
		last = loc[1]
	}
	if last < len(para) {
		out = append(out, para[last:])
	}
	return out
}

func packProse(prose string, maxChars, overlapChars int) []string {
	units := sentences(prose, maxChars)
	if len(units) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	size := 0
	for _, u := range units {
		if size > 0 && size+1+len(u) > maxChars {
			chunks = append(chunks, strings.Join(current, " "))
			current, size = overlap(current, overlapChars, maxChars-len(u)-1)
		}
		if size > 0 {
			size++
		}
		current = append(current, u)
		size += len(u)
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// overlap keeps the trailing units that fit in both the overlap window and
// the room left for the next unit.
func overlap(units []string, overlapChars, room int) ([]string, int) {
	limit := min(overlapChars, room)
	size := 0
	start := len(units)
	for i := len(units) - 1; i >= 0; i-- {
		next := size + len(units[i])
		if size > 0 {
			next++
		}
		if next > limit {
			break
		}
		size = next
		start = i
	}
	return append([]string(nil), units[start:]...), size
}

func splitWords(s string, maxChars int) []string {
	var out []string
	var b strings.Builder
	for _, w := range strings.Fields(s) {
		for len(w) > maxChars {
			if b.Len() > 0 {
				out = append(out, b.String())
				b.Reset()
			}
			out = append(out, w[:maxChars])
			w = w[maxChars:]
		}
		if b.Len() > 0 && b.Len()+1+len(w) > maxChars {
			out = append(out, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

// splitCode cuts an oversized fence on line boundaries, re-fencing each part.
func splitCode(block string, maxChars int) []string {
	if len(block) <= maxChars {
		return []string{block}
	}
	lines := strings.Split(block, "\n")
	open := lines[0]
	body := lines[1 : len(lines)-1]

	var out []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			out = append(out, open+"\n"+strings.TrimSuffix(b.String(), "\n")+"\n```")
			b.Reset()
		}
	}
	for _, line := range body {
		if b.Len() > 0 && b.Len()+len(line)+1 > maxChars {
			flush()
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	flush()
	return out
}
