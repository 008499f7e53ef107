// internal/seeder/processor.go
package seeder

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinChunkSize is the smallest chunk size the splitter accepts. Smaller
// requests are raised to it.
const MinChunkSize = 100

// ContentProcessor handles text processing and cleanup
type ContentProcessor struct {
	inlineWhitespace *regexp.Regexp
	htmlTags         *regexp.Regexp
	sentenceEnd      *regexp.Regexp
}

func NewContentProcessor() *ContentProcessor {
	return &ContentProcessor{
		inlineWhitespace: regexp.MustCompile(`[^\S\n]+`),
		htmlTags:         regexp.MustCompile(`<[^>]*>`),
		sentenceEnd:      regexp.MustCompile(`([.!?])\s+`),
	}
}

// CleanContent strips markup, collapses runs of spaces, and keeps at most
// one blank line between paragraphs.
func (cp *ContentProcessor) CleanContent(content string) string {
	content = cp.htmlTags.ReplaceAllString(content, "")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\u00a0", " ")

	lines := strings.Split(content, "\n")
	cleaned := make([]string, 0, len(lines))
	blank := false

	for _, line := range lines {
		line = strings.TrimSpace(cp.inlineWhitespace.ReplaceAllString(line, " "))
		if line == "" {
			if !blank && len(cleaned) > 0 {
				cleaned = append(cleaned, "")
			}
			blank = true
			continue
		}
		blank = false
		cleaned = append(cleaned, line)
	}

	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

// SplitIntoChunks packs paragraphs into chunks of at most maxChunkSize bytes.
// Each chunk after the first starts with up to overlap bytes of the end of
// the previous one, cut at a word boundary.
func (cp *ContentProcessor) SplitIntoChunks(content string, maxChunkSize, overlap int) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if maxChunkSize < MinChunkSize {
		maxChunkSize = MinChunkSize
	}
	if overlap > maxChunkSize/2 {
		overlap = maxChunkSize / 2
	}
	if overlap < 0 {
		overlap = 0
	}
	if len(content) <= maxChunkSize {
		return []string{content}
	}

	// Every piece must fit next to an overlap tail and its separator.
	limit := maxChunkSize - overlap - 2
	var pieces []string
	for _, paragraph := range strings.Split(content, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if len(paragraph) <= limit {
			pieces = append(pieces, paragraph)
			continue
		}
		pieces = append(pieces, cp.splitBySentences(paragraph, limit)...)
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunk := strings.TrimSpace(current.String())
		chunks = append(chunks, chunk)
		current.Reset()
		if tail := overlapTail(chunk, overlap); tail != "" {
			current.WriteString(tail)
		}
	}

	fresh := true
	for _, piece := range pieces {
		if !fresh && current.Len()+len(piece)+2 > maxChunkSize {
			flush()
			fresh = true
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(piece)
		fresh = false
	}
	if !fresh {
		flush()
	}

	return chunks
}

// splitBySentences splits text by sentences, hard-wrapping any sentence that
// is still longer than maxSize
func (cp *ContentProcessor) splitBySentences(text string, maxSize int) []string {
	sentences := strings.Split(cp.sentenceEnd.ReplaceAllString(text, "$1\n"), "\n")
	var chunks []string
	var current strings.Builder

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		for len(sentence) > maxSize {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			cut := strings.LastIndexFunc(sentence[:maxSize], unicode.IsSpace)
			if cut <= 0 {
				cut = maxSize
				for cut > 0 && !utf8.RuneStart(sentence[cut]) {
					cut--
				}
				if cut == 0 {
					cut = maxSize
				}
			}
			chunks = append(chunks, strings.TrimSpace(sentence[:cut]))
			sentence = strings.TrimSpace(sentence[cut:])
		}
		if sentence == "" {
			continue
		}

		if current.Len() > 0 && current.Len()+len(sentence)+1 > maxSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// overlapTail returns at most the last n bytes of s, starting at a word
// boundary or, failing that, a rune boundary.
func overlapTail(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return ""
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	tail := s[start:]
	if i := strings.IndexFunc(tail, unicode.IsSpace); i >= 0 {
		tail = tail[i:]
	}
	return strings.TrimSpace(tail)
}

// CountWords estimates word count in text
func (cp *ContentProcessor) CountWords(text string) int {
	if text == "" {
		return 0
	}

	words := strings.FieldsFunc(text, func(c rune) bool {
		return unicode.IsSpace(c) || unicode.IsPunct(c)
	})

	// Filter out very short "words"
	count := 0
	for _, word := range words {
		if len(word) > 1 {
			count++
		}
	}

	return count
}

// Categorize assigns a coarse topic used as fragment metadata
func (cp *ContentProcessor) Categorize(content string) string {
	contentLower := strings.ToLower(content)
	categories := []struct {
		name     string
		keywords []string
	}{
		{"admissions", []string{"apply", "application", "admission", "deadline"}},
		{"internship", []string{"internship", "industry partner", "applied research"}},
		{"courses", []string{"course", "timetable", "curriculum", "elective"}},
		{"funding", []string{"tuition", "fee", "funding", "scholarship"}},
	}
	for _, c := range categories {
		for _, kw := range c.keywords {
			if strings.Contains(contentLower, kw) {
				return c.name
			}
		}
	}
	return "general"
}
