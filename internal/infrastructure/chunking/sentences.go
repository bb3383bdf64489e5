package chunking

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// sentence is a half-open byte range that already includes the whitespace
// following it, so consecutive sentences tile the text.
type sentence struct {
	start   int
	end     int
	words   int
	heading bool
}

type sentenceScanner struct {
	text   string
	pos    int
	target int
	max    int

	// pendingEnd is the true end of a sentence that was cut for length.
	pendingEnd int
}

func (sc *sentenceScanner) next() (sentence, bool) {
	if sc.pos >= len(sc.text) {
		return sentence{}, false
	}
	start := sc.pos

	end := sc.pendingEnd
	if end <= start {
		end = skipSpace(sc.text, findSentenceEnd(sc.text, start))
		sc.pendingEnd = end
	}

	words := countWords(sc.text[start:end])
	if words > sc.max {
		if cut := offsetAfterWords(sc.text, start, end, sc.target); cut > start && cut < end {
			end = cut
			words = countWords(sc.text[start:end])
		}
	}
	sc.pos = end

	return sentence{
		start:   start,
		end:     end,
		words:   words,
		heading: atLineStart(sc.text, start) && isSceneHeading(lineAt(sc.text, start)),
	}, true
}

// findSentenceEnd returns the offset just past the sentence that begins at
// start, before any trailing whitespace.
func findSentenceEnd(text string, start int) int {
	i := start
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case isTerminator(r):
			j := skipClosers(text, i+size)
			if j >= len(text) {
				return j
			}
			next, _ := utf8.DecodeRuneInString(text[j:])
			if unicode.IsSpace(next) && !(r == '.' && endsWithAbbreviation(text[start:i])) {
				return j
			}
			i = j
			continue
		case r == '\n' || r == '\f':
			if i > start && lineBreakEndsSentence(text, i) {
				return i
			}
		}
		i += size
	}
	return len(text)
}

func lineBreakEndsSentence(text string, nl int) bool {
	if text[nl] == '\f' {
		return true
	}
	rest := text[nl+1:]
	k := 0
	for k < len(rest) && (rest[k] == ' ' || rest[k] == '\t' || rest[k] == '\r') {
		k++
	}
	if k >= len(rest) || rest[k] == '\n' || rest[k] == '\f' {
		return true
	}
	if isSceneHeading(rest[k:]) {
		return true
	}
	lineStart := strings.LastIndexByte(text[:nl], '\n') + 1
	return isSceneHeading(text[lineStart:nl])
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func skipClosers(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch r {
		case '.', '!', '?', '…', '"', '\'', '»', '”', '’', ')', ']':
			i += size
		default:
			return i
		}
	}
	return i
}

func skipSpace(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(r) {
			return i
		}
		i += size
	}
	return i
}

var abbreviations = map[string]struct{}{
	"int": {}, "ext": {}, "mr": {}, "mrs": {}, "ms": {}, "dr": {}, "st": {}, "vs": {},
	"инт": {}, "нат": {}, "г": {}, "ул": {}, "им": {}, "т": {}, "др": {}, "см": {},
}

// endsWithAbbreviation reports whether prefix ends with a word that is
// normally followed by a period mid-sentence ("INT.", "Mr.", initials).
func endsWithAbbreviation(prefix string) bool {
	end := len(prefix)
	i := end
	for i > 0 {
		r, size := utf8.DecodeLastRuneInString(prefix[:i])
		if !unicode.IsLetter(r) {
			break
		}
		i -= size
	}
	word := prefix[i:end]
	if word == "" {
		return false
	}
	if utf8.RuneCountInString(word) == 1 {
		r, _ := utf8.DecodeRuneInString(word)
		if unicode.IsUpper(r) {
			return true
		}
	}
	_, ok := abbreviations[strings.ToLower(word)]
	return ok
}

var sceneHeadingPrefixes = []string{
	"INT.", "EXT.", "INT/EXT", "INT./EXT.", "I/E.",
	"ИНТ.", "НАТ.", "ИНТ/НАТ", "СЦЕНА ", "SCENE ",
}

func isSceneHeading(line string) bool {
	if nl := strings.IndexByte(line, '\n'); nl >= 0 {
		line = line[:nl]
	}
	line = strings.ToUpper(strings.TrimSpace(line))
	for _, prefix := range sceneHeadingPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func atLineStart(text string, i int) bool {
	return i == 0 || text[i-1] == '\n' || text[i-1] == '\f'
}

func lineAt(text string, i int) string {
	if nl := strings.IndexByte(text[i:], '\n'); nl >= 0 {
		return text[i : i+nl]
	}
	return text[i:]
}

// offsetAfterWords returns the offset right after the whitespace that follows
// the n-th word in text[start:end], or end when there are fewer words.
func offsetAfterWords(text string, start, end, n int) int {
	seen := 0
	inWord := false
	i := start
	for i < end {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			if inWord && seen == n {
				return skipSpace(text[:end], i)
			}
			inWord = false
		} else if !inWord {
			seen++
			inWord = true
		}
		i += size
	}
	return end
}
