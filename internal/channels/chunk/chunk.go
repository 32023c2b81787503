// Package chunk splits outbound text into pieces that fit a chat
// platform's message size limit.
package chunk

import (
	"strings"
	"unicode"
	"unicode/utf16"
)

// TelegramLimit is the maximum length of a Telegram message, in UTF-16
// code units.
const TelegramLimit = 4096

// Text splits text into chunks of at most limit UTF-16 code units, the
// unit Telegram measures messages in. It breaks at the last newline in the
// window, then at the last whitespace, and only splits a word when
// neither exists. Whitespace at a break is dropped. Runes are never split.
//
// Empty text yields nil; a non-positive limit disables splitting.
func Text(text string, limit int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if limit <= 0 || Len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for units(runes) > limit {
		end := fit(runes, limit)
		if end == 0 {
			end = 1
		}
		breakIdx := lastBreak(runes[:end])
		if breakIdx <= 0 {
			breakIdx = end
		}

		piece := strings.TrimRightFunc(string(runes[:breakIdx]), isBlank)
		if piece != "" {
			chunks = append(chunks, piece)
		}

		next := breakIdx
		if next < len(runes) && unicode.IsSpace(runes[next]) {
			next++
		}
		runes = trimLeftBlank(runes[next:])
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// Len returns the length of text in UTF-16 code units.
func Len(text string) int {
	n := 0
	for _, r := range text {
		n += runeLen(r)
	}
	return n
}

func units(runes []rune) int {
	n := 0
	for _, r := range runes {
		n += runeLen(r)
	}
	return n
}

// fit returns how many leading runes fit in limit code units.
func fit(runes []rune, limit int) int {
	n := 0
	for i, r := range runes {
		n += runeLen(r)
		if n > limit {
			return i
		}
	}
	return len(runes)
}

func runeLen(r rune) int {
	if n := len(utf16.AppendRune(nil, r)); n > 0 {
		return n
	}
	return 1
}

// lastBreak returns the index of the last newline in window, or of the
// last other whitespace when there is no newline, or -1.
func lastBreak(window []rune) int {
	lastNewline, lastSpace := -1, -1
	for i, r := range window {
		switch {
		case r == '\n':
			lastNewline = i
		case unicode.IsSpace(r):
			lastSpace = i
		}
	}
	if lastNewline > 0 {
		return lastNewline
	}
	return lastSpace
}

func isBlank(r rune) bool {
	return r == ' ' || r == '\t'
}

func trimLeftBlank(runes []rune) []rune {
	for len(runes) > 0 && isBlank(runes[0]) {
		runes = runes[1:]
	}
	return runes
}
