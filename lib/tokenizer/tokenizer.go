// Package tokenizer splits text on word boundaries for input-length checks.
// A token is either a run of letters/digits (apostrophes and hyphens inside a
// word do not break it) or a single punctuation mark. Whitespace separates and
// is never a token. The count is therefore closer to what language models see
// than a raw character count.
package tokenizer

import "unicode"

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// joins two word runs into one token when it sits between them, as in
// "don't" or "well-known"
func isJoiner(r rune) bool {
	return r == '\'' || r == '’' || r == '-'
}

// Tokenize splits text into word and punctuation tokens.
func Tokenize(text string) []string {
	var tokens []string
	runes := []rune(text)

	i := 0
	for i < len(runes) {
		r := runes[i]

		if unicode.IsSpace(r) {
			i++
			continue
		}

		if isWordRune(r) {
			start := i
			for i < len(runes) {
				if isWordRune(runes[i]) {
					i++
					continue
				}
				if isJoiner(runes[i]) && i+1 < len(runes) && isWordRune(runes[i+1]) {
					i += 2
					continue
				}
				break
			}
			tokens = append(tokens, string(runes[start:i]))
			continue
		}

		// everything else is a one-rune punctuation token
		tokens = append(tokens, string(r))
		i++
	}

	return tokens
}

// Count returns the number of tokens in text.
func Count(text string) int {
	return len(Tokenize(text))
}

// Validator rejects empty or over-length input by token count.
type Validator struct {
	maxTokens int
}

func NewValidator(maxTokens int) *Validator {
	return &Validator{maxTokens: maxTokens}
}

// Validate reports whether the tokenized length of text is within (0, max].
func (v *Validator) Validate(text string) bool {
	n := Count(text)
	return n > 0 && n <= v.maxTokens
}
