package classifier

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/forPelevin/gomoji"
)

// nonWordRe matches everything outside ASCII letters, Cyrillic letters, digits,
// underscore and whitespace. Matched runs are stripped before splitting.
var nonWordRe = regexp.MustCompile(`[^A-Za-zА-Яа-яЁё0-9_\s]+`)

// DefaultTokenizer strips non-word characters (keeping ASCII and Cyrillic letters,
// digits and underscore) and splits the text on whitespace runs.
func DefaultTokenizer(text string) []string {
	return strings.Fields(nonWordRe.ReplaceAllString(text, ""))
}

// WithoutEmoji wraps a tokenizer so that emojis are removed from the text before it
// is tokenized. Useful for user-generated content where emojis carry no category signal.
func WithoutEmoji(next Tokenizer) Tokenizer {
	return func(text string) []string {
		return next(gomoji.RemoveEmojis(text))
	}
}

// CleanControls removes control, format and invisible characters from a given text.
// It doesn't participate in tokenization but is handy for sanitizing input before Learn
// or Categorize when documents come from untrusted sources.
func CleanControls(text string) string {
	var result strings.Builder
	result.Grow(len(text))
	for _, r := range text {
		// skip control and format characters
		if unicode.Is(unicode.Cc, r) || unicode.Is(unicode.Cf, r) {
			continue
		}
		// skip specific ranges of invisible characters
		if (r >= 0x200B && r <= 0x200F) || (r >= 0x2060 && r <= 0x206F) {
			continue
		}
		result.WriteRune(r)
	}
	return result.String()
}
