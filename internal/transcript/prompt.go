package transcript

import "strings"

const (
	promptPrefix    = "The following words may appear in the audio: "
	promptSeparator = ", "

	// MaxPromptTerms bounds the prompt; whisper only reads a short prefix
	// window of context.
	MaxPromptTerms = 50
)

// InitialPrompt builds the recognizer's initial-prompt string from an
// ordered list of vocabulary bias terms. Blank terms are skipped and at most
// MaxPromptTerms are used. No terms yields "".
func InitialPrompt(terms []string) string {
	kept := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		kept = append(kept, term)
		if len(kept) == MaxPromptTerms {
			break
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return promptPrefix + strings.Join(kept, promptSeparator)
}
