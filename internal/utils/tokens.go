package utils

// Token estimation used for prompt budgeting and cost logs.
// 1 token ~= 4 characters; provider usage replaces it when reported.

// CountTokens estimates the number of tokens in the given text.
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	// Ensure at least 1 token for any non-empty text
	tokens := len([]rune(text)) / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// TruncateToTokenLimit naively truncates text to roughly fit within a token limit.
func TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	// Expand limit to character count using the same 4 chars per token heuristic
	charLimit := limit * 4
	if charLimit >= len(runes) {
		return text
	}
	return string(runes[:charLimit])
}

// TruncateWithNote cuts text to limit tokens and appends a marker when it did.
func TruncateWithNote(text string, limit int) string {
	out := TruncateToTokenLimit(text, limit)
	if len(out) < len(text) {
		return out + "\n...[truncated]"
	}
	return out
}
