package contextutils

import (
	"strings"
)

// maskedRun replaces the hidden part of a secret so its length is not leaked
const maskedRun = "********"

// MaskAPIKey masks an API key for logs and terminal output. A scheme prefix
// such as "tri_" and the last four characters stay readable.
func MaskAPIKey(apiKey string) string {
	if apiKey == "" {
		return "[EMPTY]"
	}

	scheme := ""
	if i := strings.IndexByte(apiKey, '_'); i > 0 && i < len(apiKey)-1 {
		scheme, apiKey = apiKey[:i+1], apiKey[i+1:]
	}
	if len(apiKey) <= 8 {
		return scheme + maskedRun
	}
	return scheme + maskedRun + apiKey[len(apiKey)-4:]
}
