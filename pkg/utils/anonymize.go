package utils

import "strings"

// AnonymizeToken - masks a secret for logging, keeping visible chars on both ends
func AnonymizeToken(token string, visible int) string {
	if len(token) <= 2*visible {
		return strings.Repeat("*", len(token))
	}

	return token[:visible] + strings.Repeat("*", len(token)-2*visible) + token[len(token)-visible:]
}
