package http

import "strings"

const redactedPlaceholder = "[REDACTED]"

var sensitiveKeyFragments = []string{"token", "secret", "password", "key", "authorization", "cookie", "credential", "session"}

var sensitiveValueIndicators = []string{"bearer ", "ghp_", "sk-", "xoxb-", "xoxp-", "-----begin", "api_key", "apikey", "access_token", "refresh_token"}

// sanitizeArguments deep-copies a tool-call argument map and redacts values
// that appear to contain secrets before they go out on a client stream.
func sanitizeArguments(arguments map[string]any) map[string]any {
	if len(arguments) == 0 {
		return nil
	}

	sanitized := make(map[string]any, len(arguments))
	for key, value := range arguments {
		sanitized[key] = sanitizeValue(key, value)
	}
	return sanitized
}

func sanitizeValue(parentKey string, value any) any {
	if isSensitiveKey(parentKey) {
		return redactedPlaceholder
	}

	switch typed := value.(type) {
	case map[string]any:
		return sanitizeArguments(typed)
	case []any:
		sanitizedSlice := make([]any, len(typed))
		for i, item := range typed {
			sanitizedSlice[i] = sanitizeValue("", item)
		}
		return sanitizedSlice
	case string:
		if looksLikeSecret(typed) {
			return redactedPlaceholder
		}
		return typed
	default:
		return typed
	}
}

func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lowerKey, fragment) {
			return true
		}
	}
	return false
}

func looksLikeSecret(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false
	}

	lowerValue := strings.ToLower(trimmed)
	for _, indicator := range sensitiveValueIndicators {
		if strings.Contains(lowerValue, indicator) {
			return true
		}
	}

	// Long strings without whitespace are likely tokens or hashes.
	if len(trimmed) >= 32 && !strings.ContainsAny(trimmed, " \n\t") {
		return true
	}
	return false
}
