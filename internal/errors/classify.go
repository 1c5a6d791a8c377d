package errors

import "strings"

// ProviderErrorKind is the normalized taxonomy for provider-shaped failures
// observed either as returned errors or as error text embedded in a stream.
type ProviderErrorKind string

const (
	ProviderErrorRateLimit           ProviderErrorKind = "rate_limit"
	ProviderErrorQuotaExceeded       ProviderErrorKind = "quota_exceeded"
	ProviderErrorInsufficientBalance ProviderErrorKind = "insufficient_balance"
	ProviderErrorAuth                ProviderErrorKind = "auth"
	ProviderErrorUnknown             ProviderErrorKind = "unknown"
)

// ProviderClassification is the classifier's verdict for a provider failure.
// SuggestFallback signals that switching to an alternate credential or
// provider is likely to help; plain rate limits do not set it because waiting
// usually resolves them.
type ProviderClassification struct {
	Kind            ProviderErrorKind
	Message         string // user-facing message
	SuggestFallback bool
}

// Pattern tables for in-band provider failure text. Providers surface these
// inside streamed content as often as in structured error payloads, so
// matching is substring-based over case-folded text.
var (
	rateLimitPatterns = []string{
		"rate limit",
		"rate_limit",
		"too many requests",
		"429",
	}
	quotaPatterns = []string{
		"quota exceeded",
		"exceeded your current quota",
		"insufficient_quota",
		"quota_exceeded",
	}
	balancePatterns = []string{
		"insufficient balance",
		"insufficient funds",
		"balance is insufficient",
		"payment required",
		"402",
	}
	authPatterns = []string{
		"invalid api key",
		"incorrect api key",
		"invalid x-api-key",
		"authentication fail",
		"unauthorized",
		"401",
	}
)

// ClassifyProviderText inspects raw provider output or error text and maps
// recognized failure patterns to the normalized taxonomy. The second return
// value is false when no pattern matched.
func ClassifyProviderText(text string) (ProviderClassification, bool) {
	lower := strings.ToLower(text)
	if lower == "" {
		return ProviderClassification{Kind: ProviderErrorUnknown}, false
	}

	switch {
	case containsAny(lower, quotaPatterns):
		return ProviderClassification{
			Kind:            ProviderErrorQuotaExceeded,
			Message:         "The provider reports the usage quota is exhausted. Consider switching to an alternate credential or provider.",
			SuggestFallback: true,
		}, true
	case containsAny(lower, balancePatterns):
		return ProviderClassification{
			Kind:            ProviderErrorInsufficientBalance,
			Message:         "The provider reports an insufficient account balance. Consider switching to an alternate credential or provider.",
			SuggestFallback: true,
		}, true
	case containsAny(lower, authPatterns):
		return ProviderClassification{
			Kind:            ProviderErrorAuth,
			Message:         "Authentication with the provider failed. Check the configured credential or switch to an alternate one.",
			SuggestFallback: true,
		}, true
	case containsAny(lower, rateLimitPatterns):
		return ProviderClassification{
			Kind:            ProviderErrorRateLimit,
			Message:         "The provider is rate limiting requests. Retrying after a short wait usually resolves this.",
			SuggestFallback: false,
		}, true
	}

	return ProviderClassification{Kind: ProviderErrorUnknown}, false
}

// ClassifyProviderError classifies a returned error value. Unrecognized
// errors yield an unknown classification carrying the original message.
func ClassifyProviderError(err error) ProviderClassification {
	if err == nil {
		return ProviderClassification{Kind: ProviderErrorUnknown}
	}
	if c, ok := ClassifyProviderText(err.Error()); ok {
		return c
	}
	return ProviderClassification{Kind: ProviderErrorUnknown, Message: err.Error()}
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
