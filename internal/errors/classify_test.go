package errors

import (
	"errors"
	"testing"
)

func TestClassifyProviderText(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantKind     ProviderErrorKind
		wantFallback bool
		wantMatch    bool
	}{
		{"rate limit", "Error: rate limit exceeded, retry after 20s", ProviderErrorRateLimit, false, true},
		{"http 429", "upstream returned 429 Too Many Requests", ProviderErrorRateLimit, false, true},
		{"quota", "You exceeded your current quota, please check your plan", ProviderErrorQuotaExceeded, true, true},
		{"insufficient quota code", `{"error":{"code":"insufficient_quota"}}`, ProviderErrorQuotaExceeded, true, true},
		{"balance", "Insufficient Balance to complete this request", ProviderErrorInsufficientBalance, true, true},
		{"payment required", "402 payment required", ProviderErrorInsufficientBalance, true, true},
		{"auth", "Incorrect API key provided", ProviderErrorAuth, true, true},
		{"unauthorized", "401 Unauthorized", ProviderErrorAuth, true, true},
		{"no match", "connection reset by peer", ProviderErrorUnknown, false, false},
		{"empty", "", ProviderErrorUnknown, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ClassifyProviderText(tt.text)
			if ok != tt.wantMatch {
				t.Fatalf("matched = %v, want %v", ok, tt.wantMatch)
			}
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", got.Kind, tt.wantKind)
			}
			if got.SuggestFallback != tt.wantFallback {
				t.Errorf("SuggestFallback = %v, want %v", got.SuggestFallback, tt.wantFallback)
			}
		})
	}
}

func TestClassifyProviderError(t *testing.T) {
	c := ClassifyProviderError(errors.New("rate_limit_exceeded"))
	if c.Kind != ProviderErrorRateLimit {
		t.Errorf("Kind = %q, want rate_limit", c.Kind)
	}

	c = ClassifyProviderError(errors.New("something odd happened"))
	if c.Kind != ProviderErrorUnknown {
		t.Errorf("Kind = %q, want unknown", c.Kind)
	}
	if c.Message != "something odd happened" {
		t.Errorf("Message = %q, want original error text", c.Message)
	}

	c = ClassifyProviderError(nil)
	if c.Kind != ProviderErrorUnknown {
		t.Errorf("Kind = %q, want unknown for nil", c.Kind)
	}
}
