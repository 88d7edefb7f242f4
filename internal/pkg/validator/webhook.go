package validator

import (
	"errors"
	"net/url"
	"strings"
	"unicode"
)

var (
	ErrWebhookRequired = errors.New("webhook_url is required")
	ErrWebhookInvalid  = errors.New("webhook_url must be an absolute http(s) URL")
	ErrMobileInvalid   = errors.New("mobile numbers may only contain digits, '+' and '-'")
)

// WebhookURL checks that raw is an absolute http or https URL with a host.
func WebhookURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrWebhookRequired
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ErrWebhookInvalid
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrWebhookInvalid
	}
	if u.Host == "" {
		return ErrWebhookInvalid
	}
	return nil
}

// Mobile checks a mention target such as "13800000000" or "+86-13800000000".
func Mobile(m string) error {
	m = strings.TrimSpace(m)
	if m == "" {
		return ErrMobileInvalid
	}
	for _, r := range m {
		if !unicode.IsDigit(r) && r != '+' && r != '-' {
			return ErrMobileInvalid
		}
	}
	return nil
}
