package dingtalk

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strconv"
	"strings"
)

// Sign computes the robot signature for the given millisecond timestamp.
// The string to sign is "{timestamp}\n{secret}", keyed by the secret; the
// base64 digest is query-escaped so it can be appended to the webhook URL.
// An empty secret yields an empty signature.
func Sign(secret string, timestampMillis int64) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}

	stringToSign := strconv.FormatInt(timestampMillis, 10) + "\n" + secret

	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(stringToSign))
	return url.QueryEscape(base64.StdEncoding.EncodeToString(h.Sum(nil)))
}

// SignedURL returns the webhook URL carrying timestamp and sign parameters.
// Without a secret the webhook is returned untouched. Robot webhooks carry
// an access_token query already, so the parameters are normally joined with
// "&"; a bare URL gets "?" instead.
func SignedURL(webhook, secret string, timestampMillis int64) string {
	sign := Sign(secret, timestampMillis)
	if sign == "" {
		return webhook
	}

	sep := "&"
	if !strings.Contains(webhook, "?") {
		sep = "?"
	} else if strings.HasSuffix(webhook, "?") || strings.HasSuffix(webhook, "&") {
		sep = ""
	}

	return webhook + sep + "timestamp=" + strconv.FormatInt(timestampMillis, 10) + "&sign=" + sign
}
