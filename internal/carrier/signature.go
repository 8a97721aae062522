package carrier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	twilioclient "github.com/twilio/twilio-go/client"
)

// ErrSignature means the webhook could not be authenticated: a required
// signature is missing, a signature arrived without a resolvable secret, or
// the signature does not match. Handlers map it to 403 and log it as a
// security event.
var ErrSignature = errors.New("webhook signature verification failed")

// Verifier authenticates inbound webhooks.
//
// Two families are supported:
//   - URL+form HMAC (carrier call/SMS webhooks), delegated to the provider
//     SDK's request validator, which compares in constant time.
//   - Raw-body HMAC-SHA256 with a "sha256=<hex>" header (messaging-platform
//     webhooks), compared in constant time here.
type Verifier struct {
	// allowUnsigned accepts a request with no signature header when no secret
	// is configured for the source. Explicit local/dev relaxation; production
	// config rejects it at load time.
	allowUnsigned bool
}

func NewVerifier(allowUnsigned bool) *Verifier {
	return &Verifier{allowUnsigned: allowUnsigned}
}

// VerifyForm authenticates a form-encoded webhook against the full request
// URL and its POST parameters.
func (v *Verifier) VerifyForm(fullURL string, params map[string]string, signature, secret string) error {
	signature = strings.TrimSpace(signature)

	if secret == "" {
		if signature == "" && v.allowUnsigned {
			return nil
		}
		// A signature we cannot check is as bad as a missing one.
		return ErrSignature
	}
	if signature == "" {
		return ErrSignature
	}

	rv := twilioclient.NewRequestValidator(secret)
	if !rv.Validate(fullURL, params, signature) {
		return ErrSignature
	}
	return nil
}

// VerifyBody authenticates a raw JSON body against a "sha256=<hex>" header.
func (v *Verifier) VerifyBody(body []byte, header, secret string) error {
	header = strings.TrimSpace(header)

	if secret == "" {
		if header == "" && v.allowUnsigned {
			return nil
		}
		return ErrSignature
	}
	if !strings.HasPrefix(header, "sha256=") {
		return ErrSignature
	}

	want, err := hex.DecodeString(strings.TrimPrefix(header, "sha256="))
	if err != nil {
		return ErrSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), want) {
		return ErrSignature
	}
	return nil
}

// SignBody produces the "sha256=<hex>" header value for a body and secret.
// Exposed for tests and for signing outbound callbacks.
func SignBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
