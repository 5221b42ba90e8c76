// Package webhook verifies provider callbacks and processes them
// asynchronously on a bounded worker pool.
//
// The HTTP layer always answers the provider with 200; the status codes
// produced here (400, 401) are internal decisions that are logged and cause
// the delivery to be dropped.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Header names carried by provider callbacks.
const (
	HeaderRequestID = "X-Webhook-Request-Id"
	HeaderUserID    = "X-Webhook-User-Id"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderSignature = "X-Webhook-Signature"
)

// DefaultTolerance is the accepted clock skew of the timestamp header.
const DefaultTolerance = 5 * time.Minute

var (
	// ErrMissingFields is returned when the body or a required header is empty.
	ErrMissingFields = errors.New("webhook: missing required fields")
	// ErrInvalidSignature is returned when the signature does not match.
	ErrInvalidSignature = errors.New("webhook: invalid signature")
	// ErrStaleTimestamp is returned when the timestamp is malformed or outside the tolerance.
	ErrStaleTimestamp = errors.New("webhook: stale or malformed timestamp")
)

// Headers are the signed delivery headers.
type Headers struct {
	RequestID string
	UserID    string
	Timestamp string
	Signature string
}

// HeadersFrom extracts the delivery headers of r.
func HeadersFrom(h http.Header) Headers {
	return Headers{
		RequestID: h.Get(HeaderRequestID),
		UserID:    h.Get(HeaderUserID),
		Timestamp: h.Get(HeaderTimestamp),
		Signature: h.Get(HeaderSignature),
	}
}

// RequestContext is one inbound callback as received.
type RequestContext struct {
	// JobID is the correlation hint carried in the callback URL query.
	JobID   string
	RawBody []byte
	Headers Headers
}

// Verifier checks callback signatures: hex(HMAC-SHA256(secret,
// requestID + "\n" + userID + "\n" + timestamp + "\n" + hex(SHA256(body)))).
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithTolerance sets the accepted timestamp skew. Zero disables the check.
func WithTolerance(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.tolerance = d
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier creates a verifier for secret.
func NewVerifier(secret string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		secret:    []byte(secret),
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify returns 200 for an authentic callback, 400 when fields are missing
// and 401 when the timestamp or signature is rejected.
func (v *Verifier) Verify(rc RequestContext) (int, error) {
	h := rc.Headers
	if len(rc.RawBody) == 0 || h.RequestID == "" || h.UserID == "" || h.Timestamp == "" || h.Signature == "" {
		return http.StatusBadRequest, ErrMissingFields
	}

	if v.tolerance > 0 {
		sec, err := strconv.ParseInt(h.Timestamp, 10, 64)
		if err != nil {
			return http.StatusUnauthorized, fmt.Errorf("%w: %q", ErrStaleTimestamp, h.Timestamp)
		}
		skew := v.now().Sub(time.Unix(sec, 0))
		if skew < -v.tolerance || skew > v.tolerance {
			return http.StatusUnauthorized, fmt.Errorf("%w: skew %s", ErrStaleTimestamp, skew)
		}
	}

	expected := Sign(v.secret, h.RequestID, h.UserID, h.Timestamp, rc.RawBody)
	got, err := hex.DecodeString(h.Signature)
	if err != nil {
		return http.StatusUnauthorized, ErrInvalidSignature
	}
	want, _ := hex.DecodeString(expected)
	if !hmac.Equal(got, want) {
		return http.StatusUnauthorized, ErrInvalidSignature
	}

	return http.StatusOK, nil
}

// Sign computes the hex signature of a delivery.
func Sign(secret []byte, requestID, userID, timestamp string, body []byte) string {
	bodyHash := sha256.Sum256(body)
	mac := hmac.New(sha256.New, secret)
	_, _ = fmt.Fprintf(mac, "%s\n%s\n%s\n%s", requestID, userID, timestamp, hex.EncodeToString(bodyHash[:]))
	return hex.EncodeToString(mac.Sum(nil))
}
