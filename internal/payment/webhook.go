package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// ErrInvalidSignature is returned for webhook payloads whose signature
// cannot be verified. Such payloads produce no state change.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// SignatureTolerance is the maximum accepted age of a signed timestamp,
// bounding replay of captured deliveries.
const SignatureTolerance = 5 * time.Minute

// Outcome is the result of a payment session.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Event is a verified payment outcome delivered by the provider. Deliveries
// are at-least-once; the same event may arrive any number of times.
type Event struct {
	Type           string
	CorrelationRef string
	Outcome        Outcome
}

// rawEvent is the provider's wire format.
type rawEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ClientReferenceID string `json:"client_reference_id"`
		} `json:"object"`
	} `json:"data"`
}

// eventOutcomes maps provider event types to outcomes. Types not listed are
// acknowledged without any state change.
var eventOutcomes = map[string]Outcome{
	"checkout.session.completed":    OutcomeSucceeded,
	"payment_intent.succeeded":      OutcomeSucceeded,
	"checkout.session.expired":      OutcomeFailed,
	"payment_intent.payment_failed": OutcomeFailed,
}

// VerifyEvent checks the signature header against the raw payload and, if
// valid, parses the event. The header format is "t=<unix>,v1=<hex>", where
// v1 is HMAC-SHA256(secret, "<unix>.<payload>"). Verification is mandatory
// before the payload is trusted.
func VerifyEvent(payload []byte, sigHeader string, secret []byte, now time.Time) (*Event, error) {
	ts, sig, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return nil, err
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > SignatureTolerance || age < -SignatureTolerance {
		return nil, ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	if !hmac.Equal(expected, sig) {
		return nil, ErrInvalidSignature
	}

	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errors.Wrap(err, "decode webhook payload")
	}

	return &Event{
		Type:           raw.Type,
		CorrelationRef: raw.Data.Object.ClientReferenceID,
		Outcome:        eventOutcomes[raw.Type],
	}, nil
}

// Actionable reports whether the event carries an outcome we react to.
func (e *Event) Actionable() bool {
	return e.Outcome == OutcomeSucceeded || e.Outcome == OutcomeFailed
}

func parseSignatureHeader(header string) (ts int64, sig []byte, err error) {
	var tsPart, sigPart string
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			tsPart = v
		case "v1":
			sigPart = v
		}
	}
	if tsPart == "" || sigPart == "" {
		return 0, nil, ErrInvalidSignature
	}

	ts, err = strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return 0, nil, ErrInvalidSignature
	}

	sig, err = hex.DecodeString(sigPart)
	if err != nil {
		return 0, nil, ErrInvalidSignature
	}
	return ts, sig, nil
}

// SignPayload produces a signature header for the given payload, as the
// provider would. Exported for tests and the local provider stub.
func SignPayload(payload []byte, secret []byte, now time.Time) string {
	ts := strconv.FormatInt(now.Unix(), 10)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}
