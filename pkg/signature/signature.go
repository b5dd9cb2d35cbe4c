// Copyright 2026 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package signature verifies inbound webhook HMAC signatures, component C1
// of the design. Verification happens against the raw request body, before
// any JSON decoding, per invariant I-SIG.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidSignature is the stable error kind for a missing, malformed, or
// mismatched request signature.
var ErrInvalidSignature = errors.New("signature-invalid")

// ErrPayloadTooLarge is the stable error kind for a webhook body that
// exceeds the ingress size cap, rejected before verification.
var ErrPayloadTooLarge = errors.New("payload-too-large")

const (
	// SHA256Header is the header carrying the HMAC-SHA256 hexdigest,
	// prefixed with "sha256=".
	SHA256Header = "X-Hub-Signature-256"
	// EventTypeHeader carries the event name, e.g. "pull_request".
	EventTypeHeader = "X-GitHub-Event"
	// DeliveryIDHeader carries the unique delivery id for the event.
	DeliveryIDHeader = "X-GitHub-Delivery"

	sha256Prefix = "sha256="
)

// Valid reports whether signature (the verbatim header value) matches the
// HMAC-SHA256 digest of payload keyed by secret. Comparison is constant
// time to avoid leaking timing information about the expected digest.
func Valid(secret string, signature string, payload []byte) bool {
	if secret == "" || signature == "" {
		return false
	}
	if !strings.HasPrefix(signature, sha256Prefix) {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	want := sha256Prefix + hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(signature), []byte(want)) == 1
}
