// Package auth implements SASL PLAIN parsing and the translation of an
// upstream login result into the IMAP session state transition and response
// it produces.
package auth

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// Credentials holds a parsed and UTF-8-validated SASL PLAIN message.
type Credentials struct {
	Username string
	Password string
}

// ErrInvalidChallenge means the message did not contain exactly the three
// NUL-separated fields PLAIN requires (authzid, authcid, password).
var ErrInvalidChallenge = fmt.Errorf("invalid challenge string")

// ErrInvalidIdentity means the authorization identity was present and did
// not match the authentication identity; the gateway does not support
// authenticating as one user and acting as another.
var ErrInvalidIdentity = fmt.Errorf("invalid identity")

// ErrNotUTF8 means the username or password bytes were not valid UTF-8.
var ErrNotUTF8 = fmt.Errorf("challenge must be valid UTF-8")

// ParsePlain decodes a SASL PLAIN initial response: authzid NUL authcid NUL
// password. An empty authzid is always accepted; a non-empty one must equal
// authcid.
func ParsePlain(message []byte) (Credentials, error) {
	parts := bytes.Split(message, []byte{0})
	if len(parts) != 3 {
		return Credentials{}, ErrInvalidChallenge
	}

	identity, username, password := parts[0], parts[1], parts[2]
	if len(identity) != 0 && !bytes.Equal(identity, username) {
		return Credentials{}, ErrInvalidIdentity
	}

	if !utf8.Valid(username) || !utf8.Valid(password) {
		return Credentials{}, ErrNotUTF8
	}

	return Credentials{Username: string(username), Password: string(password)}, nil
}

// Result is the outcome of an upstream login attempt: either a resolved
// user ID and bearer token, or a failure message from the upstream API
// (absent if the upstream rejected the login without a message).
type Result struct {
	Success bool
	UserID  uint32
	Token   string
	Failure *string
}

// Outcome is what the session engine does in response to a Result: which
// state to move to, which authenticated user (if any) it now holds, and the
// tagged response line to send.
type Outcome struct {
	Authenticated bool
	UserID        uint32
	Token         string
	StatusLine    string
	OK            bool
}

// Translate turns an upstream Result into the session-level Outcome.
func Translate(result Result) Outcome {
	if result.Success {
		return Outcome{
			Authenticated: true,
			UserID:        result.UserID,
			Token:         result.Token,
			StatusLine:    "Authentication completed",
			OK:            true,
		}
	}

	if result.Failure == nil {
		return Outcome{StatusLine: "Authentication failed", OK: false}
	}
	return Outcome{StatusLine: fmt.Sprintf("Authentication failed: %s", *result.Failure), OK: false}
}
