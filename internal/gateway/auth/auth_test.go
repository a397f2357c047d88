package auth

import (
	"errors"
	"testing"
)

func TestParsePlain(t *testing.T) {
	msg := []byte("\x00alice\x00hunter2")
	creds, err := ParsePlain(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.Username != "alice" || creds.Password != "hunter2" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestParsePlainWithMatchingIdentity(t *testing.T) {
	msg := []byte("alice\x00alice\x00hunter2")
	creds, err := ParsePlain(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.Username != "alice" {
		t.Fatalf("unexpected username: %q", creds.Username)
	}
}

func TestParsePlainMismatchedIdentity(t *testing.T) {
	msg := []byte("bob\x00alice\x00hunter2")
	_, err := ParsePlain(msg)
	if !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}

func TestParsePlainWrongFieldCount(t *testing.T) {
	_, err := ParsePlain([]byte("alice\x00hunter2"))
	if !errors.Is(err, ErrInvalidChallenge) {
		t.Fatalf("expected ErrInvalidChallenge, got %v", err)
	}
}

func TestParsePlainInvalidUTF8(t *testing.T) {
	_, err := ParsePlain([]byte{0, 0xff, 0xfe, 0, 'p'})
	if !errors.Is(err, ErrNotUTF8) {
		t.Fatalf("expected ErrNotUTF8, got %v", err)
	}
}

func TestTranslateSuccess(t *testing.T) {
	out := Translate(Result{Success: true, UserID: 7, Token: "abc"})
	if !out.Authenticated || out.UserID != 7 || out.Token != "abc" || !out.OK {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.StatusLine != "Authentication completed" {
		t.Fatalf("unexpected status line: %q", out.StatusLine)
	}
}

func TestTranslateFailureWithMessage(t *testing.T) {
	msg := "bad credentials"
	out := Translate(Result{Failure: &msg})
	if out.Authenticated || out.OK {
		t.Fatalf("expected failure outcome, got %+v", out)
	}
	if out.StatusLine != "Authentication failed: bad credentials" {
		t.Fatalf("unexpected status line: %q", out.StatusLine)
	}
}

func TestTranslateFailureWithoutMessage(t *testing.T) {
	out := Translate(Result{})
	if out.StatusLine != "Authentication failed" {
		t.Fatalf("unexpected status line: %q", out.StatusLine)
	}
}
