package session

import (
	"context"
	"log/slog"

	"github.com/edimap/ecoledirecte-imap/common/redact"
	"github.com/edimap/ecoledirecte-imap/internal/gateway/auth"
	"github.com/edimap/ecoledirecte-imap/internal/gateway/imapwire"
	"github.com/edimap/ecoledirecte-imap/internal/gateway/upstream"
)

// handleLogin implements LOGIN user pass, delegating straight to the same
// translator AUTHENTICATE uses.
func (e *Engine) handleLogin(ctx context.Context, c *Connection, rw *imapwire.ResponseWriter, logger *slog.Logger, cmd *imapwire.Command) {
	if len(cmd.Args) != 2 {
		rw.TaggedBad(cmd.Tag, "LOGIN requires a username and password")
		return
	}
	e.completeLogin(ctx, c, rw, logger, cmd.Tag, cmd.Args[0], cmd.Args[1], "LOGIN")
}

// completeLogin calls the upstream login, translates the result, applies
// any state change, and writes the tagged response. label distinguishes the
// "Authentication"/"LOGIN" wording AUTHENTICATE and LOGIN each use.
func (e *Engine) completeLogin(ctx context.Context, c *Connection, rw *imapwire.ResponseWriter, logger *slog.Logger, tag, username, password, label string) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	loginResult, err := e.upstream.Login(ctx, username, password)
	if err != nil {
		logger.Warn("upstream login unavailable", "err", redact.String(err.Error(), password))
		rw.TaggedNo(tag, label+" failed")
		return
	}

	result := translateLoginResult(loginResult)
	outcome := auth.Translate(result)

	if outcome.Authenticated {
		c.state = StateAuthenticated
		c.user = &user{id: outcome.UserID, token: outcome.Token}
		rw.Tagged(tag, "OK", "[CAPABILITY IMAP4REV1 AUTH=PLAIN] "+label+" completed")
		return
	}

	rw.TaggedNo(tag, label+" failed"+redact.String(suffixFromOutcome(outcome), password))
}

func translateLoginResult(r upstream.LoginResult) auth.Result {
	return auth.Result{
		Success: r.Success,
		UserID:  r.UserID,
		Token:   r.Token,
		Failure: r.Failure,
	}
}

// suffixFromOutcome extracts the ": <reason>" suffix (if any) from an
// auth.Outcome's generic "Authentication failed[...]" status line so LOGIN
// can reuse it under its own "LOGIN failed[...]" wording.
func suffixFromOutcome(o auth.Outcome) string {
	const prefix = "Authentication failed"
	if len(o.StatusLine) > len(prefix) {
		return o.StatusLine[len(prefix):]
	}
	return ""
}
