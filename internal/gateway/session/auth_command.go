package session

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"strings"

	"github.com/edimap/ecoledirecte-imap/internal/gateway/auth"
	"github.com/edimap/ecoledirecte-imap/internal/gateway/imapwire"
)

// handleAuthenticate implements AUTHENTICATE PLAIN. Only the PLAIN mechanism
// is supported and an initial response is rejected (clients must wait for
// the continuation), matching §4.6.
func (e *Engine) handleAuthenticate(ctx context.Context, c *Connection, conn net.Conn, rw *imapwire.ResponseWriter, logger *slog.Logger, cmd *imapwire.Command) {
	if len(cmd.Args) == 0 || !strings.EqualFold(cmd.Args[0], "PLAIN") {
		rw.TaggedNo(cmd.Tag, "Unsupported mechanism")
		return
	}
	if len(cmd.Args) > 1 {
		rw.TaggedNo(cmd.Tag, "Unexpected initial response")
		return
	}

	if err := rw.Continuation(""); err != nil {
		return
	}

	message, ok := readAuthData(conn, rw, cmd.Tag)
	if !ok {
		return
	}

	creds, err := auth.ParsePlain(message)
	if err != nil {
		rw.TaggedNo(cmd.Tag, authParseErrorText(err))
		return
	}

	e.completeLogin(ctx, c, rw, logger, cmd.Tag, creds.Username, creds.Password, "Authentication")
}

func authParseErrorText(err error) string {
	switch err {
	case auth.ErrInvalidChallenge:
		return "Invalid challenge string"
	case auth.ErrInvalidIdentity:
		return "Invalid identity"
	case auth.ErrNotUTF8:
		return "Challenge must be valid UTF-8"
	default:
		return "Invalid challenge string"
	}
}

// readAuthData runs the peek/read protocol of §5 against the raw socket: it
// uses a bufio.Reader purely as a peek buffer, separate from the main loop's
// own fixed array, because the main loop's buffer is not reachable from
// here. Any bytes bufio reads past the base64 line are lost to the main
// loop once this function returns — the documented ordering limitation of
// §5/§9, reproduced faithfully rather than engineered away.
func readAuthData(conn net.Conn, rw *imapwire.ResponseWriter, tag string) ([]byte, bool) {
	peeker := bufio.NewReaderSize(conn, 4096)

	n := 1
	for {
		peeked, err := peeker.Peek(n)
		if len(peeked) == 0 && err != nil {
			return nil, false
		}

		result := imapwire.DecodeAuthData(peeked)
		switch result.Status {
		case imapwire.StatusOK:
			if _, err := peeker.Discard(result.Consumed); err != nil {
				return nil, false
			}
			return result.Data, true

		case imapwire.StatusFailed:
			peeker.Discard(result.Consumed)
			rw.TaggedBad(tag, "Invalid BASE64 literal")
			return nil, false

		case imapwire.StatusIncomplete:
			if err != nil {
				// Peek couldn't even return what we asked for (short read at
				// EOF) — nothing more will ever arrive.
				return nil, false
			}
			n = len(peeked) + 1
			if n > peeker.Size() {
				rw.TaggedBad(tag, "Invalid BASE64 literal")
				return nil, false
			}
		}
	}
}
