// Package session implements the per-connection IMAP state machine: the
// read-buffer discipline that drives internal/gateway/imapwire, command
// dispatch under the current protocol state, and translation of each
// command into upstream API calls.
package session

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/tidwall/gjson"

	"github.com/edimap/ecoledirecte-imap/common/trace"
	"github.com/edimap/ecoledirecte-imap/internal/gateway/imapwire"
	"github.com/edimap/ecoledirecte-imap/internal/gateway/upstream"
)

// State is the connection's position in the IMAP4rev1 state machine. There
// is no explicit Greeting state: the greeting is written once before the
// main loop starts, and NotAuthenticated is the first state a command can
// ever observe.
type State int

const (
	StateNotAuthenticated State = iota
	StateAuthenticated
	StateSelected
	StateLogout
)

// upstreamClient is the subset of *upstream.Client the session engine
// drives, narrowed so tests can substitute a fake.
type upstreamClient interface {
	Login(ctx context.Context, username, password string) (upstream.LoginResult, error)
	ListFolders(ctx context.Context, userID uint32, token string) ([]upstream.Folder, error)
	FolderInfo(ctx context.Context, userID uint32, token string, folderID uint32) (gjson.Result, error)
	FolderMessages(ctx context.Context, userID uint32, token string, folderID uint32, kind string, page, pageSize uint32) (gjson.Result, error)
}

// user is the authenticated principal a Connection carries once login
// succeeds.
type user struct {
	id    uint32
	token string
}

// selectedMailbox records which mailbox a Connection has open and whether it
// was opened read-only (via EXAMINE).
type selectedMailbox struct {
	name     string
	readOnly bool
}

// Connection is the state a single accepted socket owns for its entire
// lifetime: protocol state, authenticated user (if any), and the currently
// selected mailbox (if any). Nothing here is shared with any other
// connection.
type Connection struct {
	state    State
	user     *user
	selected *selectedMailbox

	traceID    string
	remoteAddr string
}

// Engine drives connections against a shared upstream client. Engine itself
// holds no per-connection state and is safe for concurrent use by many
// connection workers.
type Engine struct {
	upstream       upstreamClient
	readBufferSize int
}

// New builds an Engine. readBufferSize is the per-connection command read
// buffer; §5 of the design requires at least 1 KiB.
func New(upstreamClient upstreamClient, readBufferSize int) *Engine {
	if readBufferSize < 1024 {
		readBufferSize = 1024
	}
	return &Engine{upstream: upstreamClient, readBufferSize: readBufferSize}
}

const greeting = `OK [CAPABILITY IMAP4REV1 AUTH=PLAIN] ecoledirecte-imap ready`

// Serve runs one connection to completion: writes the greeting, then loops
// decoding and dispatching commands until LOGOUT, a fatal protocol error, or
// the client closes the socket. It always closes conn before returning.
func (e *Engine) Serve(conn net.Conn) {
	defer conn.Close()

	traceID := trace.GenerateID()
	remote := conn.RemoteAddr().String()
	logger := slog.With("trace_id", traceID, "remote_addr", remote)

	bw := bufio.NewWriter(conn)
	rw := imapwire.NewResponseWriter(bw)

	c := &Connection{state: StateNotAuthenticated, traceID: traceID, remoteAddr: remote}

	if err := rw.Greeting(greeting); err != nil {
		logger.Debug("failed to write greeting", "err", err)
		return
	}

	buf := make([]byte, e.readBufferSize)
	cursor := 0

	for {
		result := imapwire.DecodeCommand(buf[:cursor])
		switch result.Status {
		case imapwire.StatusOK:
			e.dispatch(context.Background(), c, conn, rw, logger, result.Command)
			copy(buf, buf[result.Consumed:cursor])
			cursor -= result.Consumed
			if c.state == StateLogout {
				return
			}

		case imapwire.StatusIncomplete:
			if cursor == len(buf) {
				logger.Warn("command exceeds read buffer capacity, closing connection")
				return
			}
			n, err := conn.Read(buf[cursor:])
			if n == 0 || err != nil {
				return
			}
			cursor += n

		case imapwire.StatusFailed:
			rw.Untagged("BAD Parsing failed")
			cursor = 0

		case imapwire.StatusLiteralFound:
			logger.Warn("literal syntax in command, closing connection", "tag", result.Literal.Tag)
			rw.TaggedBad(result.Literal.Tag, "Literal syntax not supported")
			return
		}
	}
}

// dispatch routes a decoded command to its handler under the connection's
// current state. Every branch completes with exactly one tagged response,
// per §7's propagation policy: no handler panics on well-formed client
// input, and upstream outages surface as NO rather than terminating the
// worker.
func (e *Engine) dispatch(ctx context.Context, c *Connection, conn net.Conn, rw *imapwire.ResponseWriter, logger *slog.Logger, cmd *imapwire.Command) {
	ctx = trace.WithTraceID(ctx, c.traceID)
	logger = logger.With("cmd", cmd.Name, "tag", cmd.Tag)

	switch cmd.Name {
	case "CAPABILITY":
		rw.Untagged("CAPABILITY IMAP4REV1 AUTH=PLAIN")
		rw.TaggedOK(cmd.Tag, "CAPABILITY completed")
		return
	case "NOOP":
		rw.TaggedOK(cmd.Tag, "NOOP completed")
		return
	case "LOGOUT":
		rw.Untagged("BYE Logging out!")
		rw.TaggedOK(cmd.Tag, "LOGOUT completed")
		c.state = StateLogout
		return
	}

	if c.state == StateNotAuthenticated {
		switch cmd.Name {
		case "AUTHENTICATE":
			e.handleAuthenticate(ctx, c, conn, rw, logger, cmd)
			return
		case "LOGIN":
			e.handleLogin(ctx, c, rw, logger, cmd)
			return
		default:
			rw.TaggedNo(cmd.Tag, "Not supported!")
			return
		}
	}

	// Authenticated or Selected from here on.
	switch cmd.Name {
	case "SELECT":
		e.handleSelectOrExamine(ctx, c, rw, logger, cmd, false)
		return
	case "EXAMINE":
		e.handleSelectOrExamine(ctx, c, rw, logger, cmd, true)
		return
	case "STATUS":
		e.handleStatus(ctx, c, rw, logger, cmd)
		return
	case "LIST":
		e.handleList(ctx, c, rw, logger, cmd)
		return
	case "CREATE", "DELETE", "RENAME":
		rw.TaggedNo(cmd.Tag, "Not supported!")
		return
	}

	if c.state != StateSelected {
		rw.TaggedNo(cmd.Tag, "Not supported!")
		return
	}

	switch cmd.Name {
	case "CHECK":
		rw.TaggedOK(cmd.Tag, "CHECK completed")
	case "CLOSE":
		c.selected = nil
		c.state = StateAuthenticated
		rw.TaggedOK(cmd.Tag, "CLOSE completed")
	case "FETCH":
		e.handleFetch(ctx, c, rw, logger, cmd, false)
	case "UID":
		if len(cmd.Args) > 0 && cmd.Args[0] == "FETCH" {
			e.handleFetch(ctx, c, rw, logger, cmd, true)
			return
		}
		rw.TaggedNo(cmd.Tag, "Not supported!")
	case "SEARCH":
		rw.TaggedNo(cmd.Tag, "Not supported!")
	default:
		rw.TaggedNo(cmd.Tag, "Not supported!")
	}
}

// withTimeout bounds a single upstream-backed command so a stalled upstream
// call cannot wedge the connection forever.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 30*time.Second)
}
