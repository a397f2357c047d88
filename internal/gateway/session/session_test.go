package session

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/edimap/ecoledirecte-imap/internal/gateway/upstream"
)

// fakeUpstream is a hand-written stand-in for *upstream.Client, following
// this codebase's convention of narrow interfaces backed by test fakes
// rather than a mocking library.
type fakeUpstream struct {
	loginResult upstream.LoginResult
	loginErr    error

	folders    []upstream.Folder
	folderInfo string // raw JSON for the "data" object
}

func (f *fakeUpstream) Login(ctx context.Context, username, password string) (upstream.LoginResult, error) {
	return f.loginResult, f.loginErr
}

func (f *fakeUpstream) ListFolders(ctx context.Context, userID uint32, token string) ([]upstream.Folder, error) {
	return f.folders, nil
}

func (f *fakeUpstream) FolderInfo(ctx context.Context, userID uint32, token string, folderID uint32) (gjson.Result, error) {
	return gjson.Parse(f.folderInfo), nil
}

func (f *fakeUpstream) FolderMessages(ctx context.Context, userID uint32, token string, folderID uint32, kind string, page, pageSize uint32) (gjson.Result, error) {
	return gjson.Result{}, nil
}

// runSession spins up an Engine against one half of a net.Pipe, writes
// clientInput, and returns everything the engine wrote back within the
// given deadline.
func runSession(t *testing.T, e *Engine, clientInput string) string {
	t.Helper()
	serverConn, clientConn := net.Pipe()

	done := make(chan struct{})
	go func() {
		e.Serve(serverConn)
		close(done)
	}()

	clientConn.SetDeadline(time.Now().Add(2 * time.Second))
	reader := bufio.NewReader(clientConn)

	var out strings.Builder
	go func() {
		clientConn.Write([]byte(clientInput))
	}()

	for {
		line, err := reader.ReadString('\n')
		out.WriteString(line)
		if err != nil {
			break
		}
		if strings.HasPrefix(line, "d OK") || strings.Contains(out.String(), "\r\nd OK") {
			break
		}
	}
	clientConn.Close()
	<-done
	return out.String()
}

func TestCapability(t *testing.T) {
	e := New(&fakeUpstream{}, 4096)
	out := runSession(t, e, "a CAPABILITY\r\nd LOGOUT\r\n")
	if !strings.Contains(out, "* CAPABILITY IMAP4REV1 AUTH=PLAIN\r\n") {
		t.Fatalf("missing capability line: %q", out)
	}
	if !strings.Contains(out, "a OK CAPABILITY completed\r\n") {
		t.Fatalf("missing tagged OK: %q", out)
	}
}

func TestLoginSuccess(t *testing.T) {
	fake := &fakeUpstream{loginResult: upstream.LoginResult{Success: true, UserID: 42, Token: "tok"}}
	e := New(fake, 4096)
	out := runSession(t, e, "b LOGIN u p\r\nd LOGOUT\r\n")
	if !strings.Contains(out, "b OK [CAPABILITY IMAP4REV1 AUTH=PLAIN] LOGIN completed\r\n") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestLoginFailureWithMessage(t *testing.T) {
	msg := "Bad credentials"
	fake := &fakeUpstream{loginResult: upstream.LoginResult{Failure: &msg}}
	e := New(fake, 4096)
	out := runSession(t, e, "c LOGIN u p\r\nd LOGOUT\r\n")
	if !strings.Contains(out, "c NO LOGIN failed: Bad credentials\r\n") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestLogout(t *testing.T) {
	e := New(&fakeUpstream{}, 4096)
	out := runSession(t, e, "d LOGOUT\r\n")
	if !strings.Contains(out, "* BYE Logging out!") || !strings.Contains(out, "d OK LOGOUT completed") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestListHierarchyProbe(t *testing.T) {
	fake := &fakeUpstream{loginResult: upstream.LoginResult{Success: true, UserID: 42, Token: "tok"}}
	e := New(fake, 4096)
	out := runSession(t, e, "b LOGIN u p\r\ne LIST \"\" \"\"\r\nd LOGOUT\r\n")
	if !strings.Contains(out, `* LIST (\Noselect) NIL ""`) {
		t.Fatalf("missing hierarchy probe: %q", out)
	}
	if !strings.Contains(out, "e OK LIST completed") {
		t.Fatalf("missing tagged OK: %q", out)
	}
}

func TestSelectInbox(t *testing.T) {
	fake := &fakeUpstream{
		loginResult: upstream.LoginResult{Success: true, UserID: 42, Token: "tok"},
		folderInfo:  `{"pagination":{"messagesRecusCount":3,"messagesRecusNotReadCount":1}}`,
	}
	e := New(fake, 4096)
	out := runSession(t, e, "b LOGIN u p\r\nf SELECT INBOX\r\nd LOGOUT\r\n")

	for _, want := range []string{
		`* FLAGS (\Seen \Answered)`,
		"* 3 EXISTS",
		"* 0 RECENT",
		`* OK [PERMANENTFLAGS (\Seen)] Flags`,
		"f OK [READ-WRITE] SELECT completed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output: %q", want, out)
		}
	}
}

func TestUnauthenticatedCommandRejected(t *testing.T) {
	e := New(&fakeUpstream{}, 4096)
	out := runSession(t, e, "a SELECT INBOX\r\nd LOGOUT\r\n")
	if !strings.Contains(out, "a NO Not supported!") {
		t.Fatalf("unexpected output: %q", out)
	}
}
