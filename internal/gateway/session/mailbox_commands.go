package session

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/edimap/ecoledirecte-imap/internal/gateway/imapwire"
	"github.com/edimap/ecoledirecte-imap/internal/gateway/mailbox"
	"github.com/edimap/ecoledirecte-imap/internal/gateway/upstream"
)

// normalizeMailboxName makes mailbox name lookups case-insensitive for
// INBOX while leaving every other name (pseudo-folders, vendor classeurs)
// case-sensitive, and always renders the canonical spelling on output.
func normalizeMailboxName(name string) string {
	if strings.EqualFold(name, mailbox.Inbox) {
		return mailbox.Inbox
	}
	return name
}

func foldersToMap(folders []upstream.Folder) map[string]uint32 {
	m := make(map[string]uint32, len(folders))
	for _, f := range folders {
		m[f.Label] = f.ID
	}
	return m
}

// buildFolderTable rebuilds the folder table from a fresh ListFolders call.
// It is never cached across commands, per the Non-goal on local caching.
func (e *Engine) buildFolderTable(ctx context.Context, c *Connection) (*mailbox.Table, error) {
	folders, err := e.upstream.ListFolders(ctx, c.user.id, c.user.token)
	if err != nil {
		return nil, err
	}
	return mailbox.NewTable(foldersToMap(folders)), nil
}

func writeMailboxInfo(rw *imapwire.ResponseWriter, info mailbox.Info) {
	rw.Untagged(`FLAGS (\Seen \Answered)`)
	rw.Untaggedf("%d EXISTS", info.Exists)
	rw.Untaggedf("%d RECENT", info.Recent)
	rw.Untagged(`OK [PERMANENTFLAGS (\Seen)] Flags`)
	rw.Untaggedf("OK [UIDVALIDITY %d] Valide en %d-%d", info.UIDValidity, info.UIDValidity, info.UIDValidity+1)
	if info.HasUnseen {
		rw.Untaggedf("OK [UNSEEN %d] Unseen", info.Unseen)
	}
}

// handleSelectOrExamine implements both SELECT and EXAMINE, which share
// every untagged response and differ only in the tagged completion text and
// whether the resulting Selected state is read-only.
func (e *Engine) handleSelectOrExamine(ctx context.Context, c *Connection, rw *imapwire.ResponseWriter, logger *slog.Logger, cmd *imapwire.Command, readOnly bool) {
	verb := "SELECT"
	if readOnly {
		verb = "EXAMINE"
	}
	if len(cmd.Args) != 1 {
		rw.TaggedBad(cmd.Tag, verb+" requires a mailbox name")
		return
	}
	name := normalizeMailboxName(cmd.Args[0])

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	table, err := e.buildFolderTable(ctx, c)
	if err != nil {
		logger.Warn("upstream unavailable during "+verb, "err", err)
		rw.TaggedNo(cmd.Tag, verb+" failed")
		return
	}

	folder, ok := table.Resolve(name)
	if !ok {
		rw.TaggedNo(cmd.Tag, "Mailbox does not exist")
		return
	}

	folderInfo, err := e.upstream.FolderInfo(ctx, c.user.id, c.user.token, folder.ID)
	if err != nil {
		logger.Warn("upstream unavailable during "+verb, "err", err)
		rw.TaggedNo(cmd.Tag, verb+" failed")
		return
	}

	info := mailbox.BuildInfo(name, folderInfo, time.Now())
	writeMailboxInfo(rw, info)

	c.selected = &selectedMailbox{name: name, readOnly: readOnly}
	c.state = StateSelected

	if readOnly {
		rw.Tagged(cmd.Tag, "OK", `[READ-ONLY] EXAMINE completed`)
	} else {
		rw.Tagged(cmd.Tag, "OK", `[READ-WRITE] SELECT completed`)
	}
}

var statusItemNames = []string{"MESSAGES", "RECENT", "UIDNEXT", "UIDVALIDITY", "UNSEEN"}

// handleStatus implements STATUS mailbox (items). It mirrors SELECT's
// untagged response set rather than inventing new semantics: MESSAGES,
// RECENT (always 0), UIDNEXT (highest existing count + 1 — the upstream API
// is append-only per folder and exposes no explicit next-UID counter),
// UIDVALIDITY (the school year), and UNSEEN (received pseudo-folder only).
func (e *Engine) handleStatus(ctx context.Context, c *Connection, rw *imapwire.ResponseWriter, logger *slog.Logger, cmd *imapwire.Command) {
	if len(cmd.Args) < 2 {
		rw.TaggedBad(cmd.Tag, "STATUS requires a mailbox name and item list")
		return
	}
	name := normalizeMailboxName(cmd.Args[0])
	requested := parseParenList(cmd.Args[1:])

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	table, err := e.buildFolderTable(ctx, c)
	if err != nil {
		logger.Warn("upstream unavailable during STATUS", "err", err)
		rw.TaggedNo(cmd.Tag, "STATUS failed")
		return
	}

	folder, ok := table.Resolve(name)
	if !ok {
		rw.TaggedNo(cmd.Tag, "Mailbox does not exist")
		return
	}

	folderInfo, err := e.upstream.FolderInfo(ctx, c.user.id, c.user.token, folder.ID)
	if err != nil {
		logger.Warn("upstream unavailable during STATUS", "err", err)
		rw.TaggedNo(cmd.Tag, "STATUS failed")
		return
	}

	info := mailbox.BuildInfo(name, folderInfo, time.Now())

	wanted := make(map[string]bool, len(requested))
	for _, item := range requested {
		wanted[strings.ToUpper(item)] = true
	}

	var parts []string
	for _, item := range statusItemNames {
		if !wanted[item] {
			continue
		}
		switch item {
		case "MESSAGES":
			parts = append(parts, fmt.Sprintf("MESSAGES %d", info.Exists))
		case "RECENT":
			parts = append(parts, fmt.Sprintf("RECENT %d", info.Recent))
		case "UIDNEXT":
			parts = append(parts, fmt.Sprintf("UIDNEXT %d", info.Exists+1))
		case "UIDVALIDITY":
			parts = append(parts, fmt.Sprintf("UIDVALIDITY %d", info.UIDValidity))
		case "UNSEEN":
			if info.HasUnseen {
				parts = append(parts, fmt.Sprintf("UNSEEN %d", info.Unseen))
			}
		}
	}

	rw.Untaggedf("STATUS %s (%s)", formatMailboxName(name), strings.Join(parts, " "))
	rw.TaggedOK(cmd.Tag, "STATUS completed")
}

// handleList implements LIST ref pattern. An empty pattern is the
// hierarchy-delimiter probe; any other pattern is matched against every
// known mailbox name using RFC 3501 "*"/"%" glob semantics (this gateway's
// flat namespace has no hierarchy delimiter, so "%" behaves like "*").
func (e *Engine) handleList(ctx context.Context, c *Connection, rw *imapwire.ResponseWriter, logger *slog.Logger, cmd *imapwire.Command) {
	if len(cmd.Args) != 2 {
		rw.TaggedBad(cmd.Tag, "LIST requires a reference and a mailbox pattern")
		return
	}
	pattern := cmd.Args[1]

	if pattern == "" {
		rw.Untagged(`LIST (\Noselect) NIL ""`)
		rw.TaggedOK(cmd.Tag, "LIST completed")
		return
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	table, err := e.buildFolderTable(ctx, c)
	if err != nil {
		logger.Warn("upstream unavailable during LIST", "err", err)
		rw.TaggedNo(cmd.Tag, "LIST failed")
		return
	}

	re, err := compileListPattern(pattern)
	if err != nil {
		rw.TaggedBad(cmd.Tag, "Invalid mailbox pattern")
		return
	}

	names := table.Names()
	sort.Strings(names)
	for _, name := range names {
		if re.MatchString(name) {
			rw.Untaggedf("LIST () NIL %s", formatMailboxName(name))
		}
	}
	rw.TaggedOK(cmd.Tag, "LIST completed")
}

// parseParenList strips a leading "(" and trailing ")" from a token
// sequence produced by the command tokenizer (which does not itself group
// parenthesized lists) and splits what remains into individual items.
func parseParenList(tokens []string) []string {
	joined := strings.Join(tokens, " ")
	joined = strings.TrimPrefix(joined, "(")
	joined = strings.TrimSuffix(joined, ")")
	return strings.Fields(joined)
}

// formatMailboxName renders a mailbox name the way S7/§4.6 render INBOX and
// discovered classeur labels: bare, unquoted atoms for the common case, only
// falling back to a quoted string when the name is empty or contains a
// space, a control character, or one of ( ) { " \ % * that an atom cannot
// carry.
func formatMailboxName(name string) string {
	if isMailboxAtom(name) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `\"`) + `"`
}

func isMailboxAtom(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r <= ' ' || r == 0x7f:
			return false
		case r == '(' || r == ')' || r == '{' || r == '"' || r == '\\' || r == '%' || r == '*':
			return false
		}
	}
	return true
}

func compileListPattern(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*', '%':
			sb.WriteString(".*")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}
