package session

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/edimap/ecoledirecte-imap/internal/gateway/imapwire"
	"github.com/edimap/ecoledirecte-imap/internal/gateway/mailbox"
	"github.com/edimap/ecoledirecte-imap/internal/gateway/paginate"
)

// unsupportedFetchItems names FETCH data items this gateway cannot produce:
// the upstream message-list endpoints never return a full message body, so
// BODY/BODYSTRUCTURE/RFC822(.HEADER|.TEXT) and BODY.PEEK sections have
// nothing to synthesize from.
var unsupportedFetchItems = []string{"BODY", "BODYSTRUCTURE", "RFC822", "RFC822.HEADER", "RFC822.TEXT"}

func isUnsupportedFetchItem(item string) bool {
	for _, u := range unsupportedFetchItems {
		if item == u || strings.HasPrefix(item, u+"[") || strings.HasPrefix(item, u+".PEEK") {
			return true
		}
	}
	return false
}

func expandFetchMacro(name string) ([]string, bool) {
	switch name {
	case "ALL":
		return []string{"FLAGS", "INTERNALDATE", "RFC822.SIZE", "ENVELOPE"}, true
	case "FAST":
		return []string{"FLAGS", "INTERNALDATE", "RFC822.SIZE"}, true
	case "FULL":
		// Degrades BODY to absent rather than fabricating MIME structure
		// the upstream API never exposes.
		return []string{"FLAGS", "INTERNALDATE", "RFC822.SIZE", "ENVELOPE"}, true
	default:
		return nil, false
	}
}

// handleFetch implements FETCH and UID FETCH. isUID additionally requires
// every emitted "* n FETCH" to include a UID data item.
func (e *Engine) handleFetch(ctx context.Context, c *Connection, rw *imapwire.ResponseWriter, logger *slog.Logger, cmd *imapwire.Command, isUID bool) {
	args := cmd.Args
	if isUID {
		args = args[1:]
	}
	if len(args) < 2 {
		rw.TaggedBad(cmd.Tag, "FETCH requires a sequence set and data items")
		return
	}

	seqSet := args[0]
	itemArgs := args[1:]

	var items []string
	if len(itemArgs) == 1 && !strings.HasPrefix(itemArgs[0], "(") {
		macro, ok := expandFetchMacro(strings.ToUpper(itemArgs[0]))
		if ok {
			items = macro
		} else {
			items = []string{strings.ToUpper(itemArgs[0])}
		}
	} else {
		for _, item := range parseParenList(itemArgs) {
			items = append(items, strings.ToUpper(item))
		}
	}

	for _, item := range items {
		if isUnsupportedFetchItem(item) {
			rw.TaggedNo(cmd.Tag, "Not supported!")
			return
		}
	}

	if isUID {
		items = append(items, "UID")
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	table, err := e.buildFolderTable(ctx, c)
	if err != nil {
		logger.Warn("upstream unavailable during FETCH", "err", err)
		rw.TaggedNo(cmd.Tag, "FETCH failed")
		return
	}
	folder, ok := table.Resolve(c.selected.name)
	if !ok {
		rw.TaggedNo(cmd.Tag, "Mailbox no longer exists")
		return
	}

	folderInfo, err := e.upstream.FolderInfo(ctx, c.user.id, c.user.token, folder.ID)
	if err != nil {
		logger.Warn("upstream unavailable during FETCH", "err", err)
		rw.TaggedNo(cmd.Tag, "FETCH failed")
		return
	}
	max := mailbox.MessageCount(c.selected.name, folderInfo)

	ranges, err := parseSequenceSet(seqSet, max)
	if err != nil {
		rw.TaggedBad(cmd.Tag, "Invalid sequence set")
		return
	}

	kind := string(folder.Collection)
	for _, r := range ranges {
		if err := e.fetchRange(ctx, c, rw, folder.ID, kind, r, items); err != nil {
			logger.Warn("upstream unavailable during FETCH", "err", err)
			rw.TaggedNo(cmd.Tag, "FETCH failed")
			return
		}
	}

	rw.TaggedOK(cmd.Tag, "FETCH completed")
}

type seqRange struct{ min, max uint32 }

// parseSequenceSet parses a comma-separated IMAP sequence set ("1:5,8,10:*")
// against max, the current highest sequence number. Each comma-separated
// member becomes its own range; contiguous ranges already appear as a
// single member and are not merged further, since the pagination oracle
// operates on one range at a time regardless.
func parseSequenceSet(s string, max uint32) ([]seqRange, error) {
	var ranges []seqRange
	for _, member := range strings.Split(s, ",") {
		lo, hi, err := parseSeqMember(member, max)
		if err != nil {
			return nil, err
		}
		if lo > max {
			continue
		}
		if hi > max {
			hi = max
		}
		ranges = append(ranges, seqRange{min: lo, max: hi})
	}
	return ranges, nil
}

func parseSeqMember(member string, max uint32) (uint32, uint32, error) {
	parts := strings.SplitN(member, ":", 2)
	a, err := parseSeqNumber(parts[0], max)
	if err != nil {
		return 0, 0, err
	}
	if len(parts) == 1 {
		return a, a, nil
	}
	b, err := parseSeqNumber(parts[1], max)
	if err != nil {
		return 0, 0, err
	}
	if a > b {
		a, b = b, a
	}
	return a, b, nil
}

func parseSeqNumber(s string, max uint32) (uint32, error) {
	if s == "*" {
		return max, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid sequence number %q", s)
	}
	return uint32(n), nil
}

// fetchRange resolves one sequence range to an upstream page via the
// pagination oracle, then emits one "* n FETCH (...)" per message in range.
func (e *Engine) fetchRange(ctx context.Context, c *Connection, rw *imapwire.ResponseWriter, folderID uint32, kind string, r seqRange, items []string) error {
	page, pageSize := paginate.Page(r.min, r.max)

	data, err := e.upstream.FolderMessages(ctx, c.user.id, c.user.token, folderID, kind, page, pageSize)
	if err != nil {
		return err
	}

	messages := data.Get("messages")
	if !messages.IsArray() {
		messages = data
	}
	arr := messages.Array()

	pageStart := pageSize*(page-1) + 1
	for seq := r.min; seq <= r.max; seq++ {
		idx := int(seq - pageStart)
		if idx < 0 || idx >= len(arr) {
			continue
		}
		rw.Untagged(fmt.Sprintf("%d FETCH (%s)", seq, renderFetchItems(items, seq, arr[idx])))
	}
	return nil
}

// renderFetchItems formats the requested items for one message, in a fixed
// canonical order rather than the order the client asked for — real clients
// do not depend on item order within a FETCH response.
func renderFetchItems(items []string, seq uint32, msg gjson.Result) string {
	want := make(map[string]bool, len(items))
	for _, item := range items {
		want[item] = true
	}

	var parts []string
	if want["UID"] {
		parts = append(parts, fmt.Sprintf("UID %d", messageUID(msg, seq)))
	}
	if want["FLAGS"] {
		parts = append(parts, fmt.Sprintf("FLAGS (%s)", messageFlags(msg)))
	}
	if want["INTERNALDATE"] {
		parts = append(parts, fmt.Sprintf("INTERNALDATE %q", messageDate(msg)))
	}
	if want["RFC822.SIZE"] {
		parts = append(parts, fmt.Sprintf("RFC822.SIZE %d", messageSize(msg)))
	}
	if want["ENVELOPE"] {
		parts = append(parts, "ENVELOPE "+messageEnvelope(msg))
	}
	return strings.Join(parts, " ")
}

func messageUID(msg gjson.Result, seq uint32) uint32 {
	if id := msg.Get("id"); id.Exists() {
		return uint32(id.Uint())
	}
	return seq
}

func messageFlags(msg gjson.Result) string {
	read := msg.Get("lu")
	if !read.Exists() {
		read = msg.Get("read")
	}
	if read.Bool() {
		return `\Seen`
	}
	return ""
}

func messageDate(msg gjson.Result) string {
	if d := msg.Get("date"); d.Exists() {
		return d.String()
	}
	return ""
}

func messageSize(msg gjson.Result) int64 {
	if s := msg.Get("size"); s.Exists() {
		return s.Int()
	}
	return int64(len(msg.Raw))
}

func messageSubject(msg gjson.Result) string {
	if s := msg.Get("objet"); s.Exists() {
		return s.String()
	}
	return msg.Get("subject").String()
}

func messageFrom(msg gjson.Result) string {
	if f := msg.Get("de"); f.Exists() {
		return f.String()
	}
	return msg.Get("from").String()
}

// messageEnvelope renders a minimal IMAP ENVELOPE structure: date, subject,
// and a single-address from list; every field this gateway cannot source
// from the upstream payload (sender, reply-to, to, cc, bcc, in-reply-to,
// message-id) is NIL, matching how a client would read "field not
// available" rather than fabricating values the upstream API never sends.
func messageEnvelope(msg gjson.Result) string {
	date := quoteOrNil(messageDate(msg))
	subject := quoteOrNil(messageSubject(msg))
	from := "NIL"
	if name := messageFrom(msg); name != "" {
		from = fmt.Sprintf(`((%s NIL NIL NIL))`, quoteOrNil(name))
	}
	return fmt.Sprintf("(%s %s %s NIL NIL NIL NIL NIL NIL NIL)", date, subject, from)
}

func quoteOrNil(s string) string {
	if s == "" {
		return "NIL"
	}
	return strconv.Quote(s)
}
