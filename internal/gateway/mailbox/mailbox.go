// Package mailbox maps the four reserved IMAP mailboxes plus the upstream
// "classeurs" onto a single flat folder table, and renders SELECT/EXAMINE/
// STATUS response data from an upstream folder payload.
package mailbox

import (
	"time"

	"github.com/tidwall/gjson"
)

// Reserved folder names. All four share folder ID 0 upstream but are
// distinguished by which message collection ("received"/"sent"/"archived"/
// "draft") they draw from.
const (
	Inbox    = "INBOX"
	Sent     = "Sent"
	Archived = "Archived"
	Drafts   = "Drafts"
)

// Collection identifies which upstream message list a folder reads from.
type Collection string

const (
	CollectionReceived Collection = "received"
	CollectionSent     Collection = "sent"
	CollectionArchived Collection = "archived"
	CollectionDraft    Collection = "draft"
)

// Folder is a single resolvable mailbox name.
type Folder struct {
	ID         uint32
	Collection Collection
}

// Table maps mailbox names to their upstream folder ID and message
// collection. It is never cached across commands: the vendor can rename or
// add "classeurs" at any time, so every SELECT/LIST rebuilds it from a fresh
// ListFolders call.
type Table struct {
	folders map[string]Folder
}

// NewTable builds a folder table from the vendor's classeur list (name, id
// pairs) merged with the four reserved names. Reserved names always win if a
// classeur happens to collide with one of them.
func NewTable(classeurs map[string]uint32) *Table {
	t := &Table{folders: make(map[string]Folder, len(classeurs)+4)}
	for name, id := range classeurs {
		t.folders[name] = Folder{ID: id, Collection: CollectionReceived}
	}
	t.folders[Inbox] = Folder{ID: 0, Collection: CollectionReceived}
	t.folders[Sent] = Folder{ID: 0, Collection: CollectionSent}
	t.folders[Archived] = Folder{ID: 0, Collection: CollectionArchived}
	t.folders[Drafts] = Folder{ID: 0, Collection: CollectionDraft}
	return t
}

// Names returns every mailbox name known to the table, in no particular
// order. Used to answer LIST.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.folders))
	for name := range t.folders {
		names = append(names, name)
	}
	return names
}

// Resolve looks up a mailbox name (as supplied by an IMAP client; no
// modified UTF-7 decoding is applied) and returns the upstream folder it
// maps to.
func (t *Table) Resolve(name string) (Folder, bool) {
	f, ok := t.folders[name]
	return f, ok
}

// MessageCount extracts the message count for mailbox from a folder_info
// payload's "pagination" object, keyed by which collection the mailbox
// reads from.
func MessageCount(mailbox string, folderInfo gjson.Result) uint32 {
	pagination := folderInfo.Get("pagination")
	switch mailbox {
	case Sent:
		return uint32(pagination.Get("messagesEnvoyesCount").Int())
	case Archived:
		return uint32(pagination.Get("messagesArchivesCount").Int())
	case Drafts:
		return uint32(pagination.Get("messagesDraftCount").Int())
	default:
		return uint32(pagination.Get("messagesRecusCount").Int())
	}
}

// UnseenCount returns the number of unread messages for mailbox, and false
// if the mailbox has no such concept (every folder but the received one).
func UnseenCount(mailbox string, folderInfo gjson.Result) (uint32, bool) {
	switch mailbox {
	case Sent, Archived, Drafts:
		return 0, false
	default:
		v := folderInfo.Get("pagination.messagesRecusNotReadCount")
		if !v.Exists() {
			return 0, false
		}
		return uint32(v.Int()), true
	}
}

// SchoolYear returns the academic year (September through August) that now
// falls within, used as the mailbox's UIDVALIDITY. A date in January through
// August belongs to the year that started the preceding September.
func SchoolYear(now time.Time) uint32 {
	year := now.Year()
	if now.Month() <= time.August {
		year--
	}
	return uint32(year)
}

// Info is the rendered set of mailbox-state facts a SELECT/EXAMINE/STATUS
// response needs. Flags and PermanentFlags are fixed: the upstream API
// exposes no flag storage beyond read/unread, which Seen already covers.
type Info struct {
	Exists         uint32
	Recent         uint32
	UIDValidity    uint32
	Unseen         uint32
	HasUnseen      bool
	SchoolYearText string
}

// BuildInfo assembles Info for mailbox from its folder_info payload.
func BuildInfo(mailbox string, folderInfo gjson.Result, now time.Time) Info {
	year := SchoolYear(now)
	info := Info{
		Exists:      MessageCount(mailbox, folderInfo),
		Recent:      0,
		UIDValidity: year,
	}
	if unseen, ok := UnseenCount(mailbox, folderInfo); ok {
		info.Unseen = unseen
		info.HasUnseen = true
	}
	return info
}
