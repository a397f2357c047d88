package imapwire

import (
	"bufio"
	"fmt"
)

// ResponseWriter serializes IMAP response lines to an underlying writer,
// terminating each with CRLF as RFC 3501 requires.
type ResponseWriter struct {
	w *bufio.Writer
}

// NewResponseWriter wraps w for buffered, CRLF-terminated response writes.
func NewResponseWriter(w *bufio.Writer) *ResponseWriter {
	return &ResponseWriter{w: w}
}

// Untagged writes "* <text>\r\n".
func (rw *ResponseWriter) Untagged(text string) error {
	return rw.line("* " + text)
}

// Untaggedf writes "* <format>\r\n".
func (rw *ResponseWriter) Untaggedf(format string, args ...any) error {
	return rw.Untagged(fmt.Sprintf(format, args...))
}

// Continuation writes "+ <text>\r\n", or bare "+\r\n" if text is empty.
func (rw *ResponseWriter) Continuation(text string) error {
	if text == "" {
		return rw.line("+")
	}
	return rw.line("+ " + text)
}

// Tagged writes "<tag> <status> <text>\r\n".
func (rw *ResponseWriter) Tagged(tag, status, text string) error {
	return rw.line(tag + " " + status + " " + text)
}

// TaggedOK and TaggedNo/TaggedBad are convenience wrappers over Tagged.
func (rw *ResponseWriter) TaggedOK(tag, text string) error  { return rw.Tagged(tag, "OK", text) }
func (rw *ResponseWriter) TaggedNo(tag, text string) error  { return rw.Tagged(tag, "NO", text) }
func (rw *ResponseWriter) TaggedBad(tag, text string) error { return rw.Tagged(tag, "BAD", text) }

// Greeting writes the server's initial "* OK [...] ..." banner.
func (rw *ResponseWriter) Greeting(text string) error {
	return rw.Untagged(text)
}

func (rw *ResponseWriter) line(s string) error {
	if _, err := rw.w.WriteString(s); err != nil {
		return err
	}
	if _, err := rw.w.WriteString("\r\n"); err != nil {
		return err
	}
	return rw.w.Flush()
}
