package provider

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"sort"
	"strings"
	"time"
)

// buildMIME renders msg as an RFC 5322 message. A message with both bodies
// becomes multipart/alternative with the text part first.
func buildMIME(msg *Message, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	writeHeader(&buf, "From", msg.From)
	writeHeader(&buf, "To", strings.Join(msg.To, ", "))
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader(&buf, "Date", now.Format(time.RFC1123Z))
	if msg.ID != "" {
		writeHeader(&buf, "Message-ID", messageID(msg))
	}
	writeHeader(&buf, "MIME-Version", "1.0")

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeHeader(&buf, k, msg.Headers[k])
	}

	switch {
	case msg.TextBody != "" && msg.HTMLBody != "":
		mw := multipart.NewWriter(&buf)
		writeHeader(&buf, "Content-Type", "multipart/alternative; boundary="+mw.Boundary())
		buf.WriteString("\r\n")
		if err := writePart(mw, "text/plain", msg.TextBody); err != nil {
			return nil, err
		}
		if err := writePart(mw, "text/html", msg.HTMLBody); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, fmt.Errorf("close multipart: %w", err)
		}
	case msg.HTMLBody != "":
		if err := writeSinglePart(&buf, "text/html", msg.HTMLBody); err != nil {
			return nil, err
		}
	default:
		if err := writeSinglePart(&buf, "text/plain", msg.TextBody); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// messageID returns msg.ID as an RFC 5322 msg-id. An id without a domain
// part takes the domain of the sender address.
func messageID(msg *Message) string {
	id := strings.Trim(msg.ID, "<>")
	if strings.Contains(id, "@") {
		return "<" + id + ">"
	}
	domain := "localhost"
	if addr, err := mail.ParseAddress(msg.From); err == nil {
		if at := strings.LastIndex(addr.Address, "@"); at >= 0 && at < len(addr.Address)-1 {
			domain = addr.Address[at+1:]
		}
	}
	return "<" + id + "@" + domain + ">"
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func writePart(mw *multipart.Writer, contentType, body string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType+"; charset=utf-8")
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	pw, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	qp := quotedprintable.NewWriter(pw)
	if _, err := qp.Write([]byte(body)); err != nil {
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	return qp.Close()
}

func writeSinglePart(buf *bytes.Buffer, contentType, body string) error {
	writeHeader(buf, "Content-Type", contentType+"; charset=utf-8")
	writeHeader(buf, "Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")
	qp := quotedprintable.NewWriter(buf)
	if _, err := qp.Write([]byte(body)); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return qp.Close()
}
