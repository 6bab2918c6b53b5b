package notify

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"
)

// Message is a plain-text plus HTML email.
type Message struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
	// Rand seeds the multipart boundary; nil uses a time-seeded source.
	Rand *rand.Rand
}

// Write renders the message as a multipart/alternative MIME document.
func (m Message) Write(w io.Writer) error {
	random := m.Rand
	if random == nil {
		random = rand.New(rand.NewSource(time.Now().UnixNano())) // #nosec G404
	}
	boundary := randomBoundary(random)

	_, err := fmt.Fprintf(w,
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: multipart/alternative; boundary=%s\r\n\r\n",
		m.From, strings.Join(m.To, ", "), m.Subject, boundary)
	if err != nil {
		return err
	}

	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(boundary); err != nil {
		return err
	}
	if m.Text != "" {
		if err := addQuotedPrintablePart(mw, "text/plain; charset=utf-8", m.Text); err != nil {
			return err
		}
	}
	if m.HTML != "" {
		if err := addQuotedPrintablePart(mw, "text/html; charset=utf-8", m.HTML); err != nil {
			return err
		}
	}
	return mw.Close()
}

func addQuotedPrintablePart(mw *multipart.Writer, contentType, content string) error {
	buf := bytes.NewBuffer(nil)
	qp := quotedprintable.NewWriter(buf)
	if _, err := qp.Write([]byte(content)); err != nil {
		return err
	}
	if err := qp.Close(); err != nil {
		return err
	}

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Transfer-Encoding": {"quoted-printable"},
		"Content-Type":              {contentType},
	})
	if err != nil {
		return err
	}
	_, err = io.Copy(part, buf)
	return err
}

func randomBoundary(random *rand.Rand) string {
	var buf [30]byte
	if _, err := io.ReadFull(random, buf[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", buf[:])
}
