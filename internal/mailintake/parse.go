package mailintake

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

var ErrUnreadableMessage = errors.New("unreadable mail message")

// maxPartDepth bounds multipart nesting
const maxPartDepth = 8

// Attachment is one file part of a message, already transfer-decoded.
type Attachment struct {
	FileName string
	Data     []byte
	// Oversize is set when the part exceeded its limit; Data is then nil
	Oversize bool
}

// Message is a parsed message reduced to what intake cares about.
type Message struct {
	Subject     string
	From        string
	Attachments []Attachment
}

var wordDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
		}
		return enc.NewDecoder().Reader(input), nil
	},
}

// decodeHeader expands RFC 2047 encoded words, keeping the raw value when
// they cannot be decoded
func decodeHeader(raw string) string {
	decoded, err := wordDecoder.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// sizeLimit returns the byte limit for a file name, or 0 when the file
// type is not accepted
type sizeLimit func(fileName string) int64

// parseMessage reads an RFC 5322 message and collects the attachments the
// limit function accepts.
func parseMessage(r io.Reader, limit sizeLimit) (*Message, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableMessage, err)
	}

	out := &Message{
		Subject: decodeHeader(msg.Header.Get("Subject")),
		From:    decodeHeader(msg.Header.Get("From")),
	}

	header := partHeader{
		contentType: msg.Header.Get("Content-Type"),
		disposition: msg.Header.Get("Content-Disposition"),
		encoding:    msg.Header.Get("Content-Transfer-Encoding"),
	}
	if err := collect(out, header, msg.Body, limit, 0); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableMessage, err)
	}
	return out, nil
}

type partHeader struct {
	contentType string
	disposition string
	encoding    string
}

func collect(out *Message, h partHeader, body io.Reader, limit sizeLimit, depth int) error {
	if depth > maxPartDepth {
		return errors.New("multipart nesting too deep")
	}

	mediaType, params, err := mime.ParseMediaType(h.contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return errors.New("multipart without boundary")
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			child := partHeader{
				contentType: part.Header.Get("Content-Type"),
				disposition: part.Header.Get("Content-Disposition"),
				encoding:    part.Header.Get("Content-Transfer-Encoding"),
			}
			if err := collect(out, child, part, limit, depth+1); err != nil {
				return err
			}
		}
	}

	name := fileName(h, params)
	if name == "" {
		return nil
	}
	maxSize := limit(name)
	if maxSize == 0 {
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(transferDecoder(h.encoding, body), maxSize+1))
	if err != nil {
		return fmt.Errorf("read attachment %s: %w", name, err)
	}
	if int64(len(data)) > maxSize {
		out.Attachments = append(out.Attachments, Attachment{FileName: name, Oversize: true})
		return nil
	}
	out.Attachments = append(out.Attachments, Attachment{FileName: name, Data: data})
	return nil
}

// fileName takes the Content-Disposition filename, falling back to the
// Content-Type name parameter
func fileName(h partHeader, typeParams map[string]string) string {
	var name string
	if _, params, err := mime.ParseMediaType(h.disposition); err == nil {
		name = params["filename"]
	}
	if name == "" {
		name = typeParams["name"]
	}
	if name == "" {
		return ""
	}
	return filepath.Base(decodeHeader(name))
}

// transferDecoder undoes base64 transfer encoding. multipart.Reader
// already strips quoted-printable.
func transferDecoder(encoding string, body io.Reader) io.Reader {
	if strings.EqualFold(strings.TrimSpace(encoding), "base64") {
		return base64.NewDecoder(base64.StdEncoding, body)
	}
	return body
}
