package gmail

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"support-mail-agent/internal/domain"
)

// ErrMalformed marks an inbound message missing the headers or body parts the
// pipeline requires. Callers abort without replying.
var ErrMalformed = errors.New("gmail: malformed message")

var (
	whitespaceRe   = regexp.MustCompile(`\s+`)
	quotedThreadRe = regexp.MustCompile(`On .* wrote: > .*`)
	firstNameRe    = regexp.MustCompile(`^([a-zA-Z]+)\b`)
)

// ParseMessage extracts the headers and plain-text body the pipeline needs
// from a full message. Signature stripping and sentence segmentation happen
// later against the prediction services; this only does transport-level
// decoding and cleanup.
func ParseMessage(msg RawMessage) (domain.MessageInfo, error) {
	info := domain.MessageInfo{
		MessageID: msg.ID,
		ThreadID:  msg.ThreadID,
	}
	if info.MessageID == "" || info.ThreadID == "" {
		return domain.MessageInfo{}, fmt.Errorf("%w: missing message or thread id", ErrMalformed)
	}

	for _, h := range msg.Payload.Headers {
		switch h.Name {
		case "From":
			info.From = h.Value
		case "To":
			info.To = h.Value
		case "Subject":
			info.Subject = h.Value
		case "Message-ID":
			info.RFCID = h.Value
		case "References":
			info.References = h.Value
		}
	}
	if info.From == "" || info.Subject == "" {
		return domain.MessageInfo{}, fmt.Errorf("%w: missing From or Subject header", ErrMalformed)
	}

	body, err := plainTextBody(msg.Payload.Parts)
	if err != nil {
		return domain.MessageInfo{}, err
	}
	info.Body = cleanBody(body)
	info.SenderName = firstNameRe.FindString(info.From)

	return info, nil
}

// plainTextBody finds and decodes the text/plain part.
func plainTextBody(parts []Part) (string, error) {
	for _, p := range parts {
		if p.MimeType != "text/plain" {
			continue
		}
		decoded, err := decodeBody(p.Body.Data)
		if err != nil {
			return "", fmt.Errorf("%w: decode body: %v", ErrMalformed, err)
		}
		return decoded, nil
	}
	return "", fmt.Errorf("%w: no text/plain part", ErrMalformed)
}

// decodeBody handles the API's base64url body encoding, padded or not.
func decodeBody(data string) (string, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b), nil
	}
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// cleanBody flattens line breaks, collapses runs of whitespace, and strips
// the quoted prior thread from a reply.
func cleanBody(body string) string {
	body = strings.ReplaceAll(body, "\r", " ")
	body = strings.ReplaceAll(body, "\n", " ")
	body = whitespaceRe.ReplaceAllString(body, " ")
	body = quotedThreadRe.ReplaceAllString(body, "")
	return strings.TrimSpace(body)
}
