// Package mail parses inbound RFC 822 messages: metadata, body text,
// attachments, auto-reply detection and the project plus-address hint.
package mail

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	netmail "net/mail"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Metadata holds the headers the pipeline cares about.
type Metadata struct {
	From          string
	To            string
	Cc            string
	Subject       string
	Date          string
	MessageID     string
	InReplyTo     string
	References    string
	SenderEmail   string
	ProjectIDHint string
}

// Attachment is one decoded attachment part.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// Message is a fully parsed inbound email.
type Message struct {
	Metadata    Metadata
	Body        string
	Attachments []Attachment
	AutoReply   bool
}

var (
	addrAngleRe   = regexp.MustCompile(`<(.+?)>`)
	projectHintRe = regexp.MustCompile(`project\+([^@]+)@`)
	htmlStyleRe   = regexp.MustCompile(`(?s)<style[^>]*>.*?</style>`)
	htmlScriptRe  = regexp.MustCompile(`(?s)<script[^>]*>.*?</script>`)
	htmlTagRe     = regexp.MustCompile(`<[^>]+>`)
	spaceRe       = regexp.MustCompile(`\s+`)
)

// Headers set by common auto-responders.
var autoReplyHeaders = []string{
	"X-Autorespond",
	"X-Autoreply",
	"Auto-Submitted",
	"X-Auto-Response-Suppress",
}

var autoReplySubjects = []string{
	"out of office",
	"automatic reply",
	"auto reply",
	"away from",
	"vacation",
}

// Parser parses raw emails.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates an email parser.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// Parse decodes a raw email into metadata, body text and attachments.
func (p *Parser) Parse(raw []byte) (*Message, error) {
	msg, err := netmail.ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse email: %w", err)
	}

	dec := new(mime.WordDecoder)
	decode := func(s string) string {
		if d, err := dec.DecodeHeader(s); err == nil {
			return d
		}
		return s
	}

	meta := Metadata{
		From:       decode(msg.Header.Get("From")),
		To:         msg.Header.Get("To"),
		Cc:         msg.Header.Get("Cc"),
		Subject:    decode(msg.Header.Get("Subject")),
		Date:       msg.Header.Get("Date"),
		MessageID:  msg.Header.Get("Message-ID"),
		InReplyTo:  msg.Header.Get("In-Reply-To"),
		References: msg.Header.Get("References"),
	}
	meta.SenderEmail = ExtractEmailAddress(meta.From)
	meta.ProjectIDHint = ExtractProjectIDHint(meta.To)

	body, attachments, err := p.extractParts(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return nil, err
	}

	return &Message{
		Metadata:    meta,
		Body:        strings.TrimSpace(body),
		Attachments: attachments,
		AutoReply:   isAutoReply(msg.Header, meta.Subject),
	}, nil
}

// ExtractEmailAddress pulls the bare address out of a From header value.
func ExtractEmailAddress(from string) string {
	if m := addrAngleRe.FindStringSubmatch(from); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(from)
}

// ExtractProjectIDHint returns the project id encoded in a
// project+<id>@domain recipient, or "" when absent.
func ExtractProjectIDHint(to string) string {
	if m := projectHintRe.FindStringSubmatch(to); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// ValidateSender reports whether the sender's domain matches the
// allowlist. An empty allowlist allows everything.
func ValidateSender(senderEmail string, allowedDomains []string) bool {
	if len(allowedDomains) == 0 {
		return true
	}
	at := strings.LastIndex(senderEmail, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(senderEmail[at+1:])
	for _, allowed := range allowedDomains {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if domain == allowed || strings.HasSuffix(domain, "."+allowed) {
			return true
		}
	}
	return false
}

func isAutoReply(header netmail.Header, subject string) bool {
	for _, h := range autoReplyHeaders {
		if header.Get(h) != "" {
			return true
		}
	}
	lower := strings.ToLower(subject)
	for _, pattern := range autoReplySubjects {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// extractParts walks the MIME tree collecting the text body (plain
// preferred, HTML stripped as fallback) and attachments.
func (p *Parser) extractParts(contentType, transferEncoding string, r io.Reader) (string, []Attachment, error) {
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return "", nil, fmt.Errorf("multipart message without boundary")
		}
		return p.walkMultipart(multipart.NewReader(r, boundary))
	}

	data, err := decodeBody(r, transferEncoding)
	if err != nil {
		return "", nil, err
	}
	if mediaType == "text/html" {
		return htmlToText(string(data)), nil, nil
	}
	return string(data), nil, nil
}

func (p *Parser) walkMultipart(mr *multipart.Reader) (string, []Attachment, error) {
	var plain, html strings.Builder
	var attachments []Attachment

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("read part: %w", err)
		}

		disposition := part.Header.Get("Content-Disposition")
		partType, partParams, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))

		if strings.Contains(disposition, "attachment") {
			filename := part.FileName()
			if filename == "" {
				continue
			}
			data, err := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"))
			if err != nil {
				p.logger.Error("failed to decode attachment", zap.String("filename", filename), zap.Error(err))
				continue
			}
			attachments = append(attachments, Attachment{
				Filename:    filename,
				ContentType: partType,
				Size:        int64(len(data)),
				Data:        data,
			})
			p.logger.Info("extracted attachment", zap.String("filename", filename))
			continue
		}

		switch {
		case strings.HasPrefix(partType, "multipart/"):
			boundary := partParams["boundary"]
			if boundary == "" {
				continue
			}
			nestedBody, nestedAtts, err := p.walkMultipart(multipart.NewReader(part, boundary))
			if err != nil {
				p.logger.Warn("failed to read nested part", zap.Error(err))
				continue
			}
			plain.WriteString(nestedBody)
			attachments = append(attachments, nestedAtts...)
		case partType == "text/plain":
			data, err := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"))
			if err != nil {
				p.logger.Warn("failed to extract text part", zap.Error(err))
				continue
			}
			plain.Write(data)
		case partType == "text/html":
			data, err := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"))
			if err != nil {
				p.logger.Warn("failed to extract html part", zap.Error(err))
				continue
			}
			html.Write(data)
		}
	}

	body := plain.String()
	if body == "" && html.Len() > 0 {
		body = htmlToText(html.String())
	}
	return body, attachments, nil
}

func decodeBody(r io.Reader, transferEncoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	}
	return io.ReadAll(r)
}

// htmlToText strips tags. Good enough for fallback bodies; the plain
// part wins whenever present.
func htmlToText(html string) string {
	text := htmlStyleRe.ReplaceAllString(html, "")
	text = htmlScriptRe.ReplaceAllString(text, "")
	text = htmlTagRe.ReplaceAllString(text, "")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
