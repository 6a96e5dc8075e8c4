package mail

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PlainText(t *testing.T) {
	raw := strings.Join([]string{
		"From: Dave Client <dave@example.com>",
		"To: project+PROJ-abc12345@acme.myprojectr.com",
		"Subject: Kitchen cabinets update",
		"Message-ID: <msg-1@example.com>",
		"",
		"The cabinets arrive Tuesday.",
		"",
	}, "\r\n")

	msg, err := NewParser(nil).Parse([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "dave@example.com", msg.Metadata.SenderEmail)
	assert.Equal(t, "PROJ-abc12345", msg.Metadata.ProjectIDHint)
	assert.Equal(t, "Kitchen cabinets update", msg.Metadata.Subject)
	assert.Equal(t, "The cabinets arrive Tuesday.", msg.Body)
	assert.Empty(t, msg.Attachments)
	assert.False(t, msg.AutoReply)
}

func TestParse_MultipartWithAttachment(t *testing.T) {
	pdf := []byte("%PDF-1.4 fake blueprint")
	raw := strings.Join([]string{
		"From: dave@example.com",
		"To: acme@myprojectr.com",
		"Subject: Blueprints attached",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="BOUNDARY"`,
		"",
		"--BOUNDARY",
		"Content-Type: text/plain",
		"",
		"See attached drawings.",
		"--BOUNDARY",
		"Content-Type: application/pdf",
		`Content-Disposition: attachment; filename="plans.pdf"`,
		"Content-Transfer-Encoding: base64",
		"",
		base64.StdEncoding.EncodeToString(pdf),
		"--BOUNDARY--",
		"",
	}, "\r\n")

	msg, err := NewParser(nil).Parse([]byte(raw))
	require.NoError(t, err)

	assert.Contains(t, msg.Body, "See attached drawings.")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "plans.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
	assert.Equal(t, pdf, msg.Attachments[0].Data)
	assert.Equal(t, int64(len(pdf)), msg.Attachments[0].Size)
}

func TestParse_HTMLFallback(t *testing.T) {
	raw := strings.Join([]string{
		"From: dave@example.com",
		"To: acme@myprojectr.com",
		"Subject: Update",
		`Content-Type: multipart/alternative; boundary="ALT"`,
		"",
		"--ALT",
		"Content-Type: text/html",
		"",
		"<html><body><p>Deck framing is <b>done</b>.</p></body></html>",
		"--ALT--",
		"",
	}, "\r\n")

	msg, err := NewParser(nil).Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "Deck framing is done.", msg.Body)
}

func TestParse_AutoReplyDetection(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		subject string
		want    bool
	}{
		{"auto-submitted header", []string{"Auto-Submitted: auto-replied"}, "Re: invoice", true},
		{"out of office subject", nil, "Out of Office: back Monday", true},
		{"automatic reply subject", nil, "Automatic reply: Kitchen", true},
		{"normal message", nil, "Kitchen update", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := []string{"From: dave@example.com", "To: acme@myprojectr.com", "Subject: " + tt.subject}
			lines = append(lines, tt.headers...)
			lines = append(lines, "", "body", "")
			msg, err := NewParser(nil).Parse([]byte(strings.Join(lines, "\r\n")))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.AutoReply)
		})
	}
}

func TestExtractProjectIDHint(t *testing.T) {
	tests := []struct {
		to   string
		want string
	}{
		{"project+PROJ-abc12345@acme.myprojectr.com", "PROJ-abc12345"},
		{"Acme <project+PROJ-9f@acme.myprojectr.com>", "PROJ-9f"},
		{"acme@myprojectr.com", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractProjectIDHint(tt.to), tt.to)
	}
}

func TestExtractEmailAddress(t *testing.T) {
	assert.Equal(t, "dave@example.com", ExtractEmailAddress("Dave Client <dave@example.com>"))
	assert.Equal(t, "dave@example.com", ExtractEmailAddress("dave@example.com"))
}

func TestValidateSender(t *testing.T) {
	tests := []struct {
		name    string
		sender  string
		domains []string
		want    bool
	}{
		{"empty allowlist allows all", "anyone@anywhere.com", nil, true},
		{"exact domain match", "dave@example.com", []string{"example.com"}, true},
		{"subdomain match", "dave@mail.example.com", []string{"example.com"}, true},
		{"mismatch", "dave@evil.com", []string{"example.com"}, false},
		{"no at sign", "not-an-address", []string{"example.com"}, false},
		{"case insensitive", "dave@EXAMPLE.com", []string{"Example.COM"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateSender(tt.sender, tt.domains))
		})
	}
}
