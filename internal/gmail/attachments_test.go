package gmail

import (
	"encoding/base64"
	"testing"

	gmail "google.golang.org/api/gmail/v1"
)

func TestValidateMimeType(t *testing.T) {
	tests := []struct {
		name         string
		mimeType     string
		allowedTypes []string
		want         bool
	}{
		{
			name:         "allowed type",
			mimeType:     "application/pdf",
			allowedTypes: []string{"application/pdf", "image/png"},
			want:         true,
		},
		{
			name:         "disallowed type",
			mimeType:     "application/zip",
			allowedTypes: []string{"application/pdf"},
			want:         false,
		},
		{
			name:         "no restrictions",
			mimeType:     "application/zip",
			allowedTypes: nil,
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateMimeType(tt.mimeType, tt.allowedTypes); got != tt.want {
				t.Errorf("ValidateMimeType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAttachmentsOf_NestedParts(t *testing.T) {
	msg := &gmail.Message{
		Id: "m1",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Parts: []*gmail.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmail.MessagePart{
						{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "aGk="}},
						{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: "aGk="}},
					},
				},
				{
					PartId:   "1",
					Filename: "invoice.pdf",
					MimeType: "application/pdf",
					Body:     &gmail.MessagePartBody{AttachmentId: "att-1", Size: 1024},
				},
				{
					MimeType: "multipart/related",
					Parts: []*gmail.MessagePart{
						{
							PartId:   "2.1",
							Filename: "grn.xlsx",
							MimeType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
							Body:     &gmail.MessagePartBody{AttachmentId: "att-2", Size: 2048},
						},
					},
				},
				// Inline part with a filename but no attachment id is not downloadable.
				{Filename: "logo.png", MimeType: "image/png", Body: &gmail.MessagePartBody{Data: "aGk="}},
			},
		},
	}

	got := attachmentsOf(msg)
	if len(got) != 2 {
		t.Fatalf("attachmentsOf() returned %d attachments, want 2", len(got))
	}
	if got[0].Filename != "invoice.pdf" || got[0].AttachmentID != "att-1" || got[0].MessageID != "m1" {
		t.Errorf("unexpected first attachment: %+v", got[0])
	}
	if got[1].Filename != "grn.xlsx" || got[1].PartID != "2.1" || got[1].Size != 2048 {
		t.Errorf("unexpected second attachment: %+v", got[1])
	}
}

func TestAttachmentsOf_NilPayload(t *testing.T) {
	if got := attachmentsOf(&gmail.Message{Id: "m1"}); len(got) != 0 {
		t.Errorf("attachmentsOf() = %v, want none", got)
	}
}

func TestDecodeBody(t *testing.T) {
	raw := []byte{0xfb, 0xff, 0x01, 'p', 'd', 'f'}
	tests := []struct {
		name string
		data string
	}{
		{"url encoding", base64.URLEncoding.EncodeToString(raw)},
		{"raw url encoding", base64.RawURLEncoding.EncodeToString(raw)},
		{"std encoding", base64.StdEncoding.EncodeToString(raw)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeBody(tt.data)
			if err != nil {
				t.Fatalf("decodeBody() error = %v", err)
			}
			if string(got) != string(raw) {
				t.Errorf("decodeBody() = %v, want %v", got, raw)
			}
		})
	}

	if _, err := decodeBody("!!not base64!!"); err == nil {
		t.Error("decodeBody() should fail on invalid input")
	}
}

func TestSenderAddress(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{`"ACME Billing" <Billing@Acme.test>`, "billing@acme.test"},
		{"billing@acme.test", "billing@acme.test"},
		{"Broken Name <odd@acme.test", "broken name <odd@acme.test"},
		{"Weird, Name <weird@acme.test>", "weird@acme.test"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			if got := SenderAddress(tt.from); got != tt.want {
				t.Errorf("SenderAddress(%q) = %q, want %q", tt.from, got, tt.want)
			}
		})
	}
}
