package recipient

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rcpt    Recipient
		wantErr bool
	}{
		{"valid", Recipient{Email: "a@b.c", CreatorName: "Ana", SocialMediaLink: "https://x.com/ana"}, false},
		{"missing email", Recipient{CreatorName: "Ana", SocialMediaLink: "x"}, true},
		{"no at sign", Recipient{Email: "not-an-email", CreatorName: "Ana", SocialMediaLink: "x"}, true},
		{"at sign first", Recipient{Email: "@b.c", CreatorName: "Ana", SocialMediaLink: "x"}, true},
		{"at sign last", Recipient{Email: "a@", CreatorName: "Ana", SocialMediaLink: "x"}, true},
		{"missing name", Recipient{Email: "a@b.c", SocialMediaLink: "x"}, true},
		{"missing link", Recipient{Email: "a@b.c", CreatorName: "Ana"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rcpt.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %t", err, tt.wantErr)
			}
		})
	}
}

func TestFromCSV(t *testing.T) {
	in := `email,creator_name,social_media_link
ana@example.com,Ana,https://x.com/ana
bo@example.com, Bo ,https://youtube.com/@bo
`
	recipients, err := FromCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("FromCSV() error = %v", err)
	}
	if len(recipients) != 2 {
		t.Fatalf("got %d recipients, want 2", len(recipients))
	}
	if recipients[0].Email != "ana@example.com" || recipients[0].CreatorName != "Ana" {
		t.Errorf("first recipient = %+v", recipients[0])
	}
	if recipients[1].CreatorName != "Bo" {
		t.Errorf("whitespace not trimmed: %+v", recipients[1])
	}
}

func TestFromCSVNoHeader(t *testing.T) {
	in := "ana@example.com,Ana,https://x.com/ana\n"
	recipients, err := FromCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("FromCSV() error = %v", err)
	}
	if len(recipients) != 1 {
		t.Fatalf("got %d recipients, want 1", len(recipients))
	}
}

func TestFromCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string // substring of the error
	}{
		{"empty input", "", "no recipients"},
		{"header only", "email,creator_name,social_media_link\n", "no recipients"},
		{"too few columns", "ana@example.com,Ana\n", "row 1"},
		{"invalid email", "not-an-email,Ana,https://x.com/ana\n", "row 1"},
		{"bad row number", "ana@example.com,Ana,https://x.com/ana\nbad,Bo\n", "row 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromCSV(strings.NewReader(tt.in))
			if err == nil {
				t.Fatal("FromCSV() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
