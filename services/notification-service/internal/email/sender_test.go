package email

import (
	"strings"
	"testing"
	"time"
)

func TestBuildMessage(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	msg := buildMessage("a@x.test", "b@y.test", "Appointment booked", "line one\nline two", at)

	for _, want := range []string{
		"From: a@x.test\r\n",
		"To: b@y.test\r\n",
		"Subject: Appointment booked\r\n",
		"Date: Mon, 02 Mar 2026 09:00:00 +0000\r\n",
		"\r\n\r\nline one\r\nline two\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}

	encoded := buildMessage("a@x.test", "b@y.test", "Café booked", "", at)
	if !strings.Contains(encoded, "Subject: =?utf-8?q?") {
		t.Fatalf("expected encoded subject, got:\n%s", encoded)
	}
}

func TestSendRejectsHeaderInjection(t *testing.T) {
	s := NewSMTPSender("127.0.0.1", "1", "")
	if err := s.Send("victim@x.test\r\nBcc: all@x.test", "hi", "body"); err == nil {
		t.Fatal("expected error for recipient with line breaks")
	}
	if s.from != "appointments@apptengine.local" {
		t.Fatalf("unexpected default from %q", s.from)
	}
}
