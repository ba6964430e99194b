package cryptocore

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseMessageAndSplit(t *testing.T) {
	raw := []byte("From: alice@example.com\r\n" +
		"To: bob@example.com\r\n" +
		"Subject: hi\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"MIME-Version: 1.0\r\n" +
		"\r\n" +
		"Body line one\r\n" +
		"Body line two\r\n")

	msg, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage failed: %s", err)
	}

	typ, subtype, ok := msg.ContentType()
	if !ok || typ != "text" || subtype != "plain" {
		t.Fatalf("unexpected content type: %s/%s ok=%v", typ, subtype, ok)
	}

	outer, inner, err := Split(msg)
	if err != nil {
		t.Fatalf("Split failed: %s", err)
	}

	outerStr := string(outer)
	if !strings.Contains(outerStr, "From: alice@example.com") ||
		!strings.Contains(outerStr, "To: bob@example.com") ||
		!strings.Contains(outerStr, "Subject: hi") {
		t.Fatalf("outer buffer missing plain headers: %q", outerStr)
	}
	if strings.Contains(outerStr, "Content-Type") || strings.Contains(outerStr, "MIME-Version") {
		t.Fatalf("outer buffer must not contain MIME headers: %q", outerStr)
	}

	innerStr := string(inner)
	if !strings.Contains(innerStr, "Content-Type: text/plain") || !strings.Contains(innerStr, "MIME-Version: 1.0") {
		t.Fatalf("inner buffer missing MIME headers: %q", innerStr)
	}
	if !strings.Contains(innerStr, "Body line one\r\nBody line two\r\n") {
		t.Fatalf("inner buffer missing body: %q", innerStr)
	}

	// The union of both buffers' header lines reproduces the original
	// header block, modulo MIME-vs-non-MIME reordering.
	for _, line := range []string{"From: alice@example.com\r\n", "To: bob@example.com\r\n", "Subject: hi\r\n"} {
		if !bytes.Contains(outer, []byte(line)) {
			t.Errorf("missing header line in outer: %q", line)
		}
	}
}

func TestSplitPreservesContinuationLines(t *testing.T) {
	raw := []byte("Subject: a very\r\n" +
		" long subject\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"body\r\n")

	msg, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage failed: %s", err)
	}
	outer, _, err := Split(msg)
	if err != nil {
		t.Fatalf("Split failed: %s", err)
	}
	if !strings.Contains(string(outer), "Subject: a very\r\n long subject\r\n") {
		t.Fatalf("continuation line not preserved: %q", outer)
	}
}
