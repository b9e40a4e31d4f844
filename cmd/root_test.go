package cmd

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasPrefix(out.String(), "tablehold dev") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestKeysCmd(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"keys"})
	if err := root.Execute(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", out.String())
	}
	for _, line := range lines {
		_, val, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if !ok {
			t.Fatalf("malformed line %q", line)
		}
		b, err := base64.StdEncoding.DecodeString(val)
		if err != nil || len(b) != 32 {
			t.Fatalf("expected 32-byte base64 key in %q", line)
		}
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" 18:00, ,19:30,")
	if len(got) != 2 || got[0] != "18:00" || got[1] != "19:30" {
		t.Fatalf("unexpected %v", got)
	}
}
