package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const input = `Here are your questions:

1. What is 2+2?
A) 3
B) 4
Doğru Cevap: B

2. Capital of France?
A) Paris
B) Rome
Doğru Cevap: A
`

func withTerminal(t *testing.T, tty bool) {
	t.Helper()
	orig := isTerminal
	isTerminal = func(io.Writer) bool { return tty }
	t.Cleanup(func() { isTerminal = orig })
}

func TestRunPlainOutputWithoutTerminal(t *testing.T) {
	withTerminal(t, false)
	var stdout, stderr bytes.Buffer
	code := run([]string{"-count", "3"}, strings.NewReader(input), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "parsed 2 of 3 requested") || !strings.Contains(out, "Capital of France?") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRunApproveAllPostsOneBatch(t *testing.T) {
	withTerminal(t, false)
	var calls int
	var got struct {
		Questions []map[string]any `json:"questions"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/api/v1/pools/7/questions/batch" || r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("unexpected request %s %s", r.URL.Path, r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true,"data":{"saved":2}}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := run([]string{"-approve-all", "-pool", "7", "-server", srv.URL, "-token", "tok"}, strings.NewReader(input), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	if calls != 1 || len(got.Questions) != 2 {
		t.Fatalf("expected one batch of 2, got calls=%d questions=%d", calls, len(got.Questions))
	}
	if !strings.Contains(stdout.String(), "saved 2 to pool 7") {
		t.Fatalf("unexpected output %q", stdout.String())
	}
}

func TestRunRequiresPoolToSave(t *testing.T) {
	withTerminal(t, false)
	var stdout, stderr bytes.Buffer
	code := run([]string{"-approve-all"}, strings.NewReader(input), &stdout, &stderr)
	if code == 0 || !strings.Contains(stderr.String(), "-pool") {
		t.Fatalf("expected pool error, got code=%d stderr=%s", code, stderr.String())
	}
}

func TestRunNothingParsed(t *testing.T) {
	withTerminal(t, false)
	var stdout, stderr bytes.Buffer
	code := run(nil, strings.NewReader("no numbered questions here"), &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
}
