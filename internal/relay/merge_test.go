package relay

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/vidrelay/vidrelay/internal/domain"
)

// writeRemuxStub creates a fake remux binary. The stub ignores its
// arguments and writes deterministic output to stdout.
func writeRemuxStub(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub binaries require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "remux-stub")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

// emitScript prints count lines of 32 bytes each ("0123456789abcdef0123456789abcde\n").
const emitScript = `i=0
while [ $i -lt 64 ]; do
  printf '0123456789abcdef0123456789abcde\n'
  i=$((i+1))
done
`

func TestNewMergePipeMissingBinary(t *testing.T) {
	_, err := NewMergePipe("definitely-not-a-real-remux-binary", testLogger())
	if err == nil {
		t.Fatal("expected error for missing remux binary")
	}
}

func TestMergeRelaysProcessOutput(t *testing.T) {
	stub := writeRemuxStub(t, emitScript)
	pipe, err := NewMergePipe(stub, testLogger())
	if err != nil {
		t.Fatalf("NewMergePipe: %v", err)
	}

	var out bytes.Buffer
	written, err := pipe.Merge(context.Background(), "https://v.example/v", "https://a.example/a", 0, &out)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if want := int64(64 * 32); written != want {
		t.Errorf("written = %d, want %d", written, want)
	}
	if int64(out.Len()) != written {
		t.Errorf("output length %d != written %d", out.Len(), written)
	}
}

func TestMergeResumeOffset(t *testing.T) {
	stub := writeRemuxStub(t, emitScript)
	pipe, err := NewMergePipe(stub, testLogger())
	if err != nil {
		t.Fatalf("NewMergePipe: %v", err)
	}

	var full bytes.Buffer
	if _, err := pipe.Merge(context.Background(), "v", "a", 0, &full); err != nil {
		t.Fatalf("full run: %v", err)
	}

	for _, offset := range []int64{1, 31, 32, 1000} {
		var resumed bytes.Buffer
		if _, err := pipe.Merge(context.Background(), "v", "a", offset, &resumed); err != nil {
			t.Fatalf("Merge(offset=%d): %v", offset, err)
		}
		want := full.Bytes()[offset:]
		if !bytes.Equal(resumed.Bytes(), want) {
			t.Errorf("offset %d: resumed output differs from full[%d:]", offset, offset)
		}
	}
}

func TestMergeOffsetBeyondOutput(t *testing.T) {
	stub := writeRemuxStub(t, emitScript)
	pipe, err := NewMergePipe(stub, testLogger())
	if err != nil {
		t.Fatalf("NewMergePipe: %v", err)
	}

	var out bytes.Buffer
	written, err := pipe.Merge(context.Background(), "v", "a", 1<<20, &out)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if written != 0 || out.Len() != 0 {
		t.Errorf("expected empty relay when offset exceeds output, got %d bytes", out.Len())
	}
}

func TestMergeAbnormalExit(t *testing.T) {
	stub := writeRemuxStub(t, "echo 'Stream map error' >&2\nexit 2\n")
	pipe, err := NewMergePipe(stub, testLogger())
	if err != nil {
		t.Fatalf("NewMergePipe: %v", err)
	}

	var out bytes.Buffer
	_, err = pipe.Merge(context.Background(), "v", "a", 0, &out)

	var mergeErr *domain.MergeError
	if !errors.As(err, &mergeErr) {
		t.Fatalf("error type = %T, want *domain.MergeError", err)
	}
	if mergeErr.Stderr == "" {
		t.Error("MergeError should carry process stderr diagnostics")
	}
}

func TestMergeCancellationReapsProcess(t *testing.T) {
	// Stub emits one chunk then sleeps far longer than the test allows.
	stub := writeRemuxStub(t, "printf 'xxxxxxxx'\nsleep 300\n")
	pipe, err := NewMergePipe(stub, testLogger())
	if err != nil {
		t.Fatalf("NewMergePipe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var out bytes.Buffer
	go func() {
		_, err := pipe.Merge(ctx, "v", "a", 0, &out)
		done <- err
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected error after cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("merge pipe did not terminate and reap process after cancellation")
	}
}

func TestMergeClientDisconnect(t *testing.T) {
	stub := writeRemuxStub(t, emitScript+"sleep 300\n")
	pipe, err := NewMergePipe(stub, testLogger())
	if err != nil {
		t.Fatalf("NewMergePipe: %v", err)
	}

	w := &brokenWriter{accept: 64}
	done := make(chan error, 1)
	go func() {
		_, err := pipe.Merge(context.Background(), "v", "a", 0, w)
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected error when client write fails")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("merge pipe did not terminate after client disconnect")
	}
}
