package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// stubYTDLP writes a shell script that prints the given JSON document,
// standing in for a real yt-dlp.
func stubYTDLP(t *testing.T, doc string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stub not supported on windows")
	}

	bin := filepath.Join(t.TempDir(), "yt-dlp")
	script := fmt.Sprintf("#!/bin/sh\ncat <<'EOF'\n%s\nEOF\n", doc)
	if err := os.WriteFile(bin, []byte(script), 0755); err != nil {
		t.Fatalf("writing yt-dlp stub: %v", err)
	}
	return bin
}

func TestYTDLPResolverParsesInfo(t *testing.T) {
	bin := stubYTDLP(t, `{"url":"","entries":[{"url":"https://yt.example/live-1.m3u8"},{"url":"https://yt.example/live-2.m3u8"}]}`)
	// Struct-literal construction, like the fields invite.
	r := &YTDLPResolver{Binary: bin}

	v, err := r.Resolve(context.Background(), "https://youtube.example/watch?v=abc")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(v.Entries) != 2 {
		t.Fatalf("Resolve() returned %d entries, want 2", len(v.Entries))
	}
	if v.Entries[0].URL != "https://yt.example/live-1.m3u8" {
		t.Errorf("first entry URL = %s", v.Entries[0].URL)
	}
}

func TestYTDLPResolverBadOutput(t *testing.T) {
	bin := stubYTDLP(t, "not json")
	r := &YTDLPResolver{Binary: bin}

	if _, err := r.Resolve(context.Background(), "https://youtube.example/watch?v=abc"); err == nil {
		t.Error("Resolve() = nil error, want failure on malformed output")
	}
}
