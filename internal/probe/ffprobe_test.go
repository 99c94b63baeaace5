package probe

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("12.500000\n")
	if err != nil {
		t.Fatal(err)
	}
	if d != 12500*time.Millisecond {
		t.Errorf("d = %v", d)
	}
	for _, bad := range []string{"N/A", "", "-1"} {
		if _, err := ParseDuration(bad); err == nil {
			t.Errorf("ParseDuration(%q) should fail", bad)
		}
	}
}

func TestDurationWithFakeBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub")
	}
	bin := filepath.Join(t.TempDir(), "ffprobe")
	script := "#!/bin/sh\necho 3.25\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	d, err := New(bin).Duration(context.Background(), []byte("audio"), "audio/webm;codecs=opus")
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if d != 3250*time.Millisecond {
		t.Errorf("d = %v", d)
	}
}

func TestDurationMissingBinary(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope")).Duration(context.Background(), []byte("x"), "audio/ogg")
	if err == nil {
		t.Error("expected error for missing binary")
	}
}
