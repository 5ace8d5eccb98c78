package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".studyhall", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestSocketPath(t *testing.T) {
	got := SocketPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "daemon.sock")) {
		t.Errorf("SocketPath(test) = %q, want suffix sessions/test/daemon.sock", got)
	}
}

func TestMirrorDBPath(t *testing.T) {
	got := MirrorDBPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "mirror.db")) {
		t.Errorf("MirrorDBPath(test) = %q, want suffix sessions/test/mirror.db", got)
	}
}

func TestTokenPath(t *testing.T) {
	got := TokenPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "token.json")) {
		t.Errorf("TokenPath(test) = %q, want suffix sessions/test/token.json", got)
	}
}
