package session

import (
	"strings"
	"testing"
)

func TestPathsAreScopedToProfile(t *testing.T) {
	profile := "test-profile"
	paths := []string{
		LockPath(profile),
		DBPath(profile),
		LogPath(profile),
	}
	for _, p := range paths {
		if !strings.Contains(p, "profiles/"+profile) {
			t.Errorf("path %q not scoped to profile dir", p)
		}
	}
}

func TestConfigPathIsGlobal(t *testing.T) {
	if strings.Contains(ConfigPath(), "profiles") {
		t.Errorf("config path %q must not be profile-scoped", ConfigPath())
	}
	if !strings.HasSuffix(ConfigPath(), "config.toml") {
		t.Errorf("config path = %q, want config.toml suffix", ConfigPath())
	}
}
