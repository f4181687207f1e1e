package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewWatcher_NoFileUsesBase(t *testing.T) {
	base := *Default()
	w, err := NewWatcher(base, "", nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if w.Current().Controller.ReconcileInterval != base.Controller.ReconcileInterval {
		t.Error("Current() diverged from base with no override file")
	}
}

func TestNewWatcher_LoadsOverridesFileOnStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ops-overrides.yaml")
	if err := os.WriteFile(path, []byte("slack_enabled: true\nreconcile_interval: 30s\n"), 0o644); err != nil {
		t.Fatalf("writing overrides file: %v", err)
	}

	base := *Default()
	w, err := NewWatcher(base, path, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	cur := w.Current()
	if !cur.Slack.Enabled {
		t.Error("Slack.Enabled = false, want true from override file")
	}
	if cur.Controller.ReconcileInterval != 30*time.Second {
		t.Errorf("ReconcileInterval = %v, want 30s", cur.Controller.ReconcileInterval)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ops-overrides.yaml")
	if err := os.WriteFile(path, []byte("slack_enabled: false\n"), 0o644); err != nil {
		t.Fatalf("writing overrides file: %v", err)
	}

	base := *Default()
	w, err := NewWatcher(base, path, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- w.Watch(stop) }()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("slack_enabled: true\n"), 0o644); err != nil {
		t.Fatalf("rewriting overrides file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.Current().Slack.Enabled {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !w.Current().Slack.Enabled {
		t.Error("Watch() did not pick up the rewritten override file in time")
	}

	close(stop)
	<-done
}
