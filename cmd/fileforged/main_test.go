package main

import (
	"testing"

	"fileforge/internal/catalog"
	"fileforge/internal/logging"
	"fileforge/internal/testsupport"
)

func TestBuildRegistryCoversEveryActionKind(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithEncryptionKey())

	registry, err := buildRegistry(cfg)
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}

	for _, kind := range catalog.AllActionKinds() {
		if _, ok := registry.Lookup(kind); !ok {
			t.Errorf("no processor registered for %s", kind)
		}
	}
}

func TestBuildRegistryRejectsBadEncryptionKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Security.EncryptionKey = "not-hex"

	if _, err := buildRegistry(cfg); err == nil {
		t.Fatal("expected an error for a malformed encryption key")
	}
}

func TestBuildDaemonAssemblesAndCloses(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	d, err := buildDaemon(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("buildDaemon: %v", err)
	}
	if d.Running() {
		t.Fatal("daemon should not run before Start")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close daemon: %v", err)
	}
}
