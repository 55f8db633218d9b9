package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestSetupLogger(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	if err := setupLogger("debug"); err != nil {
		t.Fatalf("setupLogger(debug) failed: %v", err)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %s", log.GetLevel())
	}

	if err := setupLogger("chatty"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if log.GetLevel() != log.InfoLevel {
		t.Fatalf("expected fallback to info, got %s", log.GetLevel())
	}
}
