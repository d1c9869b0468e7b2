package messages

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	m := Default()

	if !strings.Contains(m.InstitutionLinked.Body, "%s") {
		t.Errorf("InstitutionLinked.Body = %q, want an institution placeholder", m.InstitutionLinked.Body)
	}
	if !strings.Contains(m.Errors.InvalidToken, "retry connecting your bank") {
		t.Errorf("Errors.InvalidToken = %q, want an actionable message", m.Errors.InvalidToken)
	}

	// Callers get a copy.
	m.Errors.Auth = "changed"
	if Default().Errors.Auth == "changed" {
		t.Error("Default() returned shared state")
	}
}

func TestLoad_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	err := os.WriteFile(path, []byte(`{"errors":{"provider":"Your bank is taking a break."}}`), 0o600)
	if err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if m.Errors.Provider != "Your bank is taking a break." {
		t.Errorf("Errors.Provider = %q, want override", m.Errors.Provider)
	}
	if m.Errors.Auth != Default().Errors.Auth {
		t.Errorf("Errors.Auth = %q, want default kept", m.Errors.Auth)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Load() of missing file succeeded")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte(`{`), 0o600)
	if _, err := Load(path); err == nil {
		t.Error("Load() of invalid json succeeded")
	}
}
