package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSecretsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	secrets := map[string]string{
		"ANTHROPIC_API_KEY": "sk-ant-test",
		"OPENAI_API_KEY":    "sk-test",
	}

	if SecretsFileExists(dir) {
		t.Fatal("secrets file should not exist yet")
	}

	if err := EncryptSecretsFile(dir, "hunter2", secrets); err != nil {
		t.Fatalf("EncryptSecretsFile failed: %v", err)
	}
	if !SecretsFileExists(dir) {
		t.Fatal("secrets file should exist after encryption")
	}

	// File must be locked down.
	info, err := os.Stat(filepath.Join(dir, secretsFileName))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600 permissions, got %04o", info.Mode().Perm())
	}

	decrypted, err := DecryptSecretsFile(dir, "hunter2")
	if err != nil {
		t.Fatalf("DecryptSecretsFile failed: %v", err)
	}
	if decrypted["ANTHROPIC_API_KEY"] != "sk-ant-test" {
		t.Errorf("round trip lost secret: %v", decrypted)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	dir := t.TempDir()
	if err := EncryptSecretsFile(dir, "right", map[string]string{"K": "v"}); err != nil {
		t.Fatal(err)
	}

	if _, err := DecryptSecretsFile(dir, "wrong"); err == nil {
		t.Error("expected decryption failure with wrong password")
	}
}

func TestGetSecretPrecedence(t *testing.T) {
	SetDecryptedSecrets(map[string]string{"TUXPILOT_TEST_SECRET": "from-file"})
	defer SetDecryptedSecrets(nil)

	t.Setenv("TUXPILOT_TEST_SECRET", "from-env")

	// Secrets file wins over environment.
	value, err := GetSecret("TUXPILOT_TEST_SECRET")
	if err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}
	if value != "from-file" {
		t.Errorf("expected file value to win, got %q", value)
	}

	// Environment is the fallback.
	SetDecryptedSecrets(nil)
	value, err = GetSecret("TUXPILOT_TEST_SECRET")
	if err != nil {
		t.Fatalf("GetSecret fallback failed: %v", err)
	}
	if value != "from-env" {
		t.Errorf("expected env fallback, got %q", value)
	}

	if _, err := GetSecret("TUXPILOT_MISSING_SECRET"); err == nil {
		t.Error("expected error for missing secret")
	}
}
