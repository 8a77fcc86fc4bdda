package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mcdev12/scrumdeck/internal/models"
)

func newTestKeyring(t *testing.T) *Keyring {
	t.Helper()
	return NewKeyring(filepath.Join(t.TempDir(), "scrumdeck", "identity.json"))
}

func TestLoadUnknownSession(t *testing.T) {
	k := newTestKeyring(t)
	lp, err := k.Load("never-joined")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if lp != nil {
		t.Errorf("Load of unknown session = %+v, want nil", lp)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	k := newTestKeyring(t)
	want := models.LocalPlayer{ID: "player_1_abc", Name: "Alice", Role: models.RoleAdmin}

	if err := k.Save("s1", want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := k.Load("s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || *got != want {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
}

func TestSaveReplacesCredential(t *testing.T) {
	k := newTestKeyring(t)

	k.Save("s1", models.LocalPlayer{ID: "p1", Name: "Alice", Role: models.RolePlayer})
	if err := k.Save("s1", models.LocalPlayer{ID: "p2", Name: "Alice", Role: models.RoleAdmin}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := k.Load("s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ID != "p2" || got.Role != models.RoleAdmin {
		t.Errorf("Load after replace = %+v", got)
	}
}

func TestCredentialsAreSessionScoped(t *testing.T) {
	k := newTestKeyring(t)

	k.Save("s1", models.LocalPlayer{ID: "p1", Name: "Alice", Role: models.RoleAdmin})
	k.Save("s2", models.LocalPlayer{ID: "p2", Name: "Alice", Role: models.RolePlayer})

	if err := k.Discard("s1"); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	if lp, _ := k.Load("s1"); lp != nil {
		t.Errorf("discarded credential still present: %+v", lp)
	}
	if lp, _ := k.Load("s2"); lp == nil || lp.ID != "p2" {
		t.Errorf("discard disturbed other session: %+v", lp)
	}
}

func TestDiscardUnknownSession(t *testing.T) {
	k := newTestKeyring(t)
	if err := k.Discard("never-joined"); err != nil {
		t.Errorf("Discard of unknown session = %v, want nil", err)
	}
}

func TestKeyringSurvivesProcessRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	want := models.LocalPlayer{ID: "p1", Name: "Alice", Role: models.RolePlayer}

	if err := NewKeyring(path).Save("s1", want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh keyring over the same file sees the saved credential.
	got, err := NewKeyring(path).Load("s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || *got != want {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
}

func TestKeyringRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewKeyring(path).Load("s1"); err == nil {
		t.Error("Load of corrupt keyring succeeded, want error")
	}
}
