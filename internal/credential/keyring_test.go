package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
)

func fileStore(t *testing.T) Store {
	t.Helper()
	return Store{Config: keyring.Config{
		ServiceName:      "jiradialog-test",
		AllowedBackends:  []keyring.BackendType{keyring.FileBackend},
		FileDir:          t.TempDir(),
		FilePasswordFunc: keyring.FixedStringPrompt("test-key"),
	}}
}

func TestSetGetDelete(t *testing.T) {
	s := fileStore(t)

	if _, err := s.Get(JiraToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before set, got %v", err)
	}
	if err := s.Set(JiraToken, "pat-123"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Get(JiraToken)
	if err != nil || got != "pat-123" {
		t.Fatalf("get: %q %v", got, err)
	}
	if err := s.Delete(JiraToken); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(JiraToken); err != nil {
		t.Fatalf("deleting a missing key must succeed: %v", err)
	}
	if _, err := s.Get(JiraToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDefaultUsesServiceName(t *testing.T) {
	cfg := Default().Config
	if cfg.ServiceName != "jiradialog" || len(cfg.AllowedBackends) == 0 || cfg.FilePasswordFunc == nil {
		t.Fatalf("unexpected default keyring config %+v", cfg)
	}
}
