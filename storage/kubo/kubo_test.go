package kubo_test

import (
	"context"
	"os/exec"
	"testing"

	"xdao.co/depot/storage"
	"xdao.co/depot/storage/kubo"
	"xdao.co/depot/storage/testkit"
)

// The conformance run needs a real Kubo install with an initialized
// repo; skip when the binary is absent so CI without IPFS still passes.
func TestConformance(t *testing.T) {
	bin, err := exec.LookPath("ipfs")
	if err != nil {
		t.Skip("ipfs binary not found")
	}
	if err := exec.Command(bin, "repo", "stat").Run(); err != nil {
		t.Skip("no initialized ipfs repo")
	}

	testkit.RunContentConformance(t, func(t *testing.T) storage.ContentProvider {
		return kubo.New(kubo.Options{Bin: bin})
	})
}

func TestInlineNeverReachesCLI(t *testing.T) {
	ctx := context.Background()
	// A nonexistent binary proves the CLI is not consulted for
	// inline identifiers.
	s := kubo.New(kubo.Options{Bin: "/nonexistent/ipfs"})

	id, err := storage.WriteBlob(ctx, s, []byte("tiny"))
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	if !id.IsInline() {
		t.Fatalf("expected inline identifier, got %s", id)
	}
	got, err := storage.ReadBlob(ctx, s, id)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if string(got) != "tiny" {
		t.Fatalf("payload = %q", got)
	}
	if n, err := s.Stat(ctx, id); err != nil || n != 4 {
		t.Fatalf("Stat = %d, %v", n, err)
	}
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
