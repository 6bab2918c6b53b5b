package memory

import (
	"context"
	"testing"

	"github.com/example/podcoord/internal/persistence"
	"github.com/example/podcoord/internal/persistence/persistencetest"
)

func TestStorageContract(t *testing.T) {
	persistencetest.RunStoreContract(t, func(t *testing.T) persistence.Store {
		return New()
	})
}

func TestStorageReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := New()
	if err := store.CreatePod(ctx, persistencetest.Pod("pod-1", "owner")); err != nil {
		t.Fatalf("CreatePod failed: %v", err)
	}

	fetched, _ := store.GetPod(ctx, "pod-1")
	fetched.InviteEmails[0] = "mutated@x.com"
	fetched.Goals[0].Name = "mutated"

	again, _ := store.GetPod(ctx, "pod-1")
	if again.InviteEmails[0] == "mutated@x.com" || again.Goals[0].Name == "mutated" {
		t.Fatalf("expected storage to be isolated from caller mutations")
	}
}
