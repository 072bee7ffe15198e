package privilege

import (
	"context"
	"testing"

	"golang.org/x/crypto/chacha20poly1305"
)

func TestVault_SealThenOpenRoundTrips(t *testing.T) {
	key := make([]byte, chacha20poly1305.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	v, err := NewVault(key, NewMemoryStore())
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	hash, err := v.Seal(context.Background(), "full reasoning text about privilege", "policy-v1")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	got, err := v.Open(context.Background(), hash)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got != "full reasoning text about privilege" {
		t.Errorf("got %q", got)
	}
}

func TestVault_SealHashMatchesReduceReasoning(t *testing.T) {
	key := make([]byte, chacha20poly1305.KeySize)
	v, err := NewVault(key, NewMemoryStore())
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	hash, err := v.Seal(context.Background(), "some reasoning", "salt")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	wantHash, _ := reduceReasoning("some reasoning", "salt")
	if hash != wantHash {
		t.Errorf("Vault.Seal hash = %q, want reduceReasoning hash %q", hash, wantHash)
	}
}

func TestVault_OpenMissingKeyReturnsNotFound(t *testing.T) {
	key := make([]byte, chacha20poly1305.KeySize)
	v, err := NewVault(key, NewMemoryStore())
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	if _, err := v.Open(context.Background(), "deadbeef"); err != ErrReasoningNotFound {
		t.Errorf("got %v, want ErrReasoningNotFound", err)
	}
}

func TestMemoryStore_PutGet(t *testing.T) {
	m := NewMemoryStore()
	if err := m.Put(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := m.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("got %q", got)
	}
}
