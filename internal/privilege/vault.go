package privilege

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrReasoningNotFound is returned when no full_reasoning has been vaulted
// under a given hash.
var ErrReasoningNotFound = errors.New("privilege: reasoning not found in vault")

// ReasoningStore is the backing store a Vault seals/opens entries against.
// Keys are reasoning_hash values; values are ciphertext blobs.
type ReasoningStore interface {
	Put(ctx context.Context, key string, ciphertext []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Vault is an opt-in, encrypted store of full_reasoning text, keyed by its
// reasoning_hash. Nothing in the pipeline requires it: by default
// full_reasoning is discarded after reduceReasoning computes the hash and
// summary (spec §4.8 only mandates the reduced forms reach the ledger).
// An operator who needs the unredacted reasoning for an audit can enable
// the vault to retain it, encrypted at rest.
type Vault struct {
	aead  ciphered
	store ReasoningStore
}

type ciphered interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}

// NewVault constructs a Vault encrypting with key (must be exactly
// chacha20poly1305.KeySize bytes, typically derived from an operator secret)
// and persisting ciphertext to store.
func NewVault(key []byte, store ReasoningStore) (*Vault, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("privilege.NewVault: %w", err)
	}
	return &Vault{aead: aead, store: store}, nil
}

// Seal encrypts fullReasoning and stores it under its reasoning_hash
// (computed identically to reduceReasoning, so Put/Get round-trip on the
// same hash a PrivilegeDecision carries).
func (v *Vault) Seal(ctx context.Context, fullReasoning, policyVersionSalt string) (hash string, err error) {
	sum := sha256.Sum256([]byte(fullReasoning + policyVersionSalt))
	hash = hex.EncodeToString(sum[:])

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("privilege.Vault.Seal: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(fullReasoning), nil)

	if err := v.store.Put(ctx, hash, sealed); err != nil {
		return "", fmt.Errorf("privilege.Vault.Seal: %w", err)
	}
	return hash, nil
}

// Open decrypts and returns the full_reasoning text stored under hash.
func (v *Vault) Open(ctx context.Context, hash string) (string, error) {
	sealed, err := v.store.Get(ctx, hash)
	if err != nil {
		return "", err
	}
	nonceSize := v.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", fmt.Errorf("privilege.Vault.Open: ciphertext too short")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("privilege.Vault.Open: %w", err)
	}
	return string(plaintext), nil
}

// MemoryStore is the default ReasoningStore: process-local, lost on
// restart. Suitable for single-node deployments or tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore returns an empty in-memory ReasoningStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Put(ctx context.Context, key string, ciphertext []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = ciphertext
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrReasoningNotFound
	}
	return v, nil
}

// RedisStore backs a Vault with Redis, for deployments sharing the vault
// across multiple review-tool instances.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore wraps an existing Redis client. keyPrefix namespaces vault
// entries from other uses of the same Redis instance.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (r *RedisStore) Put(ctx context.Context, key string, ciphertext []byte) error {
	return r.client.Set(ctx, r.keyPrefix+key, ciphertext, 0).Err()
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrReasoningNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
