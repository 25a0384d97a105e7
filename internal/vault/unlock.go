package vault

import (
	"context"
	"sync"

	"cachet/internal/crypto"
	"cachet/internal/domain"
)

// BlobFetcher retrieves the caller's own locked key blob, typically from
// the relay server's /me/privateKeyBlob collaborator endpoint.
type BlobFetcher func(ctx context.Context) (domain.KeyBlob, error)

// PendingUnlock holds a fetched blob while the user is prompted for the
// secret. It keeps UI concerns (how the secret is obtained) away from the
// crypto contract.
type PendingUnlock struct {
	blob domain.KeyBlob
}

// RequestUnlock fetches the locked blob and returns a pending unlock.
// No key material is decrypted yet.
func RequestUnlock(ctx context.Context, fetch BlobFetcher) (*PendingUnlock, error) {
	blob, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	return &PendingUnlock{blob: blob}, nil
}

// Complete attempts the unlock with the user-supplied secret. On success
// the decrypted key is owned by the returned handle; on failure
// ErrKeyUnlock is returned and nothing is retained.
func (p *PendingUnlock) Complete(secret string) (*PrivateKeyHandle, error) {
	pemBytes, err := Unlock(p.blob, secret)
	if err != nil {
		return nil, ErrKeyUnlock
	}
	priv, err := crypto.DecodePrivateKeyPEM(pemBytes)
	crypto.Wipe(pemBytes)
	if err != nil {
		// A decodable-but-bogus blob is the same failure as a wrong
		// password from the caller's point of view.
		return nil, ErrKeyUnlock
	}
	return &PrivateKeyHandle{key: priv}, nil
}

// PrivateKeyHandle owns an unlocked private key in memory. It is the only
// place a decrypted key lives; Destroy wipes it.
type PrivateKeyHandle struct {
	mu        sync.Mutex
	key       []byte
	destroyed bool
}

// Bytes borrows the key material. The slice is owned by the handle and
// must not be retained past Destroy. Returns nil after Destroy.
func (h *PrivateKeyHandle) Bytes() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return nil
	}
	return h.key
}

// Destroy wipes the key. Safe to call more than once.
func (h *PrivateKeyHandle) Destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return
	}
	crypto.Wipe(h.key)
	h.key = nil
	h.destroyed = true
}
