package capsule

import (
	"sync"

	"github.com/datasovereign/platform-core/internal/apperr"
)

// KeyStore holds the AES-256 keys a capsule's payload was sealed under,
// addressable by KeyID, guarded by a single mutex (spec §5 "Key material
// ... is held in a process-local key store guarded by a single mutex").
// Crypto-shred removes the entry and wipes the buffer, after which
// decryption is permanently impossible.
type KeyStore struct {
	mu   sync.Mutex
	keys map[string][]byte
}

// NewKeyStore creates an empty capsule key store.
func NewKeyStore() *KeyStore {
	return &KeyStore{keys: make(map[string][]byte)}
}

// Add registers key under keyID.
func (s *KeyStore) Add(keyID string, key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[keyID] = key
}

// Get returns the key for keyID, or false if it has never existed or has
// been shredded.
func (s *KeyStore) Get(keyID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[keyID]
	return key, ok
}

// Shred destroys the key for keyID, wiping the buffer before releasing it.
// Idempotent: a second call reports ErrAlreadyShredded rather than
// silently succeeding, matching the status-machine semantics of spec
// §4.4 ("a second shred returns already shredded").
func (s *KeyStore) Shred(keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[keyID]
	if !ok {
		return ErrAlreadyShredded
	}
	for i := range key {
		key[i] = 0
	}
	delete(s.keys, keyID)
	return nil
}

// ErrAlreadyShredded is returned by a second crypto-shred on the same key.
var ErrAlreadyShredded = apperr.New(apperr.KindInvalidState, "CAPSULE_001", "key already shredded")
