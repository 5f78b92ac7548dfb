package ports

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenSource issues and fingerprints opaque session tokens.
// NewToken returns the raw token (handed to the client exactly once) and its
// hash (the only form that is ever persisted). HashToken recomputes the hash
// for lookup on later requests.
type TokenSource interface {
	NewToken() (raw string, hash string, err error)
	HashToken(raw string) string
	NewCSRFToken() (string, error)
}
