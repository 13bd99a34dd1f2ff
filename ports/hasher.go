package ports

// PasswordHasher hashes passwords one way and compares in constant time
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Compare(plaintext, hash string) bool
}
