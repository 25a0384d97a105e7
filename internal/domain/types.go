package domain

// UserID is the stable, opaque identifier an account keeps for life.
// Routing and key lookup use it; live connections never do.
type UserID string

// String returns the string form of the user id.
func (id UserID) String() string { return string(id) }

// Identity pairs a UserID with the account's display name.
// Immutable once issued.
type Identity struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"display_name"`
}

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// Account is the server-side record for a registered user. PasswordHash is
// a bcrypt digest; PrivateKeyBlob is opaque ciphertext the server can store
// but never decrypt.
type Account struct {
	ID           UserID  `json:"id"`
	Username     string  `json:"username"`
	DisplayName  string  `json:"display_name"`
	PasswordHash []byte  `json:"password_hash"`
	PublicKey    []byte  `json:"public_key"`
	Algorithm    string  `json:"algorithm"`
	KeyBlob      KeyBlob `json:"key_blob"`
	CreatedUTC   int64   `json:"created_utc"`
}

// KeyBlob is a password-locked private key at rest: ciphertext plus the IV
// and KDF salt needed to unlock it. The server is a blind custodian of this
// structure and never holds the password that opens it.
type KeyBlob struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	Salt       []byte `json:"salt"`
}

// Empty reports whether the blob carries no key material.
func (b KeyBlob) Empty() bool { return len(b.Ciphertext) == 0 }
