package models

import "time"

// Credential is one stored service/username/secret row.
// Secret always holds ciphertext; the plaintext password never reaches this type.
type Credential struct {
	ID        int64
	Service   string
	Username  string
	Secret    []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary returns the credential without its secret.
func (c *Credential) Summary() Summary {
	return Summary{
		ID:        c.ID,
		Service:   c.Service,
		Username:  c.Username,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// Summary is the listing shape of a credential.
type Summary struct {
	ID        int64     `json:"id"`
	Service   string    `json:"service"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Patch is a partial credential update as supplied by a caller.
// Nil fields are left unchanged.
type Patch struct {
	Service  *string `json:"service,omitempty"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Service == nil && p.Username == nil && p.Password == nil
}

// RecordPatch is a partial update at the storage layer. Secret is ciphertext.
type RecordPatch struct {
	Service  *string
	Username *string
	Secret   []byte
}
