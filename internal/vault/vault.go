package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/org/passvault/internal/audit"
	"github.com/org/passvault/internal/crypto"
	"github.com/org/passvault/internal/storage"
	"github.com/org/passvault/pkg/models"
)

// Auditor receives one event per vault operation.
type Auditor interface {
	Record(ctx context.Context, e audit.Event)
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, audit.Event) {}

// Vault mediates all access to stored credentials. It is the only component
// that handles plaintext passwords, and it never retains them between calls.
type Vault struct {
	store   storage.Store
	cipher  *crypto.Cipher
	auditor Auditor
}

// Option configures a Vault.
type Option func(*Vault)

// WithAuditor sets the audit sink.
func WithAuditor(a Auditor) Option {
	return func(v *Vault) {
		if a != nil {
			v.auditor = a
		}
	}
}

// New creates a Vault over store, sealing secrets with c.
func New(store storage.Store, c *crypto.Cipher, opts ...Option) (*Vault, error) {
	if c == nil {
		return nil, crypto.ErrNoKey
	}
	if store == nil {
		return nil, errors.New("vault: nil store")
	}
	v := &Vault{store: store, cipher: c, auditor: nopAuditor{}}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Add validates, encrypts and stores a new credential, returning its id.
func (v *Vault) Add(ctx context.Context, service, username, password string) (id int64, err error) {
	service = strings.TrimSpace(service)
	username = strings.TrimSpace(username)
	defer func() { v.record(ctx, "add", id, service, err) }()

	if err := requireText("service", service); err != nil {
		return 0, err
	}
	if err := requireText("username", username); err != nil {
		return 0, err
	}
	if password == "" {
		return 0, &ValidationError{Field: "password", Reason: "must not be empty"}
	}

	secret, err := v.cipher.Encrypt([]byte(password))
	if err != nil {
		return 0, fmt.Errorf("encrypting password: %w", err)
	}
	id, err = v.store.Insert(ctx, service, username, secret)
	if err != nil {
		return 0, fmt.Errorf("adding credential: %w", err)
	}
	return id, nil
}

// List returns every credential, newest first. Secrets are not decrypted.
func (v *Vault) List(ctx context.Context) (out []models.Summary, err error) {
	defer func() { v.record(ctx, "list", 0, "", err) }()

	creds, err := v.store.SelectAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	return summaries(creds), nil
}

// Search returns credentials whose service contains query, ignoring case.
// An empty query behaves like List.
func (v *Vault) Search(ctx context.Context, query string) (out []models.Summary, err error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return v.List(ctx)
	}
	defer func() { v.record(ctx, "search", 0, "", err) }()

	creds, err := v.store.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("searching credentials: %w", err)
	}
	return summaries(creds), nil
}

// Get returns the summary of one credential.
func (v *Vault) Get(ctx context.Context, id int64) (s *models.Summary, err error) {
	defer func() { v.record(ctx, "get", id, serviceOf(s), err) }()

	c, err := v.store.SelectOne(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("credential %d: %w", id, err)
	}
	sum := c.Summary()
	return &sum, nil
}

// Reveal decrypts and returns the password of one credential.
// The plaintext is not cached.
func (v *Vault) Reveal(ctx context.Context, id int64) (password string, err error) {
	var service string
	defer func() { v.record(ctx, "reveal", id, service, err) }()

	c, err := v.store.SelectOne(ctx, id)
	if err != nil {
		return "", fmt.Errorf("credential %d: %w", id, err)
	}
	service = c.Service

	plaintext, err := v.cipher.Decrypt(c.Secret)
	if err != nil {
		return "", fmt.Errorf("revealing credential %d: %w", id, err)
	}
	password = string(plaintext)
	zeroBytes(plaintext)
	return password, nil
}

// Update applies a partial change. A new password is re-encrypted before it
// reaches the store.
func (v *Vault) Update(ctx context.Context, id int64, patch models.Patch) (s *models.Summary, err error) {
	defer func() { v.record(ctx, "update", id, serviceOf(s), err) }()

	if patch.IsEmpty() {
		return nil, &ValidationError{Field: "patch", Reason: "no fields to update"}
	}

	var rp models.RecordPatch
	if patch.Service != nil {
		svc := strings.TrimSpace(*patch.Service)
		if err := requireText("service", svc); err != nil {
			return nil, err
		}
		rp.Service = &svc
	}
	if patch.Username != nil {
		user := strings.TrimSpace(*patch.Username)
		if err := requireText("username", user); err != nil {
			return nil, err
		}
		rp.Username = &user
	}
	if patch.Password != nil {
		if *patch.Password == "" {
			return nil, &ValidationError{Field: "password", Reason: "must not be empty"}
		}
		secret, err := v.cipher.Encrypt([]byte(*patch.Password))
		if err != nil {
			return nil, fmt.Errorf("encrypting password: %w", err)
		}
		rp.Secret = secret
	}

	c, err := v.store.Update(ctx, id, rp)
	if err != nil {
		return nil, fmt.Errorf("updating credential %d: %w", id, err)
	}
	sum := c.Summary()
	return &sum, nil
}

// Remove permanently deletes a credential.
func (v *Vault) Remove(ctx context.Context, id int64) (err error) {
	defer func() { v.record(ctx, "remove", id, "", err) }()

	if err := v.store.Remove(ctx, id); err != nil {
		return fmt.Errorf("removing credential %d: %w", id, err)
	}
	return nil
}

// Count returns the number of stored credentials.
func (v *Vault) Count(ctx context.Context) (int64, error) {
	n, err := v.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting credentials: %w", err)
	}
	return n, nil
}

func (v *Vault) record(ctx context.Context, op string, id int64, service string, err error) {
	v.auditor.Record(ctx, audit.Event{Op: op, ID: id, Service: service, Err: err})
}

func requireText(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Reason: "must not be empty"}
	}
	return nil
}

func summaries(creds []models.Credential) []models.Summary {
	out := make([]models.Summary, 0, len(creds))
	for i := range creds {
		out = append(out, creds[i].Summary())
	}
	return out
}

func serviceOf(s *models.Summary) string {
	if s == nil {
		return ""
	}
	return s.Service
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
