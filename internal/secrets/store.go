package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zapgatehq/zapgate/internal/db"
)

// ErrDecrypt marks a credential set that exists but cannot be
// decrypted. That is misconfiguration (rotated master secret,
// corrupted row), not a transient store failure, so callers may treat
// it as terminally unusable.
var ErrDecrypt = errors.New("credential decrypt failed")

// credentialRepo is the slice of the repository the store needs.
type credentialRepo interface {
	GetCredentials(ctx context.Context, tenantID uuid.UUID, provider string) (*db.Credentials, error)
	UpsertCredentials(ctx context.Context, creds *db.Credentials) error
}

// ProviderCredentials is a decrypted credential set, valid only for
// the duration of the call that requested it.
type ProviderCredentials struct {
	PhoneNumberID string
	AccessToken   string
	AIAPIKey      string
	AIModel       string
}

// CredentialStore resolves decrypted credentials for dispatch and AI
// calls. Absence (db.ErrNotFound) means "cannot dispatch" and is the
// caller's skip signal, not an error to surface to the sender.
type CredentialStore struct {
	repo   credentialRepo
	cipher *Cipher
	logger *zap.Logger
}

// NewCredentialStore creates a credential store.
func NewCredentialStore(repo credentialRepo, cipher *Cipher, logger *zap.Logger) *CredentialStore {
	return &CredentialStore{
		repo:   repo,
		cipher: cipher,
		logger: logger,
	}
}

// For returns the decrypted credential set for (tenant, provider).
func (s *CredentialStore) For(ctx context.Context, tenantID uuid.UUID, provider string) (*ProviderCredentials, error) {
	creds, err := s.repo.GetCredentials(ctx, tenantID, provider)
	if err != nil {
		return nil, err
	}

	token, err := s.cipher.Decrypt(creds.AccessTokenEnc)
	if err != nil {
		s.logger.Error("failed to decrypt access token",
			zap.Error(err),
			zap.String("tenant_id", tenantID.String()),
		)
		return nil, fmt.Errorf("%w: access token: %v", ErrDecrypt, err)
	}

	out := &ProviderCredentials{
		PhoneNumberID: creds.PhoneNumberID,
		AccessToken:   token,
		AIModel:       creds.AIModel,
	}

	if creds.AIAPIKeyEnc != "" {
		key, err := s.cipher.Decrypt(creds.AIAPIKeyEnc)
		if err != nil {
			s.logger.Error("failed to decrypt AI API key",
				zap.Error(err),
				zap.String("tenant_id", tenantID.String()),
			)
			return nil, fmt.Errorf("%w: ai api key: %v", ErrDecrypt, err)
		}
		out.AIAPIKey = key
	}

	return out, nil
}

// Save encrypts and upserts a credential set for (tenant, provider).
func (s *CredentialStore) Save(ctx context.Context, tenantID uuid.UUID, provider, phoneNumberID, accessToken, aiAPIKey, aiModel string) error {
	tokenEnc, err := s.cipher.Encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}

	keyEnc := ""
	if aiAPIKey != "" {
		keyEnc, err = s.cipher.Encrypt(aiAPIKey)
		if err != nil {
			return fmt.Errorf("encrypt ai api key: %w", err)
		}
	}

	creds := &db.Credentials{
		ID:             uuid.New(),
		TenantID:       tenantID,
		Provider:       provider,
		PhoneNumberID:  phoneNumberID,
		AccessTokenEnc: tokenEnc,
		AIAPIKeyEnc:    keyEnc,
		AIModel:        aiModel,
	}

	return s.repo.UpsertCredentials(ctx, creds)
}
