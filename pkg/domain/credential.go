package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrCredentialNotFound    = errors.New("credential not found")
	ErrCredentialNotOwned    = errors.New("credential does not belong to user")
	ErrCredentialNotVerified = errors.New("credential has not been verified")
	ErrCredentialMissing     = fmt.Errorf("%w: credential handle missing", ErrConfiguration)
)

// Credential is a decrypted credential ready to be handed to an adapter.
type Credential struct {
	ID              string
	UserID          string
	IntegrationType IntegrationType
	Payload         map[string]any
}

// SealedCredential is a credential as persisted: the payload is encrypted to the
// executor's X25519 public key with an ephemeral key pair.
type SealedCredential struct {
	ID                 string          `json:"id" bson:"_id"`
	UserID             string          `json:"user_id" bson:"user_id"`
	IntegrationType    IntegrationType `json:"integration_type" bson:"integration_type"`
	Verified           bool            `json:"verified" bson:"verified"`
	EphemeralPublicKey []byte          `json:"ephemeral_public_key" bson:"ephemeral_public_key"`
	Nonce              []byte          `json:"nonce" bson:"nonce"`
	EncryptedPayload   []byte          `json:"encrypted_payload" bson:"encrypted_payload"`
}

type CredentialStore interface {
	GetCredential(ctx context.Context, credentialID string) (SealedCredential, error)
	SaveCredential(ctx context.Context, credential SealedCredential) error
}

type CredentialResolver interface {
	Resolve(ctx context.Context, credentialID string, userID string) (Credential, error)
}

// DecodeCredentialPayload maps a decrypted payload onto a typed struct using its
// json tags.
func DecodeCredentialPayload[T any](credential Credential) (T, error) {
	var decoded T

	payloadJSON, err := json.Marshal(credential.Payload)
	if err != nil {
		return decoded, fmt.Errorf("failed to marshal credential payload: %w", err)
	}

	if err := json.Unmarshal(payloadJSON, &decoded); err != nil {
		return decoded, fmt.Errorf("failed to decode credential %s: %w", credential.ID, err)
	}

	return decoded, nil
}

type OAuthCredential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

type TokenCredential struct {
	Token string `json:"token"`
}

type APIKeyCredential struct {
	APIKey string `json:"api_key"`
}
