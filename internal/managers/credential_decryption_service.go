package managers

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

const credentialKeySalt = "flowcore-credentials"

// CredentialDecryptionService opens sealed credentials with the engine's X25519
// private key.
type CredentialDecryptionService struct {
	privateKey []byte
}

func NewCredentialDecryptionService(privateKeyBase64 string) (*CredentialDecryptionService, error) {
	privateKey, err := decodeX25519Key(privateKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode credential private key: %w", err)
	}

	return &CredentialDecryptionService{privateKey: privateKey}, nil
}

func (s *CredentialDecryptionService) DecryptCredential(sealed domain.SealedCredential) (map[string]any, error) {
	sharedSecret, err := curve25519.X25519(s.privateKey, sealed.EphemeralPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to compute shared secret: %w", err)
	}

	encryptionKey, err := deriveEncryptionKey(sharedSecret, sealed.ID)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
	}

	payloadJSON, err := aead.Open(nil, sealed.Nonce, sealed.EncryptedPayload, []byte(sealed.UserID))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential %s: %w", sealed.ID, err)
	}

	payload := map[string]any{}
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return nil, fmt.Errorf("credential %s payload is not a JSON object: %w", sealed.ID, err)
	}

	return payload, nil
}

// SealCredential encrypts a credential payload to the engine's public key using
// a fresh ephemeral key pair. The owning user id is bound as associated data.
func SealCredential(publicKeyBase64 string, credential domain.Credential, verified bool) (domain.SealedCredential, error) {
	publicKey, err := decodeX25519Key(publicKeyBase64)
	if err != nil {
		return domain.SealedCredential{}, fmt.Errorf("failed to decode credential public key: %w", err)
	}

	ephemeralPrivateKey := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(ephemeralPrivateKey); err != nil {
		return domain.SealedCredential{}, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	ephemeralPublicKey, err := curve25519.X25519(ephemeralPrivateKey, curve25519.Basepoint)
	if err != nil {
		return domain.SealedCredential{}, fmt.Errorf("failed to derive ephemeral public key: %w", err)
	}

	sharedSecret, err := curve25519.X25519(ephemeralPrivateKey, publicKey)
	if err != nil {
		return domain.SealedCredential{}, fmt.Errorf("failed to compute shared secret: %w", err)
	}

	encryptionKey, err := deriveEncryptionKey(sharedSecret, credential.ID)
	if err != nil {
		return domain.SealedCredential{}, err
	}

	aead, err := chacha20poly1305.New(encryptionKey)
	if err != nil {
		return domain.SealedCredential{}, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return domain.SealedCredential{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	payloadJSON, err := json.Marshal(credential.Payload)
	if err != nil {
		return domain.SealedCredential{}, fmt.Errorf("failed to marshal credential payload: %w", err)
	}

	return domain.SealedCredential{
		ID:                 credential.ID,
		UserID:             credential.UserID,
		IntegrationType:    credential.IntegrationType,
		Verified:           verified,
		EphemeralPublicKey: ephemeralPublicKey,
		Nonce:              nonce,
		EncryptedPayload:   aead.Seal(nil, nonce, payloadJSON, []byte(credential.UserID)),
	}, nil
}

func decodeX25519Key(base64Key string) ([]byte, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}

	if len(keyBytes) != curve25519.ScalarSize {
		return nil, fmt.Errorf("invalid key length: expected %d bytes, got %d", curve25519.ScalarSize, len(keyBytes))
	}

	return keyBytes, nil
}

func deriveEncryptionKey(sharedSecret []byte, credentialID string) ([]byte, error) {
	reader := hkdf.New(sha256.New, sharedSecret, []byte(credentialKeySalt), []byte("credential-"+credentialID))
	key := make([]byte, chacha20poly1305.KeySize)

	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	return key, nil
}
