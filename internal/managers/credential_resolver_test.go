package managers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"

	"github.com/techwithparamesh/agent-app-sub006/internal/store/memory"
	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

func newKeyPair(t *testing.T) (string, string) {
	t.Helper()

	privateKey := make([]byte, curve25519.ScalarSize)
	_, err := rand.Read(privateKey)
	require.NoError(t, err)

	publicKey, err := curve25519.X25519(privateKey, curve25519.Basepoint)
	require.NoError(t, err)

	return base64.StdEncoding.EncodeToString(privateKey), base64.StdEncoding.EncodeToString(publicKey)
}

func TestCredentialResolver_Resolve(t *testing.T) {
	privateKey, publicKey := newKeyPair(t)

	decryption, err := NewCredentialDecryptionService(privateKey)
	require.NoError(t, err)

	store := memory.New()

	seal := func(id, userID string, verified bool) {
		sealed, err := SealCredential(publicKey, domain.Credential{
			ID:              id,
			UserID:          userID,
			IntegrationType: domain.IntegrationType_Slack,
			Payload:         map[string]any{"token": "xoxb-" + id},
		}, verified)
		require.NoError(t, err)
		require.NoError(t, store.SaveCredential(context.Background(), sealed))
	}

	seal("ok", "user-1", true)
	seal("unverified", "user-1", false)

	resolver := NewCredentialResolver(CredentialResolverDependencies{Store: store, DecryptionService: decryption})

	tests := []struct {
		name         string
		credentialID string
		userID       string
		wantErr      error
	}{
		{name: "owned and verified", credentialID: "ok", userID: "user-1"},
		{name: "foreign user", credentialID: "ok", userID: "user-2", wantErr: domain.ErrCredentialNotOwned},
		{name: "unverified", credentialID: "unverified", userID: "user-1", wantErr: domain.ErrCredentialNotVerified},
		{name: "unknown", credentialID: "missing", userID: "user-1", wantErr: domain.ErrCredentialNotFound},
		{name: "no handle", credentialID: "", userID: "user-1", wantErr: domain.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			credential, err := resolver.Resolve(context.Background(), tt.credentialID, tt.userID)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "xoxb-ok", credential.Payload["token"])
			assert.Equal(t, domain.IntegrationType_Slack, credential.IntegrationType)
		})
	}
}

func TestCredentialDecryption_RejectsTampering(t *testing.T) {
	privateKey, publicKey := newKeyPair(t)

	decryption, err := NewCredentialDecryptionService(privateKey)
	require.NoError(t, err)

	sealed, err := SealCredential(publicKey, domain.Credential{ID: "c1", UserID: "user-1", Payload: map[string]any{"a": "b"}}, true)
	require.NoError(t, err)

	moved := sealed
	moved.UserID = "user-2"
	_, err = decryption.DecryptCredential(moved)
	assert.Error(t, err, "payload is bound to its owner")

	flipped := sealed
	flipped.EncryptedPayload = append([]byte(nil), sealed.EncryptedPayload...)
	flipped.EncryptedPayload[0] ^= 0xff
	_, err = decryption.DecryptCredential(flipped)
	assert.Error(t, err)

	_, err = NewCredentialDecryptionService("not-base64!")
	assert.Error(t, err)
}
