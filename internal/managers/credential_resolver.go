package managers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

type credentialResolver struct {
	store      domain.CredentialStore
	decryption *CredentialDecryptionService
}

type CredentialResolverDependencies struct {
	Store             domain.CredentialStore
	DecryptionService *CredentialDecryptionService
}

func NewCredentialResolver(deps CredentialResolverDependencies) domain.CredentialResolver {
	return &credentialResolver{
		store:      deps.Store,
		decryption: deps.DecryptionService,
	}
}

// Resolve loads and decrypts a credential after checking it belongs to userID
// and has been verified.
func (r *credentialResolver) Resolve(ctx context.Context, credentialID string, userID string) (domain.Credential, error) {
	if credentialID == "" {
		return domain.Credential{}, domain.ErrCredentialMissing
	}

	sealed, err := r.store.GetCredential(ctx, credentialID)
	if err != nil {
		return domain.Credential{}, err
	}

	if sealed.UserID != userID {
		log.Warn().Str("credentialID", credentialID).Str("userID", userID).Msg("credentials: ownership check failed")
		return domain.Credential{}, fmt.Errorf("%w: %s", domain.ErrCredentialNotOwned, credentialID)
	}

	if !sealed.Verified {
		return domain.Credential{}, fmt.Errorf("%w: %s", domain.ErrCredentialNotVerified, credentialID)
	}

	if r.decryption == nil {
		return domain.Credential{}, domain.NewConfigurationError("no credential private key configured")
	}

	payload, err := r.decryption.DecryptCredential(sealed)
	if err != nil {
		return domain.Credential{}, err
	}

	return domain.Credential{
		ID:              sealed.ID,
		UserID:          sealed.UserID,
		IntegrationType: sealed.IntegrationType,
		Payload:         payload,
	}, nil
}
