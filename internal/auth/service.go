// Package auth verifies partner API keys presented on HTTP requests.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"calwatch/internal/types"
)

// bcryptCost is the bcrypt cost factor used when minting API keys.
const bcryptCost = 12

// PartnerStore defines the data access needed by the key service.
type PartnerStore interface {
	GetPartner(ctx context.Context, id int64) (*types.Partner, error)
}

// KeyHasher abstracts bcrypt operations for testability.
type KeyHasher interface {
	CompareHashAndKey(hashedKey, key string) error
	GenerateFromKey(key string) (string, error)
}

// bcryptHasher is the production implementation of KeyHasher.
type bcryptHasher struct{}

func (b *bcryptHasher) CompareHashAndKey(hashedKey, key string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedKey), []byte(key))
}

func (b *bcryptHasher) GenerateFromKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// KeyService resolves bearer tokens of the form "<partner_id>.<secret>" to an
// authenticated actor. The secret is verified against the bcrypt hash stored
// on the partner row, so a database read never exposes usable credentials.
type KeyService struct {
	partners PartnerStore
	hasher   KeyHasher
	logger   *slog.Logger
}

// NewKeyService creates a KeyService. If hasher is nil the production bcrypt
// implementation is used.
func NewKeyService(partners PartnerStore, hasher KeyHasher, logger *slog.Logger) *KeyService {
	if hasher == nil {
		hasher = &bcryptHasher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyService{
		partners: partners,
		hasher:   hasher,
		logger:   logger,
	}
}

// Verify parses and checks a raw bearer token, returning the actor it
// authenticates. Malformed tokens, unknown partners, and hash mismatches all
// collapse into the same invalid-token error so callers cannot enumerate
// partner ids.
func (s *KeyService) Verify(ctx context.Context, token string) (types.Actor, error) {
	invalid := types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid API key", nil)

	partnerID, secret, err := splitToken(token)
	if err != nil {
		return types.Actor{}, invalid
	}

	partner, err := s.partners.GetPartner(ctx, partnerID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundPartner {
			return types.Actor{}, invalid
		}
		return types.Actor{}, err
	}
	if partner.APIKeyHash == "" {
		return types.Actor{}, invalid
	}

	if err := s.hasher.CompareHashAndKey(partner.APIKeyHash, secret); err != nil {
		s.logger.Warn("API key verification failed", "partner_id", partnerID)
		return types.Actor{}, invalid
	}

	return types.Actor{PartnerID: partnerID}, nil
}

// MintKey hashes a freshly generated secret for storage. The raw secret is
// shown to the partner once and never persisted.
func (s *KeyService) MintKey(secret string) (string, error) {
	hash, err := s.hasher.GenerateFromKey(secret)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash API key", err)
	}
	return hash, nil
}

// splitToken separates "<partner_id>.<secret>" into its parts.
func splitToken(token string) (int64, string, error) {
	id, secret, found := strings.Cut(token, ".")
	if !found || secret == "" {
		return 0, "", types.NewAppError(types.ErrCodeAuthTokenInvalid, "malformed token", nil)
	}
	partnerID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || partnerID <= 0 {
		return 0, "", types.NewAppError(types.ErrCodeAuthTokenInvalid, "malformed token", nil)
	}
	return partnerID, secret, nil
}
