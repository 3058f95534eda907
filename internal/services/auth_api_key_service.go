package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"triageapp/internal/models"
	"triageapp/internal/observability"
	"triageapp/internal/serviceinterfaces"
	contextutils "triageapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

// AuthAPIKeyService issues and validates bearer keys for triagectl
type AuthAPIKeyService struct {
	db     *sql.DB
	logger *observability.Logger
}

var _ serviceinterfaces.AuthAPIKeyServiceInterface = (*AuthAPIKeyService)(nil)

// NewAuthAPIKeyService creates a new AuthAPIKeyService instance
func NewAuthAPIKeyService(db *sql.DB, logger *observability.Logger) *AuthAPIKeyService {
	return &AuthAPIKeyService{
		db:     db,
		logger: logger,
	}
}

const (
	// KeyPrefix is the prefix for all auth API keys
	KeyPrefix = "tri_"
	// KeyLength is the length of the random part of the key (32 characters)
	KeyLength = 32
	// keyPrefixLength is how much of the raw key is stored in clear for lookup
	keyPrefixLength = 12
)

const apiKeyColumns = `id, user_id, key_name, key_hash, key_prefix, permission_level, last_used_at, created_at, updated_at`

// generateAPIKey generates a new random API key
func generateAPIKey() (string, error) {
	randomBytes := make([]byte, KeyLength/2)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(randomBytes), nil
}

// hashAPIKey hashes an API key using bcrypt
func hashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hash), nil
}

func apiKeyPrefix(rawKey string) string {
	if len(rawKey) > keyPrefixLength {
		return rawKey[:keyPrefixLength]
	}
	return rawKey
}

func scanAPIKey(row rowScanner) (*models.AuthAPIKey, error) {
	var k models.AuthAPIKey
	err := row.Scan(&k.ID, &k.UserID, &k.KeyName, &k.KeyHash, &k.KeyPrefix, &k.PermissionLevel,
		&k.LastUsedAt, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// CreateAPIKey creates a new API key for a user. The raw key is only ever returned here.
func (s *AuthAPIKeyService) CreateAPIKey(ctx context.Context, userID int, keyName string, permissionLevel string) (result0 *models.AuthAPIKey, result1 string, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "create_api_key",
		observability.AttributeUserID(userID),
		attribute.String("permission_level", permissionLevel),
	)
	defer observability.FinishSpan(span, &err)

	if !models.IsValidPermissionLevel(permissionLevel) {
		return nil, "", contextutils.NewAppError(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid permission level",
			"Permission level must be 'readonly' or 'full'",
		)
	}
	keyName = strings.TrimSpace(keyName)
	if keyName == "" {
		return nil, "", contextutils.NewAppError(
			contextutils.ErrorCodeMissingRequired,
			contextutils.SeverityWarn,
			"Key name is required",
			"",
		)
	}

	rawKey, err := generateAPIKey()
	if err != nil {
		return nil, "", contextutils.WrapError(err, "failed to generate API key")
	}
	keyHash, err := hashAPIKey(rawKey)
	if err != nil {
		return nil, "", contextutils.WrapError(err, "failed to hash API key")
	}

	query := `INSERT INTO auth_api_keys (user_id, key_name, key_hash, key_prefix, permission_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING ` + apiKeyColumns
	apiKey, err := scanAPIKey(s.db.QueryRowContext(ctx, query, userID, keyName, keyHash, apiKeyPrefix(rawKey), permissionLevel))
	if err != nil {
		s.logger.Error(ctx, "Failed to create API key", err, map[string]interface{}{
			"user_id":  userID,
			"key_name": keyName,
		})
		return nil, "", contextutils.WrapError(err, "failed to create API key")
	}

	s.logger.Info(ctx, "Created new API key", map[string]interface{}{
		"user_id":          userID,
		"api_key_id":       apiKey.ID,
		"key_name":         keyName,
		"permission_level": permissionLevel,
	})
	return apiKey, rawKey, nil
}

// ListAPIKeys returns all API keys for a user, newest first
func (s *AuthAPIKeyService) ListAPIKeys(ctx context.Context, userID int) (result0 []models.AuthAPIKey, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "list_api_keys", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `SELECT `+apiKeyColumns+` FROM auth_api_keys WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to list API keys")
	}
	defer func() {
		_ = rows.Close()
	}()

	keys := []models.AuthAPIKey{}
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan API key")
		}
		keys = append(keys, *k)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to list API keys")
	}
	span.SetAttributes(attribute.Int("count", len(keys)))
	return keys, nil
}

// DeleteAPIKey deletes one of the user's keys
func (s *AuthAPIKeyService) DeleteAPIKey(ctx context.Context, userID int, keyID int) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "delete_api_key",
		observability.AttributeUserID(userID),
		attribute.Int("key_id", keyID),
	)
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, `DELETE FROM auth_api_keys WHERE id = $1 AND user_id = $2`, keyID, userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to delete API key")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to check deletion")
	}
	if n == 0 {
		return contextutils.WrapError(contextutils.ErrRecordNotFound, "API key not found")
	}

	s.logger.Info(ctx, "Deleted API key", map[string]interface{}{"user_id": userID, "key_id": keyID})
	return nil
}

// ValidateAPIKey resolves a raw key to its record. Candidates are narrowed by the stored prefix
// before the bcrypt comparison.
func (s *AuthAPIKeyService) ValidateAPIKey(ctx context.Context, rawKey string) (result0 *models.AuthAPIKey, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "validate_api_key")
	defer observability.FinishSpan(span, &err)

	if !strings.HasPrefix(rawKey, KeyPrefix) || len(rawKey) <= keyPrefixLength {
		return nil, contextutils.WrapError(contextutils.ErrInvalidCredentials, "invalid API key format")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+apiKeyColumns+` FROM auth_api_keys WHERE key_prefix = $1`, apiKeyPrefix(rawKey))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to validate API key")
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan API key")
		}
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(rawKey)) == nil {
			span.SetAttributes(
				attribute.Int("api_key_id", k.ID),
				observability.AttributeUserID(k.UserID),
				attribute.String("permission_level", k.PermissionLevel),
			)
			return k, nil
		}
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to validate API key")
	}

	s.logger.Warn(ctx, "Rejected API key", map[string]interface{}{"key": contextutils.MaskAPIKey(rawKey)})
	return nil, contextutils.WrapError(contextutils.ErrInvalidCredentials, "invalid API key")
}

// UpdateLastUsed stamps last_used_at. Failures are logged and swallowed.
func (s *AuthAPIKeyService) UpdateLastUsed(ctx context.Context, keyID int) error {
	ctx, span := observability.TraceUserFunction(ctx, "update_api_key_last_used", attribute.Int("key_id", keyID))
	defer observability.FinishSpan(span, nil)

	_, err := s.db.ExecContext(ctx, `UPDATE auth_api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, keyID)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error(ctx, "Failed to update last used timestamp", err, map[string]interface{}{"key_id": keyID})
	}
	return nil
}
