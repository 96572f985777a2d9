package redis

import (
	"context"
	"strconv"
	"time"

	"gatekeeper/config"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/errors"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Hash fields of an identity record.
const (
	fieldID           = "id"
	fieldEmail        = "email"
	fieldName         = "name"
	fieldPasswordHash = "password_hash"
	fieldActive       = "active"
	fieldRefreshToken = "refresh_token"
	fieldRevokedAt    = "revoked_at"
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"
)

const (
	flagSet   = "1"
	flagUnset = "0"
)

// createIdentityScript claims the email index and writes the record in one step.
// KEYS[1] email index, KEYS[2] identity hash; ARGV[1] id, ARGV[2..] field/value pairs.
const createIdentityScript = `
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[2], unpack(ARGV, 2))
return 1
`

var createIdentityLua = goredis.NewScript(createIdentityScript)

// saveIdentityScript updates the mutable fields of an existing record.
// ARGV: name, active, updated_at, slot flag, slot value, revoked flag, revoked value.
const saveIdentityScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "name", ARGV[1], "active", ARGV[2], "updated_at", ARGV[3])
if ARGV[4] == "1" then
  redis.call("HSET", KEYS[1], "refresh_token", ARGV[5])
else
  redis.call("HDEL", KEYS[1], "refresh_token")
end
if ARGV[6] == "1" then
  redis.call("HSET", KEYS[1], "revoked_at", ARGV[7])
else
  redis.call("HDEL", KEYS[1], "revoked_at")
end
return 1
`

var saveIdentityLua = goredis.NewScript(saveIdentityScript)

// setRefreshScript overwrites the refresh slot of an existing record; other fields are untouched.
// ARGV: next flag, next value, now.
const setRefreshScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if ARGV[1] == "1" then
  redis.call("HSET", KEYS[1], "refresh_token", ARGV[2])
  redis.call("HDEL", KEYS[1], "revoked_at")
else
  redis.call("HDEL", KEYS[1], "refresh_token")
  redis.call("HSET", KEYS[1], "revoked_at", ARGV[3])
end
redis.call("HSET", KEYS[1], "updated_at", ARGV[3])
return 1
`

var setRefreshLua = goredis.NewScript(setRefreshScript)

// swapRefreshScript is the compare-and-swap on the refresh slot.
// ARGV: expected flag, expected value, next flag, next value, now.
const swapRefreshScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local current = redis.call("HGET", KEYS[1], "refresh_token")
if ARGV[1] == "1" then
  if current ~= ARGV[2] then
    return 0
  end
elseif current then
  return 0
end
if ARGV[3] == "1" then
  redis.call("HSET", KEYS[1], "refresh_token", ARGV[4])
  redis.call("HDEL", KEYS[1], "revoked_at")
else
  redis.call("HDEL", KEYS[1], "refresh_token")
  redis.call("HSET", KEYS[1], "revoked_at", ARGV[5])
end
redis.call("HSET", KEYS[1], "updated_at", ARGV[5])
return 1
`

var swapRefreshLua = goredis.NewScript(swapRefreshScript)

// identityRepository implements repository.IdentityRepository on Redis hashes.
// Each identity is one hash; a plain key maps the normalized email to the id.
type identityRepository struct {
	client goredis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewIdentityRepository is the constructor for the Redis identity store.
func NewIdentityRepository(client goredis.UniversalClient, cfg *config.Config) repository.IdentityRepository {
	prefix := ""
	if cfg.Redis != nil {
		prefix = cfg.Redis.KeyPrefix
	}

	return &identityRepository{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (repo *identityRepository) identityKey(id uuid.UUID) string {
	return repo.prefix + "identity:" + id.String()
}

func (repo *identityRepository) emailKey(email string) string {
	return repo.prefix + "identity:email:" + entity.NormalizeEmail(email)
}

// FindByID retrieves a single identity by its unique ID.
func (repo *identityRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Identity, error) {
	fields, err := repo.client.HGetAll(ctx, repo.identityKey(id)).Result()
	if err != nil {
		return nil, domainerrors.NewDatabaseExecuteError(err, "failed to find identity by id")
	}
	if len(fields) == 0 {
		return nil, repository.ErrIdentityNotFound
	}

	identity, err := decodeIdentity(fields)
	if err != nil {
		return nil, errors.Wrapf(err, "corrupt identity record %s", id)
	}

	return identity, nil
}

// FindByEmail resolves the email index, then loads the identity.
func (repo *identityRepository) FindByEmail(ctx context.Context, email string) (*entity.Identity, error) {
	rawID, err := repo.client.Get(ctx, repo.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, repository.ErrIdentityNotFound
		}

		return nil, domainerrors.NewDatabaseExecuteError(err, "failed to find identity by email")
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, errors.Wrapf(err, "corrupt email index for %s", entity.NormalizeEmail(email))
	}

	return repo.FindByID(ctx, id)
}

// Create persists a new identity; the email index is claimed atomically with the record.
func (repo *identityRepository) Create(ctx context.Context, identity *entity.Identity) error {
	if identity.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return errors.Wrap(err, "failed to generate identity id")
		}
		identity.ID = id
	}

	now := repo.now()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	if identity.UpdatedAt.IsZero() {
		identity.UpdatedAt = now
	}
	identity.Email = entity.NormalizeEmail(identity.Email)

	args := append([]any{identity.ID.String()}, encodeIdentity(identity)...)
	created, err := createIdentityLua.Run(ctx, repo.client,
		[]string{repo.emailKey(identity.Email), repo.identityKey(identity.ID)},
		args...,
	).Int()
	if err != nil {
		return domainerrors.NewDatabaseExecuteError(err, "failed to create identity")
	}
	if created == 0 {
		return repository.ErrDuplicateIdentity
	}

	return nil
}

// Save writes the mutable fields of an existing identity.
func (repo *identityRepository) Save(ctx context.Context, identity *entity.Identity) error {
	if identity.UpdatedAt.IsZero() {
		identity.UpdatedAt = repo.now()
	}

	slotFlag, slotValue := optionalString(identity.RefreshToken)
	revokedFlag, revokedValue := optionalTime(identity.RevokedAt)

	saved, err := saveIdentityLua.Run(ctx, repo.client,
		[]string{repo.identityKey(identity.ID)},
		identity.Name,
		formatBool(identity.Active),
		formatTime(identity.UpdatedAt),
		slotFlag, slotValue,
		revokedFlag, revokedValue,
	).Int()
	if err != nil {
		return domainerrors.NewDatabaseExecuteError(err, "failed to save identity")
	}
	if saved == 0 {
		return repository.ErrIdentityNotFound
	}

	return nil
}

// SetRefreshToken overwrites the slot in one script, leaving active and name as stored.
func (repo *identityRepository) SetRefreshToken(ctx context.Context, id uuid.UUID, next *string) error {
	nextFlag, nextValue := optionalString(next)

	set, err := setRefreshLua.Run(ctx, repo.client,
		[]string{repo.identityKey(id)},
		nextFlag, nextValue,
		formatTime(repo.now()),
	).Int()
	if err != nil {
		return domainerrors.NewDatabaseExecuteError(err, "failed to set refresh token")
	}
	if set == 0 {
		return repository.ErrIdentityNotFound
	}

	return nil
}

// SwapRefreshToken runs the compare-and-swap script on the identity hash.
func (repo *identityRepository) SwapRefreshToken(ctx context.Context, id uuid.UUID, expected, next *string) (bool, error) {
	expectedFlag, expectedValue := optionalString(expected)
	nextFlag, nextValue := optionalString(next)

	swapped, err := swapRefreshLua.Run(ctx, repo.client,
		[]string{repo.identityKey(id)},
		expectedFlag, expectedValue,
		nextFlag, nextValue,
		formatTime(repo.now()),
	).Int()
	if err != nil {
		return false, domainerrors.NewDatabaseExecuteError(err, "failed to swap refresh token")
	}

	return swapped == 1, nil
}

// encodeIdentity flattens an identity into HSET field/value pairs. Nil pointers are omitted.
func encodeIdentity(identity *entity.Identity) []any {
	values := []any{
		fieldID, identity.ID.String(),
		fieldEmail, identity.Email,
		fieldName, identity.Name,
		fieldPasswordHash, identity.PasswordHash,
		fieldActive, formatBool(identity.Active),
		fieldCreatedAt, formatTime(identity.CreatedAt),
		fieldUpdatedAt, formatTime(identity.UpdatedAt),
	}
	if identity.RefreshToken != nil {
		values = append(values, fieldRefreshToken, *identity.RefreshToken)
	}
	if identity.RevokedAt != nil {
		values = append(values, fieldRevokedAt, formatTime(*identity.RevokedAt))
	}

	return values
}

func decodeIdentity(fields map[string]string) (*entity.Identity, error) {
	id, err := uuid.Parse(fields[fieldID])
	if err != nil {
		return nil, errors.Wrap(err, "invalid id")
	}

	active, err := strconv.ParseBool(fields[fieldActive])
	if err != nil {
		return nil, errors.Wrap(err, "invalid active flag")
	}

	createdAt, err := parseTime(fields[fieldCreatedAt])
	if err != nil {
		return nil, errors.Wrap(err, "invalid created_at")
	}
	updatedAt, err := parseTime(fields[fieldUpdatedAt])
	if err != nil {
		return nil, errors.Wrap(err, "invalid updated_at")
	}

	identity := &entity.Identity{
		ID:           id,
		Email:        fields[fieldEmail],
		Name:         fields[fieldName],
		PasswordHash: fields[fieldPasswordHash],
		Active:       active,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}

	if token, ok := fields[fieldRefreshToken]; ok {
		identity.RefreshToken = &token
	}
	if raw, ok := fields[fieldRevokedAt]; ok {
		revokedAt, err := parseTime(raw)
		if err != nil {
			return nil, errors.Wrap(err, "invalid revoked_at")
		}
		identity.RevokedAt = &revokedAt
	}

	return identity, nil
}

func optionalString(value *string) (string, string) {
	if value == nil {
		return flagUnset, ""
	}

	return flagSet, *value
}

func optionalTime(value *time.Time) (string, string) {
	if value == nil {
		return flagUnset, ""
	}

	return flagSet, formatTime(*value)
}

func formatBool(b bool) string {
	return strconv.FormatBool(b)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}
