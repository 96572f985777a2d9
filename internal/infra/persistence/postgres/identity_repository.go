// Package postgres contains the concrete implementation of the persistence layer using GORM and PostgreSQL.
package postgres

import (
	"context"
	"time"

	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// identityRepository implements the domain IdentityRepository interface using GORM.
type identityRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewIdentityRepository is the constructor for identityRepository.
// It returns the repository as a repository.IdentityRepository interface, adhering to dependency inversion.
func NewIdentityRepository(db *gorm.DB) repository.IdentityRepository {
	return &identityRepository{
		db:  db,
		now: time.Now,
	}
}

// FindByID retrieves a single identity by its unique ID.
func (repo *identityRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Identity, error) {
	var identityM model.IdentityModel
	if err := repo.db.WithContext(ctx).Where("id = ?", id).First(&identityM).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrIdentityNotFound
		}

		return nil, domainerrors.NewDatabaseExecuteError(err, "failed to find identity by id")
	}

	return toIdentityDomain(&identityM), nil
}

// FindByEmail retrieves a single identity by email, ignoring case.
func (repo *identityRepository) FindByEmail(ctx context.Context, email string) (*entity.Identity, error) {
	var identityM model.IdentityModel
	err := repo.db.WithContext(ctx).
		Where("lower(email) = ?", entity.NormalizeEmail(email)).
		First(&identityM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrIdentityNotFound
		}

		return nil, domainerrors.NewDatabaseExecuteError(err, "failed to find identity by email")
	}

	return toIdentityDomain(&identityM), nil
}

// Create persists a new identity. IDs are generated here (UUIDv7) when the caller leaves them empty.
func (repo *identityRepository) Create(ctx context.Context, identity *entity.Identity) error {
	if identity.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return errors.Wrap(err, "failed to generate identity id")
		}
		identity.ID = id
	}

	identityM := fromIdentityDomain(identity)
	if err := repo.db.WithContext(ctx).Create(identityM).Error; err != nil {
		if isUniqueConstraintViolation(err) {
			return repository.ErrDuplicateIdentity
		}
		if isNotNullConstraintViolation(err) {
			return domainerrors.NewDatabaseExecuteError(err, "missing required identity information")
		}

		return domainerrors.NewDatabaseExecuteError(err, "failed to create identity")
	}

	identity.CreatedAt = identityM.CreatedAt
	identity.UpdatedAt = identityM.UpdatedAt

	return nil
}

// Save writes the mutable columns of an existing identity.
func (repo *identityRepository) Save(ctx context.Context, identity *entity.Identity) error {
	if identity.UpdatedAt.IsZero() {
		identity.UpdatedAt = repo.now()
	}

	result := repo.db.WithContext(ctx).
		Model(&model.IdentityModel{}).
		Where("id = ?", identity.ID).
		Updates(map[string]any{
			"name":          identity.Name,
			"active":        identity.Active,
			"refresh_token": identity.RefreshToken,
			"revoked_at":    identity.RevokedAt,
			"updated_at":    identity.UpdatedAt,
		})
	if result.Error != nil {
		return domainerrors.NewDatabaseExecuteError(result.Error, "failed to save identity")
	}
	if result.RowsAffected == 0 {
		return repository.ErrIdentityNotFound
	}

	return nil
}

// SetRefreshToken writes only the slot columns, so a concurrent change to active or name is kept.
func (repo *identityRepository) SetRefreshToken(ctx context.Context, id uuid.UUID, next *string) error {
	result := repo.db.WithContext(ctx).
		Model(&model.IdentityModel{}).
		Where("id = ?", id).
		Updates(slotColumns(next, repo.now()))
	if result.Error != nil {
		return domainerrors.NewDatabaseExecuteError(result.Error, "failed to set refresh token")
	}
	if result.RowsAffected == 0 {
		return repository.ErrIdentityNotFound
	}

	return nil
}

// SwapRefreshToken is a conditional UPDATE: the WHERE clause carries the expected slot value,
// so concurrent swaps for the same identity cannot both succeed.
func (repo *identityRepository) SwapRefreshToken(ctx context.Context, id uuid.UUID, expected, next *string) (bool, error) {
	query := repo.db.WithContext(ctx).
		Model(&model.IdentityModel{}).
		Where("id = ?", id)
	if expected == nil {
		query = query.Where("refresh_token IS NULL")
	} else {
		query = query.Where("refresh_token = ?", *expected)
	}

	result := query.Updates(slotColumns(next, repo.now()))
	if result.Error != nil {
		return false, domainerrors.NewDatabaseExecuteError(result.Error, "failed to swap refresh token")
	}

	return result.RowsAffected == 1, nil
}

// slotColumns is the column set of a refresh slot write. Emptying the slot stamps revoked_at.
func slotColumns(next *string, now time.Time) map[string]any {
	var revokedAt *time.Time
	if next == nil {
		revokedAt = &now
	}

	return map[string]any{
		"refresh_token": next,
		"revoked_at":    revokedAt,
		"updated_at":    now,
	}
}

// --- Mapper Functions ---

// toIdentityDomain converts a GORM IdentityModel to a domain Identity entity.
func toIdentityDomain(data *model.IdentityModel) *entity.Identity {
	if data == nil {
		return nil
	}

	return &entity.Identity{
		ID:           data.ID,
		Email:        data.Email,
		Name:         data.Name,
		PasswordHash: data.PasswordHash,
		Active:       data.Active,
		RefreshToken: data.RefreshToken,
		RevokedAt:    data.RevokedAt,
		CreatedAt:    data.CreatedAt,
		UpdatedAt:    data.UpdatedAt,
	}
}

// fromIdentityDomain converts a domain Identity entity to a GORM IdentityModel for persistence.
func fromIdentityDomain(data *entity.Identity) *model.IdentityModel {
	if data == nil {
		return nil
	}

	return &model.IdentityModel{
		ID:           data.ID,
		Email:        entity.NormalizeEmail(data.Email),
		Name:         data.Name,
		PasswordHash: data.PasswordHash,
		Active:       data.Active,
		RefreshToken: data.RefreshToken,
		RevokedAt:    data.RevokedAt,
		CreatedAt:    data.CreatedAt,
		UpdatedAt:    data.UpdatedAt,
	}
}
