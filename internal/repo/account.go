package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/authsession/internal/autherr"
	"github.com/Skotchmaster/authsession/internal/models"
)

type AccountRepo struct {
	DB *gorm.DB
}

func NewAccountRepo(db *gorm.DB) *AccountRepo {
	return &AccountRepo{DB: db}
}

func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	var acc models.Account
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, autherr.AccountNotFound("email", email)
		}
		return nil, autherr.StoreUnavailable(err, "accounts.find_by_email")
	}
	return &acc, nil
}

func (r *AccountRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var acc models.Account
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, autherr.AccountNotFound("account_id", id.String())
		}
		return nil, autherr.StoreUnavailable(err, "accounts.find_by_id")
	}
	return &acc, nil
}

// Create inserts a new account. The unique index on email turns a duplicate
// registration into a validation error.
func (r *AccountRepo) Create(ctx context.Context, acc *models.Account) error {
	if err := r.DB.WithContext(ctx).Create(acc).Error; err != nil {
		if isUniqueViolation(err) {
			return autherr.Validation("email already registered", "email", acc.Email)
		}
		return autherr.StoreUnavailable(err, "accounts.create")
	}
	return nil
}

// Save writes the mutable fields of an existing account.
func (r *AccountRepo) Save(ctx context.Context, acc *models.Account) error {
	acc.UpdatedAt = time.Now().UTC()
	res := r.DB.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", acc.ID).
		Updates(map[string]any{
			"first_name":    acc.FirstName,
			"last_name":     acc.LastName,
			"patronymic":    acc.Patronymic,
			"password_hash": acc.PasswordHash,
			"updated_at":    acc.UpdatedAt,
		})
	if res.Error != nil {
		return autherr.StoreUnavailable(res.Error, "accounts.save")
	}
	if res.RowsAffected == 0 {
		return autherr.AccountNotFound("account_id", acc.ID.String())
	}
	return nil
}

func (r *AccountRepo) ListAll(ctx context.Context, offset, limit int) ([]models.Account, int64, error) {
	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Account{}).Count(&total).Error; err != nil {
		return nil, 0, autherr.StoreUnavailable(err, "accounts.count")
	}

	var accounts []models.Account
	if err := r.DB.WithContext(ctx).
		Order("created_at ASC").Order("email ASC").
		Offset(offset).Limit(limit).
		Find(&accounts).Error; err != nil {
		return nil, 0, autherr.StoreUnavailable(err, "accounts.list")
	}
	return accounts, total, nil
}
