package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/authsession/internal/autherr"
	"github.com/Skotchmaster/authsession/internal/models"
)

type RefreshRepo struct {
	DB *gorm.DB
}

func NewRefreshRepo(db *gorm.DB) *RefreshRepo {
	return &RefreshRepo{DB: db}
}

func (r *RefreshRepo) FindByValue(ctx context.Context, value string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("token = ?", value).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, autherr.RefreshTokenNotFound()
		}
		return nil, autherr.StoreUnavailable(err, "refresh_tokens.find_by_value")
	}
	return &token, nil
}

func (r *RefreshRepo) FindByAccount(ctx context.Context, accountID uuid.UUID) (*models.RefreshToken, error) {
	var token models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("account_id = ?", accountID).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, autherr.RefreshTokenNotFound()
		}
		return nil, autherr.StoreUnavailable(err, "refresh_tokens.find_by_account")
	}
	return &token, nil
}

// Create inserts a token. A second token for the same account violates the
// unique index on account_id and is reported as a conflict.
func (r *RefreshRepo) Create(ctx context.Context, token *models.RefreshToken) error {
	if err := r.DB.WithContext(ctx).Create(token).Error; err != nil {
		if isUniqueViolation(err) {
			return autherr.Conflict("refresh token already issued", "account_id", token.AccountID.String())
		}
		return autherr.StoreUnavailable(err, "refresh_tokens.create")
	}
	return nil
}

// Rotate replaces old with next in one transaction. If old is already gone
// nothing is written.
func (r *RefreshRepo) Rotate(ctx context.Context, old, next *models.RefreshToken) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("token = ? AND account_id = ?", old.Token, old.AccountID).Delete(&models.RefreshToken{})
		if res.Error != nil {
			return autherr.StoreUnavailable(res.Error, "refresh_tokens.rotate.delete")
		}
		if res.RowsAffected == 0 {
			return autherr.RefreshTokenNotFound()
		}

		if err := tx.Create(next).Error; err != nil {
			if isUniqueViolation(err) {
				return autherr.Conflict("refresh token already issued", "account_id", next.AccountID.String())
			}
			return autherr.StoreUnavailable(err, "refresh_tokens.rotate.create")
		}
		return nil
	})
	if err != nil && autherr.KindOf(err) == autherr.KindUnknown {
		return autherr.StoreUnavailable(err, "refresh_tokens.rotate.commit")
	}
	return err
}

func (r *RefreshRepo) Delete(ctx context.Context, token *models.RefreshToken) error {
	if err := r.DB.WithContext(ctx).Where("token = ?", token.Token).Delete(&models.RefreshToken{}).Error; err != nil {
		return autherr.StoreUnavailable(err, "refresh_tokens.delete")
	}
	return nil
}

func (r *RefreshRepo) DeleteByAccount(ctx context.Context, accountID uuid.UUID) error {
	if err := r.DB.WithContext(ctx).Where("account_id = ?", accountID).Delete(&models.RefreshToken{}).Error; err != nil {
		return autherr.StoreUnavailable(err, "refresh_tokens.delete_by_account")
	}
	return nil
}
