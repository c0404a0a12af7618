package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"trade-journal-go/internal/errs"
	"trade-journal-go/internal/models"
	"trade-journal-go/internal/uow"
	"trade-journal-go/internal/userctx"
)

// AccountService manages the accounts of the user on the context.
type AccountService struct {
	uow    *uow.UnitOfWork
	logger *zap.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(u *uow.UnitOfWork, logger *zap.Logger) *AccountService {
	return &AccountService{uow: u, logger: logger.Named("accounts")}
}

// findAccount returns account id when the user owns it.
func findAccount(db *gorm.DB, userID string, id uint) (*models.Account, error) {
	var account models.Account
	if err := db.Where("user_id = ?", userID).First(&account, id).Error; err != nil {
		return nil, errs.FromGorm(err, "account", id)
	}
	return &account, nil
}

// findDefaultAccount returns the user's default account.
func findDefaultAccount(db *gorm.DB, userID string) (*models.Account, error) {
	var account models.Account
	if err := db.Where("user_id = ? AND is_default = ?", userID, true).First(&account).Error; err != nil {
		return nil, errs.FromGorm(err, "default account of user", userID)
	}
	return &account, nil
}

func clearDefault(db *gorm.DB, userID string) error {
	err := db.Model(&models.Account{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		Update("is_default", false).Error
	if err != nil {
		return fmt.Errorf("failed to clear default account of '%s': %w", userID, err)
	}
	return nil
}

// Create opens an account. The user's first account always becomes the default.
func (s *AccountService) Create(ctx context.Context, name string, makeDefault bool) (*models.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errs.Invalid("name", "must not be empty")
	}
	userID := userctx.UserID(ctx)

	account := &models.Account{UserID: userID, Name: name}
	err := s.uow.Do(ctx, "create-account", []string{uow.UserKey(userID)}, func(tx *uow.Tx) error {
		_, err := findDefaultAccount(tx.DB, userID)
		switch {
		case errors.Is(err, errs.ErrNotFound):
			account.IsDefault = true
		case err != nil:
			return err
		case makeDefault:
			if err := clearDefault(tx.DB, userID); err != nil {
				return err
			}
			account.IsDefault = true
		}

		if err := tx.DB.Create(account).Error; err != nil {
			return fmt.Errorf("failed to create account '%s': %w", name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Account created",
		zap.String("user_id", userID),
		zap.Uint("account_id", account.ID),
		zap.Bool("default", account.IsDefault))
	return account, nil
}

// List returns the user's accounts, default first.
func (s *AccountService) List(ctx context.Context) ([]models.Account, error) {
	userID := userctx.UserID(ctx)
	var accounts []models.Account
	err := s.uow.DB(ctx).Where("user_id = ?", userID).Order("is_default desc, id asc").Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts of '%s': %w", userID, err)
	}
	return accounts, nil
}

// Get returns one of the user's accounts.
func (s *AccountService) Get(ctx context.Context, id uint) (*models.Account, error) {
	return findAccount(s.uow.DB(ctx), userctx.UserID(ctx), id)
}

// Default returns the user's default account.
func (s *AccountService) Default(ctx context.Context) (*models.Account, error) {
	return findDefaultAccount(s.uow.DB(ctx), userctx.UserID(ctx))
}

// SetDefault makes the account the user's only default.
func (s *AccountService) SetDefault(ctx context.Context, id uint) (*models.Account, error) {
	userID := userctx.UserID(ctx)
	var account *models.Account
	err := s.uow.Do(ctx, "set-default-account", []string{uow.UserKey(userID)}, func(tx *uow.Tx) error {
		var err error
		if account, err = findAccount(tx.DB, userID, id); err != nil {
			return err
		}
		if account.IsDefault {
			return nil
		}
		if err := clearDefault(tx.DB, userID); err != nil {
			return err
		}
		account.IsDefault = true
		if err := tx.DB.Model(account).Update("is_default", true).Error; err != nil {
			return fmt.Errorf("failed to set default account %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Default account changed", zap.String("user_id", userID), zap.Uint("account_id", id))
	return account, nil
}

// Delete removes an account that is neither the default nor holding positions.
func (s *AccountService) Delete(ctx context.Context, id uint) error {
	userID := userctx.UserID(ctx)
	err := s.uow.Do(ctx, "delete-account", []string{uow.UserKey(userID)}, func(tx *uow.Tx) error {
		account, err := findAccount(tx.DB, userID, id)
		if err != nil {
			return err
		}
		if account.IsDefault {
			return errs.InvalidState("account %d is the default account", id)
		}

		var positions int64
		if err := tx.DB.Model(&models.Portfolio{}).Where("account_id = ?", id).Count(&positions).Error; err != nil {
			return fmt.Errorf("failed to count positions of account %d: %w", id, err)
		}
		if positions > 0 {
			return errs.InvalidState("account %d still holds %d positions", id, positions)
		}

		if err := tx.DB.Delete(account).Error; err != nil {
			return fmt.Errorf("failed to delete account %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("Account deleted", zap.String("user_id", userID), zap.Uint("account_id", id))
	return nil
}
