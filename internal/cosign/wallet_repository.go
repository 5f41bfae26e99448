package cosign

import (
	"errors"

	"github.com/kollektive-hackathon/flow-authz/internal/pkg/model"
	"gorm.io/gorm"
)

var errWalletNotFound = errors.New("custodial wallet not found")

type walletRepository interface {
	FindByAddress(address string) (*model.CustodialWallet, error)
	Create(wallet *model.CustodialWallet) error
}

type gormWalletRepository struct {
	db *gorm.DB
}

func (r *gormWalletRepository) FindByAddress(address string) (*model.CustodialWallet, error) {
	var custodialWallet model.CustodialWallet
	result := r.db.
		Model(&custodialWallet).
		Where("address = ?", address).
		First(&custodialWallet)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, errWalletNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &custodialWallet, nil
}

func (r *gormWalletRepository) Create(wallet *model.CustodialWallet) error {
	return r.db.Create(wallet).Error
}
