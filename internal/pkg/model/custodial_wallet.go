package model

import "time"

// CustodialWallet is a Flow account key held in Cloud KMS on behalf of a
// user. Address is stored without the 0x prefix.
type CustodialWallet struct {
	Id              uint64    `gorm:"primaryKey" json:"id"`
	ResourceId      string    `json:"resourceId"`
	PublicKey       string    `json:"publicKey"`
	Address         string    `json:"address"`
	KeyIndex        int       `json:"keyIndex"`
	OwnerIdentityId string    `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (CustodialWallet) TableName() string {
	return "custodial_wallet"
}
