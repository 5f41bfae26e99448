package cosign

import (
	"time"

	"github.com/kollektive-hackathon/flow-authz/pkg/fcl"
)

// VoucherSigned is published for every signature the service hands out.
type VoucherSigned struct {
	Id        string      `json:"id"`
	Address   string      `json:"address"`
	KeyId     int         `json:"keyId"`
	Roles     fcl.Role    `json:"roles"`
	Voucher   fcl.Voucher `json:"voucher"`
	Signature string      `json:"signature"`
	SignedAt  time.Time   `json:"signedAt"`
}

func (VoucherSigned) GetEventTopicName() string {
	return "flow-authz.voucher.signed"
}

// WalletCreated tells the account provisioner to add PublicKey to Address.
type WalletCreated struct {
	Address   string `json:"address"`
	KeyIndex  int    `json:"keyIndex"`
	PublicKey string `json:"publicKey"`
	Weight    int    `json:"weight"`
}

func (WalletCreated) GetEventTopicName() string {
	return "flow-authz.wallet.created"
}
