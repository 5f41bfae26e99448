package fcl

import (
	"encoding/json"
	"fmt"
)

const (
	signableFType    = "Signable"
	preSignableFType = "PreSignable"
	signableFVsn     = "1.0.1"
)

// Signable is the payload a signer is asked to sign. Field order follows the
// wire format wallets produce.
type Signable struct {
	FType       string            `json:"f_type"`
	FVsn        string            `json:"f_vsn"`
	Data        map[string]string `json:"data"`
	Message     string            `json:"message"`
	KeyID       *int              `json:"keyId"`
	Roles       Role              `json:"roles"`
	Cadence     *string           `json:"cadence"`
	Addr        *string           `json:"addr"`
	Args        []json.RawMessage `json:"args"`
	Interaction *Interaction      `json:"interaction"`
	Voucher     Voucher           `json:"voucher"`
}

// PreSignable lets a remote party negotiate its participation before any
// signature is requested.
type PreSignable struct {
	FType       string            `json:"f_type"`
	FVsn        string            `json:"f_vsn"`
	Roles       Role              `json:"roles"`
	Cadence     string            `json:"cadence"`
	Args        []json.RawMessage `json:"args"`
	Data        map[string]string `json:"data"`
	Interaction *Interaction      `json:"interaction"`
	Voucher     Voucher           `json:"voucher"`
}

func (ix *Interaction) BuildPreSignable(role Role) PreSignable {
	snapshot := ix.Clone()
	cadence := ""
	if snapshot.Message.Cadence != nil {
		cadence = *snapshot.Message.Cadence
	}
	return PreSignable{
		FType:       preSignableFType,
		FVsn:        signableFVsn,
		Roles:       role,
		Cadence:     cadence,
		Args:        snapshot.encodedArguments(),
		Data:        map[string]string{},
		Interaction: snapshot,
		Voucher:     snapshot.preSignVoucher(),
	}
}

// BuildSignable asks the account stored under accountID to sign message, a
// hex encoded, domain tagged transaction payload or envelope.
func (ix *Interaction) BuildSignable(accountID string, message string) (Signable, error) {
	account, ok := ix.Accounts[accountID]
	if !ok {
		return Signable{}, fmt.Errorf("%w: unknown account %q", ErrMissingAuthz, accountID)
	}
	snapshot := ix.Clone()

	var addr *string
	if account.Addr != nil {
		addr = ptr(sansPrefix(*account.Addr))
	}
	return Signable{
		FType:       signableFType,
		FVsn:        signableFVsn,
		Data:        map[string]string{},
		Message:     message,
		KeyID:       clonePtr(account.KeyID),
		Roles:       account.Role,
		Cadence:     clonePtr(snapshot.Message.Cadence),
		Addr:        addr,
		Args:        snapshot.encodedArguments(),
		Interaction: snapshot,
		Voucher:     snapshot.Voucher(),
	}, nil
}

func (ix *Interaction) encodedArguments() []json.RawMessage {
	args := ix.orderedArguments()
	encoded := make([]json.RawMessage, 0, len(args))
	for _, arg := range args {
		encoded = append(encoded, json.RawMessage(arg.Encoded()))
	}
	return encoded
}
