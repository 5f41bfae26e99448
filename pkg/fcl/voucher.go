package fcl

import (
	"encoding/json"
)

type Signature struct {
	Address *string `json:"address,omitempty"`
	KeyID   *int    `json:"keyId,omitempty"`
	Sig     *string `json:"sig,omitempty"`
}

// Voucher is the canonical attestation of a resolved transaction. It is
// derived from an interaction and never mutated.
type Voucher struct {
	Cadence      *string           `json:"cadence,omitempty"`
	RefBlock     *string           `json:"refBlock,omitempty"`
	ComputeLimit *uint64           `json:"computeLimit,omitempty"`
	Arguments    []json.RawMessage `json:"arguments"`
	ProposalKey  ProposalKey       `json:"proposalKey"`
	Payer        *string           `json:"payer,omitempty"`
	Authorizers  []string          `json:"authorizers"`
	PayloadSigs  []Signature       `json:"payloadSigs"`
	EnvelopeSigs []Signature       `json:"envelopeSigs"`
}

// Voucher builds the voucher sent with a Signable. Addresses are sans prefix.
func (ix *Interaction) Voucher() Voucher {
	v := ix.baseVoucher(sansPrefix)
	if ix.Payer != nil {
		if account, ok := ix.Accounts[*ix.Payer]; ok && account.Addr != nil {
			v.Payer = ptr(sansPrefix(*account.Addr))
		}
	}
	return v
}

// preSignVoucher keeps raw addresses and the payer id, as wallets expect
// during pre-authz negotiation.
func (ix *Interaction) preSignVoucher() Voucher {
	v := ix.baseVoucher(func(addr string) string { return addr })
	v.Payer = clonePtr(ix.Payer)
	return v
}

func (ix *Interaction) baseVoucher(normalize func(string) string) Voucher {
	return Voucher{
		Cadence:      clonePtr(ix.Message.Cadence),
		RefBlock:     clonePtr(ix.Message.RefBlock),
		ComputeLimit: clonePtr(ix.Message.ComputeLimit),
		Arguments:    ix.encodedArguments(),
		ProposalKey:  ix.CreateProposalKey(),
		Authorizers:  ix.authorizerAddresses(normalize),
		PayloadSigs:  ix.signatures(ix.FindInsideSigners(), normalize),
		EnvelopeSigs: ix.signatures(ix.FindOutsideSigners(), normalize),
	}
}

// signatures drops accounts that are unknown or have not signed yet.
func (ix *Interaction) signatures(ids []string, normalize func(string) string) []Signature {
	sigs := []Signature{}
	for _, id := range ids {
		account, ok := ix.Accounts[id]
		if !ok || !account.signed() {
			continue
		}
		sig := Signature{
			KeyID: clonePtr(account.KeyID),
			Sig:   clonePtr(account.Signature),
		}
		if account.Addr != nil {
			sig.Address = ptr(normalize(*account.Addr))
		}
		sigs = append(sigs, sig)
	}
	return sigs
}
