package fcl

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/onflow/flow-go-sdk"
	"github.com/rs/zerolog/log"
)

const defaultComputeLimit uint64 = 100

var transactionDomainTag = paddedDomainTag("FLOW-V0.0-transaction")

func paddedDomainTag(tag string) [32]byte {
	var padded [32]byte
	copy(padded[:], tag)
	return padded
}

// AccountFetcher is the slice of the Flow access API the assembler needs.
// *grpc.Client from flow-go-sdk satisfies it.
type AccountFetcher interface {
	GetAccountAtLatestBlock(ctx context.Context, address flow.Address) (*flow.Account, error)
}

// CreateFlowProposalKey resolves the proposer's key from chain state. The
// sequence number is fetched once and cached on the account record.
func (ix *Interaction) CreateFlowProposalKey(ctx context.Context, fetcher AccountFetcher) (flow.ProposalKey, error) {
	if ix.Proposer == nil {
		return flow.ProposalKey{}, fmt.Errorf("%w: proposer not set", ErrInvalidProposer)
	}
	account, ok := ix.Accounts[*ix.Proposer]
	if !ok || account.Addr == nil || account.KeyID == nil {
		return flow.ProposalKey{}, fmt.Errorf("%w: account %q lacks address or key index", ErrInvalidProposer, *ix.Proposer)
	}

	address := hexToAddress(*account.Addr)
	if account.SequenceNum == nil {
		log.Trace().
			Str("address", address.Hex()).
			Int("keyIndex", *account.KeyID).
			Msg("Fetching proposer sequence number")

		onchain, err := fetcher.GetAccountAtLatestBlock(ctx, address)
		if err != nil {
			return flow.ProposalKey{}, fmt.Errorf("fetch proposer account %s: %w", address.Hex(), err)
		}
		key := findAccountKey(onchain, *account.KeyID)
		if key == nil {
			return flow.ProposalKey{}, fmt.Errorf("%w: %s has no key %d", ErrKeyNotFound, address.Hex(), *account.KeyID)
		}
		sequenceNum := key.SequenceNumber
		account.SequenceNum = &sequenceNum
	}

	return flow.ProposalKey{
		Address:        address,
		KeyIndex:       *account.KeyID,
		SequenceNumber: *account.SequenceNum,
	}, nil
}

func findAccountKey(account *flow.Account, index int) *flow.AccountKey {
	if account == nil {
		return nil
	}
	for _, key := range account.Keys {
		if key != nil && key.Index == index {
			return key
		}
	}
	return nil
}

// UnsignedFlowTransaction builds the transaction draft without signatures.
func (ix *Interaction) UnsignedFlowTransaction(ctx context.Context, fetcher AccountFetcher) (*flow.Transaction, error) {
	proposalKey, err := ix.CreateFlowProposalKey(ctx, fetcher)
	if err != nil {
		return nil, err
	}

	if ix.Payer == nil {
		return nil, ErrMissingPayer
	}
	payer, ok := ix.Accounts[*ix.Payer]
	if !ok || payer.Addr == nil {
		return nil, fmt.Errorf("%w: account %q has no address", ErrMissingPayer, *ix.Payer)
	}

	tx := &flow.Transaction{
		GasLimit:    defaultComputeLimit,
		ProposalKey: proposalKey,
		Payer:       hexToAddress(*payer.Addr),
		Arguments:   [][]byte{},
		Authorizers: []flow.Address{},
	}
	if ix.Message.Cadence != nil {
		tx.Script = []byte(*ix.Message.Cadence)
	}
	if ix.Message.RefBlock != nil {
		tx.ReferenceBlockID = flow.HexToID(sansPrefix(*ix.Message.RefBlock))
	}
	if ix.Message.ComputeLimit != nil {
		tx.GasLimit = *ix.Message.ComputeLimit
	}
	for _, arg := range ix.orderedArguments() {
		tx.Arguments = append(tx.Arguments, arg.Encoded())
	}

	for _, id := range ix.Authorizations {
		account, ok := ix.Accounts[id]
		if !ok || account.Addr == nil {
			return nil, fmt.Errorf("%w: authorization %q has no account address", ErrMissingAuthz, id)
		}
	}

	canonical := func(addr string) string { return hexToAddress(addr).Hex() }
	for _, addr := range ix.authorizerAddresses(canonical) {
		tx.Authorizers = append(tx.Authorizers, hexToAddress(addr))
	}
	return tx, nil
}

// ToFlowTransaction builds the transaction and attaches every signature.
// A signer that has not signed fails the build with ErrIncompleteSignatures.
func (ix *Interaction) ToFlowTransaction(ctx context.Context, fetcher AccountFetcher) (*flow.Transaction, error) {
	tx, err := ix.UnsignedFlowTransaction(ctx, fetcher)
	if err != nil {
		return nil, err
	}
	if err := ix.attachSignatures(tx, ix.FindInsideSigners(), tx.AddPayloadSignature); err != nil {
		return nil, err
	}
	if err := ix.attachSignatures(tx, ix.FindOutsideSigners(), tx.AddEnvelopeSignature); err != nil {
		return nil, err
	}
	return tx, nil
}

func (ix *Interaction) attachSignatures(
	tx *flow.Transaction,
	ids []string,
	attach func(address flow.Address, keyIndex int, sig []byte) *flow.Transaction,
) error {
	for _, id := range ids {
		account, ok := ix.Accounts[id]
		if !ok || account.Addr == nil || account.KeyID == nil {
			return fmt.Errorf("%w: account %q is not resolved", ErrIncompleteSignatures, id)
		}
		if !account.signed() {
			return fmt.Errorf("%w: account %q", ErrIncompleteSignatures, id)
		}
		sig, err := hex.DecodeString(sansPrefix(*account.Signature))
		if err != nil {
			return fmt.Errorf("decode signature of %q: %w", id, err)
		}
		attach(hexToAddress(*account.Addr), *account.KeyID, sig)
	}
	return nil
}

// PayloadSigningMessage is the hex encoded, domain tagged payload that inside
// signers sign.
func PayloadSigningMessage(tx *flow.Transaction) string {
	return domainTagged(tx.PayloadMessage())
}

// EnvelopeSigningMessage covers the payload and its signatures.
func EnvelopeSigningMessage(tx *flow.Transaction) string {
	return domainTagged(tx.EnvelopeMessage())
}

func domainTagged(message []byte) string {
	tagged := make([]byte, 0, len(transactionDomainTag)+len(message))
	tagged = append(tagged, transactionDomainTag[:]...)
	tagged = append(tagged, message...)
	return hex.EncodeToString(tagged)
}

// DecodeSigningMessage recovers the transaction behind a payload or envelope
// signing message.
func DecodeSigningMessage(message string) (*flow.Transaction, error) {
	data, err := hex.DecodeString(sansPrefix(message))
	if err != nil {
		return nil, fmt.Errorf("decode signing message: %w", err)
	}
	tag := transactionDomainTag[:]
	if !bytes.HasPrefix(data, tag) {
		return nil, errors.New("signing message lacks the transaction domain tag")
	}
	return flow.DecodeTransaction(data[len(tag):])
}
