package fcl

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/onflow/flow-go-sdk"
)

const (
	addrA = "0x01cf0e2f2f715450"
	addrB = "0x179b6b1cb6755e31"
	addrC = "0xf3fcd2c1a78f5eee"

	refBlock = "0x1b6f4e4c4d8e2e5d2f10c2a87b3f5b5e4f3a1c7a8f9e0d1c2b3a49586a7b8c9d"
)

type fakeFetcher struct {
	calls    int32
	sequence uint64
	keys     []int
	err      error
}

func (f *fakeFetcher) GetAccountAtLatestBlock(_ context.Context, address flow.Address) (*flow.Account, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	keys := f.keys
	if keys == nil {
		keys = []int{0}
	}
	account := &flow.Account{Address: address}
	for _, index := range keys {
		account.Keys = append(account.Keys, &flow.AccountKey{Index: index, SequenceNumber: f.sequence})
	}
	return account, nil
}

func (f *fakeFetcher) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

type fakeSigner struct {
	address  flow.Address
	keyIndex int
	sig      string
	err      error
	// answerAs overrides the address in the response.
	answerAs string
	// answerKey overrides the key index in the response.
	answerKey *int
	onSign    func(Signable)

	mu        sync.Mutex
	signables []Signable
}

func newFakeSigner(addr string, keyIndex int, sig string) *fakeSigner {
	return &fakeSigner{address: hexToAddress(addr), keyIndex: keyIndex, sig: sig}
}

func (s *fakeSigner) Address() flow.Address {
	return s.address
}

func (s *fakeSigner) KeyIndex() int {
	return s.keyIndex
}

func (s *fakeSigner) Sign(ctx context.Context, signable Signable) (AuthzResponse, error) {
	s.mu.Lock()
	s.signables = append(s.signables, signable)
	s.mu.Unlock()

	if s.onSign != nil {
		s.onSign(signable)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	address := withPrefix(s.address.Hex())
	if s.answerAs != "" {
		address = s.answerAs
	}
	keyIndex := s.keyIndex
	if s.answerKey != nil {
		keyIndex = *s.answerKey
	}
	return CompositeSignature{Address: address, Key: keyIndex, Sig: s.sig}, nil
}

func (s *fakeSigner) Signed() []Signable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Signable{}, s.signables...)
}

type fakeMessageSigner struct {
	messages [][]byte
	err      error
}

func (s *fakeMessageSigner) Sign(message []byte) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.messages = append(s.messages, message)
	return []byte{0xde, 0xad, 0xbe, 0xef}, nil
}

type fakeExecutor struct {
	response *Response
	err      error
	services []Service

	preSignables []PreSignable
}

func (e *fakeExecutor) Exec(_ context.Context, service Service, _ Signable) (*Response, error) {
	e.services = append(e.services, service)
	return e.response, e.err
}

func (e *fakeExecutor) PreAuthz(_ context.Context, service Service, preSignable PreSignable) (*Response, error) {
	e.services = append(e.services, service)
	e.preSignables = append(e.preSignables, preSignable)
	return e.response, e.err
}

var errBoom = errors.New("boom")

func account(id, addr string, keyID int) *SignableUser {
	return &SignableUser{TempID: id, Addr: ptr(addr), KeyID: ptr(keyID)}
}

// scenario builds the three party transaction used across tests: A proposes
// and authorizes, B pays, C authorizes.
func scenario() *Interaction {
	ix := NewInteraction().SetTag(TagTransaction)
	ix.Accounts["A"] = account("A", addrA, 0)
	ix.Accounts["B"] = account("B", addrB, 1)
	ix.Accounts["C"] = account("C", addrC, 2)
	ix.Accounts["A"].Role = Role{Proposer: true, Authorizer: true}
	ix.Accounts["B"].Role = Role{Payer: true}
	ix.Accounts["C"].Role = Role{Authorizer: true}

	ix.Proposer = ptr("A")
	ix.Payer = ptr("B")
	ix.Authorizations = []string{"A", "C"}

	ix.Message.Cadence = ptr("transaction { prepare(a: AuthAccount, c: AuthAccount) {} }")
	ix.Message.RefBlock = ptr(refBlock)
	ix.Message.ComputeLimit = ptr(uint64(999))
	return ix
}

// signerScenario is scenario built through signer delegates.
func signerScenario(a, b, c Signer) *Interaction {
	ix := NewInteraction().SetTag(TagTransaction)
	ix.SetProposer(NewSignableUser(a, Role{}))
	ix.AddAuthorization(NewSignableUser(a, Role{}))
	ix.AddAuthorization(NewSignableUser(c, Role{}))
	ix.SetPayer(NewSignableUser(b, Role{}))
	ix.Message.Cadence = ptr("transaction { prepare(a: AuthAccount, c: AuthAccount) {} }")
	ix.Message.RefBlock = ptr(refBlock)
	return ix
}
