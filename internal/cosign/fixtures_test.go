package cosign

import (
	"context"
	"errors"
	"sync"

	"github.com/kollektive-hackathon/flow-authz/internal/keymgmt"
	"github.com/kollektive-hackathon/flow-authz/internal/pkg/blockchain"
	"github.com/kollektive-hackathon/flow-authz/internal/pkg/model"
	"github.com/kollektive-hackathon/flow-authz/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/flow-authz/pkg/fcl"
	"github.com/onflow/flow-go-sdk"
	"github.com/onflow/flow-go-sdk/crypto"
)

const (
	cosignAddress = "179b6b1cb6755e31"
	walletAddress = "01cf0e2f2f715450"
	otherAddress  = "f3fcd2c1a78f5eee"

	cosignResource = "projects/p/locations/l/keyRings/r/cryptoKeys/cosign/cryptoKeyVersions/1"
	walletResource = "projects/p/locations/l/keyRings/r/cryptoKeys/wallet/cryptoKeyVersions/1"

	owner  = "user-1"
	script = "transaction { prepare(acct: AuthAccount) { log(acct.address) } }"
)

var errBoom = errors.New("boom")

type fakeWallets struct {
	mu      sync.Mutex
	wallets map[string]*model.CustodialWallet
	err     error
}

func newFakeWallets(wallets ...*model.CustodialWallet) *fakeWallets {
	f := &fakeWallets{wallets: map[string]*model.CustodialWallet{}}
	for _, w := range wallets {
		f.wallets[w.Address] = w
	}
	return f
}

func (f *fakeWallets) FindByAddress(address string) (*model.CustodialWallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	wallet, ok := f.wallets[address]
	if !ok {
		return nil, errWalletNotFound
	}
	return wallet, nil
}

func (f *fakeWallets) Create(wallet *model.CustodialWallet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.wallets[wallet.Address] = wallet
	return nil
}

type fakeMessageSigner struct {
	sig []byte
	err error

	mu       sync.Mutex
	messages [][]byte
}

func (s *fakeMessageSigner) Sign(message []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	if s.err != nil {
		return nil, s.err
	}
	return s.sig, nil
}

func (s *fakeMessageSigner) Messages() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte{}, s.messages...)
}

// fakeKeys hands out signers by KMS resource id and counts loads.
type fakeKeys struct {
	mu      sync.Mutex
	signers map[string]*fakeMessageSigner
	loads   int
	err     error
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{signers: map[string]*fakeMessageSigner{
		cosignResource: {sig: []byte{0xc0, 0x51}},
		walletResource: {sig: []byte{0xa1, 0x1e}},
	}}
}

func (k *fakeKeys) load(_ context.Context, resourceID string) (fcl.MessageSigner, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.loads++
	if k.err != nil {
		return nil, k.err
	}
	signer, ok := k.signers[resourceID]
	if !ok {
		return nil, errors.New("unknown key " + resourceID)
	}
	return signer, nil
}

func (k *fakeKeys) Loads() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.loads
}

type published struct {
	mu       sync.Mutex
	messages []pubsub.Publishable
}

func (p *published) publish(message pubsub.Publishable) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
}

func (p *published) Messages() []pubsub.Publishable {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pubsub.Publishable{}, p.messages...)
}

func generateKey(_ context.Context, keyIndex, weight int) (*flow.AccountKey, *keymgmt.PrivateKey, error) {
	seed := make([]byte, crypto.MinSeedLength)
	for i := range seed {
		seed[i] = byte(i)
	}
	privateKey, err := crypto.GeneratePrivateKey(crypto.ECDSA_P256, seed)
	if err != nil {
		return nil, nil, err
	}
	accountKey := flow.NewAccountKey().
		SetPublicKey(privateKey.PublicKey()).
		SetHashAlgo(crypto.SHA2_256).
		SetWeight(weight)
	accountKey.Index = keyIndex
	return accountKey, &keymgmt.PrivateKey{Index: keyIndex, Type: "google_kms", Value: walletResource}, nil
}

func custodialWallet() *model.CustodialWallet {
	return &model.CustodialWallet{
		Id:              1,
		ResourceId:      walletResource,
		Address:         walletAddress,
		KeyIndex:        0,
		OwnerIdentityId: owner,
	}
}

func cosignAuthorizer() blockchain.Authorizer {
	return blockchain.Authorizer{
		KmsResourceId:        cosignResource,
		ResourceOwnerAddress: cosignAddress,
		KeyIndex:             0,
	}
}

type testService struct {
	*cosignService
	wallets   *fakeWallets
	keys      *fakeKeys
	published *published
}

func newTestService(policy cadencePolicy) *testService {
	ts := &testService{
		wallets:   newFakeWallets(custodialWallet()),
		keys:      newFakeKeys(),
		published: &published{},
	}
	ts.cosignService = newCosignService(
		ts.wallets,
		ts.keys.load,
		generateKey,
		ts.published.publish,
		cosignAuthorizer(),
		policy,
		"https://cosign.example.com/flow-authz-api/cosign/authz",
	)
	return ts
}

// testTransaction has wallet as proposer and authorizer, paid by the
// co-signer.
func testTransaction() *flow.Transaction {
	return flow.NewTransaction().
		SetScript([]byte(script)).
		SetReferenceBlockID(flow.HexToID("1b6f4e4c4d8e2e5d2f10c2a87b3f5b5e4f3a1c7a8f9e0d1c2b3a49586a7b8c9d")).
		SetGasLimit(999).
		SetProposalKey(flow.HexToAddress(walletAddress), 0, 4).
		SetPayer(flow.HexToAddress(cosignAddress)).
		AddAuthorizer(flow.HexToAddress(walletAddress))
}

func signableFor(message string, addr string, keyID int, roles fcl.Role) fcl.Signable {
	cadence := script
	address := "0x" + addr
	return fcl.Signable{
		FType:   "Signable",
		FVsn:    "1.0.1",
		Data:    map[string]string{},
		Message: message,
		KeyID:   &keyID,
		Roles:   roles,
		Cadence: &cadence,
		Addr:    &address,
	}
}

func payerSignable() fcl.Signable {
	return signableFor(fcl.EnvelopeSigningMessage(testTransaction()), cosignAddress, 0, fcl.Role{Payer: true})
}

func walletSignable() fcl.Signable {
	return signableFor(fcl.PayloadSigningMessage(testTransaction()), walletAddress, 0, fcl.Role{Proposer: true, Authorizer: true})
}
