package cosign

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kollektive-hackathon/flow-authz/internal/keymgmt"
	"github.com/kollektive-hackathon/flow-authz/internal/pkg/blockchain"
	"github.com/kollektive-hackathon/flow-authz/internal/pkg/model"
	"github.com/kollektive-hackathon/flow-authz/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/flow-authz/internal/pkg/reject"
	"github.com/kollektive-hackathon/flow-authz/pkg/fcl"
	"github.com/onflow/flow-go-sdk"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

const (
	invalidSignable   string = "error.cosign.invalid-signable"
	notAuthorized     string = "error.cosign.not-authorized"
	cadenceNotAllowed string = "error.cosign.cadence-not-allowed"
	walletExists      string = "error.cosign.wallet-exists"

	custodialKeyWeight = 1000
)

var flowAddress = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{16}$`)

type signerLoader func(ctx context.Context, resourceID string) (fcl.MessageSigner, error)

type keyGenerator func(ctx context.Context, keyIndex, weight int) (*flow.AccountKey, *keymgmt.PrivateKey, error)

type cosignService struct {
	wallets     walletRepository
	loadSigner  signerLoader
	generateKey keyGenerator
	publish     func(message pubsub.Publishable)
	authorizer  blockchain.Authorizer
	policy      cadencePolicy
	// endpoint is the public URL of the authz route, advertised in
	// pre-authz responses.
	endpoint string

	signatures *cache.Cache
	signers    *cache.Cache
}

type signingKey struct {
	address    flow.Address
	keyIndex   int
	resourceId string
}

func newCosignService(
	wallets walletRepository,
	loadSigner signerLoader,
	generateKey keyGenerator,
	publish func(message pubsub.Publishable),
	authorizer blockchain.Authorizer,
	policy cadencePolicy,
	endpoint string,
) *cosignService {
	return &cosignService{
		wallets:     wallets,
		loadSigner:  loadSigner,
		generateKey: generateKey,
		publish:     publish,
		authorizer:  authorizer,
		policy:      policy,
		endpoint:    endpoint,
		signatures:  cache.New(10*time.Minute, 20*time.Minute),
		signers:     cache.New(time.Hour, time.Hour),
	}
}

// VerifyAndSign signs the signable with the key it is addressed to. owner is
// the identity of the caller; an empty owner may only use the co-signer key.
func (cs *cosignService) VerifyAndSign(ctx context.Context, owner string, signable fcl.Signable) (*fcl.Response, *reject.ProblemWithTrace) {
	if signable.Addr == nil || signable.KeyID == nil {
		err := errors.New("signable has no addr or keyId")
		return nil, reject.WithTrace(invalidSignableProblem(err), err)
	}

	key, problem := cs.resolveKey(owner, *signable.Addr, *signable.KeyID)
	if problem != nil {
		return nil, problem
	}

	transaction, err := verifySignable(signable, key.address, key.keyIndex)
	if err != nil {
		return nil, reject.WithTrace(invalidSignableProblem(err), err)
	}

	if !cs.policy.allows(string(transaction.Script)) {
		err := fmt.Errorf("transaction for %s is not allowed", key.address.Hex())
		return nil, reject.WithTrace(cadenceNotAllowedProblem(), err)
	}

	cacheKey := fmt.Sprintf("%s|%d|%s", key.address.Hex(), key.keyIndex, signable.Message)
	if cached, found := cs.signatures.Get(cacheKey); found {
		log.Debug().Str("address", key.address.Hex()).Msg("Returning cached signature")
		return cached.(*fcl.Response), nil
	}

	signer, err := cs.signer(ctx, key.resourceId)
	if err != nil {
		return nil, reject.Unexpected(err)
	}

	log.
		Info().
		Str("address", key.address.Hex()).
		Int("keyIndex", key.keyIndex).
		Interface("roles", signable.Roles).
		Msg("Signing voucher")

	signature, err := fcl.NewLocalSigner(key.address, key.keyIndex, signer).Sign(ctx, signable)
	if err != nil {
		return nil, reject.Unexpected(err)
	}

	response := approved(signature)
	cs.signatures.Set(cacheKey, response, cache.DefaultExpiration)
	cs.publish(VoucherSigned{
		Id:        uuid.New().String(),
		Address:   key.address.Hex(),
		KeyId:     key.keyIndex,
		Roles:     signable.Roles,
		Voucher:   signable.Voucher,
		Signature: signature.Signature(),
		SignedAt:  time.Now().UTC(),
	})

	return response, nil
}

// PreAuthz offers the co-signer as payer of the transaction.
func (cs *cosignService) PreAuthz(preSignable fcl.PreSignable) (*fcl.Response, *reject.ProblemWithTrace) {
	if !cs.authorizer.Configured() {
		err := errors.New("no co-signer key configured")
		return nil, reject.WithTrace(notAuthorizedProblem(err), err)
	}
	if !cs.policy.allows(preSignable.Cadence) {
		err := errors.New("pre-authz cadence is not allowed")
		return nil, reject.WithTrace(cadenceNotAllowedProblem(), err)
	}

	addr := "0x" + cs.authorizer.ResourceOwnerAddress
	keyIndex := cs.authorizer.KeyIndex
	cosigner := &fcl.SignableUser{Addr: &addr, KeyID: &keyIndex}
	payer := cosigner.Service(fcl.MethodHTTPPost, cs.endpoint)

	fType, fVsn := "PreAuthzResponse", "1.0.0"
	return &fcl.Response{
		FType:  stringPtr("PollingResponse"),
		FVsn:   stringPtr("1.0.0"),
		Status: fcl.ResponseApproved,
		Data: &fcl.AuthnData{
			FType:         &fType,
			FVsn:          &fVsn,
			Payer:         []fcl.Service{*payer},
			Authorization: []fcl.Service{},
		},
	}, nil
}

// CreateWallet provisions a KMS key for address and records it as a
// custodial wallet owned by owner.
func (cs *cosignService) CreateWallet(ctx context.Context, owner string, request CreateWalletRequest) (*model.CustodialWallet, *reject.ProblemWithTrace) {
	if !flowAddress.MatchString(request.Address) || request.KeyIndex < 0 {
		err := fmt.Errorf("invalid wallet address %q", request.Address)
		return nil, reject.WithTrace(reject.RequestValidationProblem(), err)
	}
	address := strings.ToLower(strings.TrimPrefix(request.Address, "0x"))

	existing, err := cs.wallets.FindByAddress(address)
	if err != nil && !errors.Is(err, errWalletNotFound) {
		return nil, reject.Unexpected(err)
	}
	if existing != nil || address == cs.authorizer.ResourceOwnerAddress {
		err := fmt.Errorf("wallet %s already exists", address)
		return nil, reject.WithTrace(walletExistsProblem(), err)
	}

	accountKey, privateKey, err := cs.generateKey(ctx, request.KeyIndex, custodialKeyWeight)
	if err != nil {
		return nil, reject.Unexpected(err)
	}

	wallet := &model.CustodialWallet{
		ResourceId:      privateKey.Value,
		PublicKey:       accountKey.PublicKey.String(),
		Address:         address,
		KeyIndex:        request.KeyIndex,
		OwnerIdentityId: owner,
	}
	if err := cs.wallets.Create(wallet); err != nil {
		return nil, reject.Unexpected(err)
	}

	log.Info().Str("address", address).Msg("Custodial wallet created")
	cs.publish(WalletCreated{
		Address:   address,
		KeyIndex:  request.KeyIndex,
		PublicKey: wallet.PublicKey,
		Weight:    custodialKeyWeight,
	})
	return wallet, nil
}

// GetWallet returns the custodial wallet at address when owner holds it.
func (cs *cosignService) GetWallet(owner string, addr string) (*model.CustodialWallet, *reject.ProblemWithTrace) {
	if !flowAddress.MatchString(addr) {
		err := fmt.Errorf("invalid wallet address %q", addr)
		return nil, reject.WithTrace(reject.RequestParamsProblem(), err)
	}
	address := strings.ToLower(strings.TrimPrefix(addr, "0x"))

	wallet, err := cs.wallets.FindByAddress(address)
	if err != nil && !errors.Is(err, errWalletNotFound) {
		return nil, reject.Unexpected(err)
	}
	if wallet == nil || wallet.OwnerIdentityId != owner {
		err := fmt.Errorf("no wallet %s for %s", address, owner)
		return nil, reject.WithTrace(reject.NotFoundProblem(), err)
	}
	return wallet, nil
}

func (cs *cosignService) resolveKey(owner string, addr string, keyIndex int) (*signingKey, *reject.ProblemWithTrace) {
	address := strings.ToLower(strings.TrimPrefix(addr, "0x"))

	if cs.authorizer.Configured() && address == cs.authorizer.ResourceOwnerAddress {
		if keyIndex != cs.authorizer.KeyIndex {
			err := fmt.Errorf("key %d of %s is not managed here", keyIndex, address)
			return nil, reject.WithTrace(notAuthorizedProblem(err), err)
		}
		return &signingKey{
			address:    flow.HexToAddress(address),
			keyIndex:   keyIndex,
			resourceId: cs.authorizer.KmsResourceId,
		}, nil
	}

	log.Debug().Msg(fmt.Sprintf("Fetching custodial wallet by address %s", address))
	wallet, err := cs.wallets.FindByAddress(address)
	if errors.Is(err, errWalletNotFound) {
		err = fmt.Errorf("no custodial wallet for %s", address)
		return nil, reject.WithTrace(notAuthorizedProblem(err), err)
	}
	if err != nil {
		return nil, reject.Unexpected(err)
	}

	if owner == "" || wallet.OwnerIdentityId != owner || wallet.KeyIndex != keyIndex {
		err := fmt.Errorf("you are not authorized to request this signature")
		return nil, reject.WithTrace(notAuthorizedProblem(err), err)
	}
	return &signingKey{
		address:    flow.HexToAddress(address),
		keyIndex:   wallet.KeyIndex,
		resourceId: wallet.ResourceId,
	}, nil
}

func (cs *cosignService) signer(ctx context.Context, resourceId string) (fcl.MessageSigner, error) {
	if cached, found := cs.signers.Get(resourceId); found {
		return cached.(fcl.MessageSigner), nil
	}
	signer, err := cs.loadSigner(ctx, resourceId)
	if err != nil {
		return nil, err
	}
	cs.signers.Set(resourceId, signer, cache.DefaultExpiration)
	return signer, nil
}

func approved(signature fcl.AuthzResponse) *fcl.Response {
	addr := "0x" + signature.Addr().Hex()
	keyId := signature.KeyID()
	sig := signature.Signature()
	return &fcl.Response{
		FType:  stringPtr("PollingResponse"),
		FVsn:   stringPtr("1.0.0"),
		Status: fcl.ResponseApproved,
		Data: &fcl.AuthnData{
			FType:     stringPtr("CompositeSignature"),
			FVsn:      stringPtr("1.0.0"),
			Addr:      &addr,
			KeyID:     &keyId,
			Signature: &sig,
		},
	}
}

func stringPtr(s string) *string {
	return &s
}

func invalidSignableProblem(err error) reject.Problem {
	return reject.NewProblem().
		WithTitle("Invalid signable").
		WithStatus(http.StatusBadRequest).
		WithCode(invalidSignable).
		WithDetail(err.Error()).
		Build()
}

func notAuthorizedProblem(err error) reject.Problem {
	return reject.NewProblem().
		WithTitle("Signature not authorized").
		WithStatus(http.StatusForbidden).
		WithCode(notAuthorized).
		WithDetail(err.Error()).
		Build()
}

func cadenceNotAllowedProblem() reject.Problem {
	return reject.NewProblem().
		WithTitle("Transaction not allowed").
		WithStatus(http.StatusForbidden).
		WithCode(cadenceNotAllowed).
		Build()
}

func walletExistsProblem() reject.Problem {
	return reject.NewProblem().
		WithTitle("Wallet already exists").
		WithStatus(http.StatusConflict).
		WithCode(walletExists).
		Build()
}
