package fcl

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/onflow/flow-go-sdk"
	"github.com/rs/zerolog/log"
)

type AuthzResponse interface {
	Addr() flow.Address
	KeyID() int
	// Signature is hex encoded.
	Signature() string
}

type Signer interface {
	Address() flow.Address
	KeyIndex() int
	Sign(ctx context.Context, signable Signable) (AuthzResponse, error)
}

// ServiceExecutor dispatches a signable to a wallet or backend service.
type ServiceExecutor interface {
	Exec(ctx context.Context, service Service, signable Signable) (*Response, error)
}

// Session carries what signer resolution needs about the current user.
type Session struct {
	PreAuthz    *Response
	CurrentUser *User
	Executor    ServiceExecutor
}

// PreAuthzExecutor dispatches a PreSignable to a pre-authz service.
// *HTTPExecutor implements it.
type PreAuthzExecutor interface {
	PreAuthz(ctx context.Context, service Service, preSignable PreSignable) (*Response, error)
}

// ResolvePreAuthz sends the interaction's PreSignable for role to the
// current user's pre-authz service and keeps the answer on the session.
func (s *Session) ResolvePreAuthz(ctx context.Context, ix *Interaction, role Role) error {
	if s.CurrentUser == nil {
		return fmt.Errorf("%w: no current user for pre-authz", ErrMissingAuthz)
	}
	var service *Service
	for i := range s.CurrentUser.Services {
		if s.CurrentUser.Services[i].Type == ServiceTypePreAuthz {
			service = &s.CurrentUser.Services[i]
			break
		}
	}
	if service == nil {
		return fmt.Errorf("%w: current user has no pre-authz service", ErrMissingAuthz)
	}
	executor, ok := s.Executor.(PreAuthzExecutor)
	if !ok {
		return fmt.Errorf("%w: executor cannot run pre-authz", ErrMissingAuthz)
	}

	log.Debug().Str("endpoint", service.Endpoint).Msg("Requesting pre-authz")
	response, err := executor.PreAuthz(ctx, *service, ix.BuildPreSignable(role))
	if err != nil {
		return err
	}
	if response.Status == ResponseDeclined {
		reason := ""
		if response.Reason != nil {
			reason = *response.Reason
		}
		return fmt.Errorf("%w: %s", ErrDeclined, reason)
	}
	if response.Data == nil {
		return &DecodeError{Field: "data", Err: errors.New("pre-authz response has no data")}
	}
	if response.Data.Expired(time.Now()) {
		return fmt.Errorf("%w: pre-authz response already expired", ErrMissingAuthz)
	}

	s.PreAuthz = response
	return nil
}

// ResolveSigner picks the signer for the account: its own delegate, then a
// matching pre-authz service, then a matching authz service of the current
// user.
func (u *SignableUser) ResolveSigner(session *Session) (Signer, error) {
	if u.Signer != nil {
		return u.Signer, nil
	}
	if u.Addr == nil {
		return nil, fmt.Errorf("%w: account %s has no address", ErrMissingAuthz, u.TempID)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: no session for %s", ErrMissingAuthz, *u.Addr)
	}

	var candidates []Service
	source := "current-user"
	switch {
	case session.PreAuthz != nil:
		source = "pre-authz"
		if session.PreAuthz.Data != nil && session.PreAuthz.Data.Expired(time.Now()) {
			return nil, fmt.Errorf("%w: pre-authz response expired for %s", ErrMissingAuthz, *u.Addr)
		}
		if session.PreAuthz.Data != nil {
			candidates = session.PreAuthz.Data.candidates()
		}
	case session.CurrentUser != nil:
		candidates = session.CurrentUser.authzServices()
	}

	for _, service := range candidates {
		if service.matches(*u.Addr) {
			log.Debug().
				Str("address", *u.Addr).
				Str("source", source).
				Str("endpoint", service.Endpoint).
				Msg("Resolved authz service")
			return &serviceSigner{
				address:  u.Address(),
				keyIndex: u.KeyIndex(),
				service:  service,
				executor: session.Executor,
			}, nil
		}
	}

	return nil, fmt.Errorf("%w: %s (%s)", ErrMissingAuthz, *u.Addr, source)
}

// Sign resolves the signer for the account and asks it to sign.
func (u *SignableUser) Sign(ctx context.Context, session *Session, signable Signable) (AuthzResponse, error) {
	signer, err := u.ResolveSigner(session)
	if err != nil {
		return nil, err
	}
	return signer.Sign(ctx, signable)
}

type serviceSigner struct {
	address  flow.Address
	keyIndex int
	service  Service
	executor ServiceExecutor
}

func (s *serviceSigner) Address() flow.Address {
	return s.address
}

func (s *serviceSigner) KeyIndex() int {
	return s.keyIndex
}

func (s *serviceSigner) Sign(ctx context.Context, signable Signable) (AuthzResponse, error) {
	if s.service.Signer != nil {
		return s.service.Signer.Sign(ctx, signable)
	}
	if s.executor == nil {
		return nil, fmt.Errorf("%w: no executor for %s service", ErrMissingAuthz, s.service.Method)
	}

	response, err := s.executor.Exec(ctx, s.service, signable)
	if err != nil {
		return nil, err
	}
	if response.Status == ResponseDeclined {
		reason := ""
		if response.Reason != nil {
			reason = *response.Reason
		}
		return nil, fmt.Errorf("%w: %s", ErrDeclined, reason)
	}
	return response, nil
}

// MessageSigner is satisfied by flow-go-sdk crypto signers, including the
// Cloud KMS signer.
type MessageSigner interface {
	Sign(message []byte) ([]byte, error)
}

// LocalSigner signs in process with a key it holds.
type LocalSigner struct {
	address  flow.Address
	keyIndex int
	signer   MessageSigner
}

func NewLocalSigner(address flow.Address, keyIndex int, signer MessageSigner) *LocalSigner {
	return &LocalSigner{address: address, keyIndex: keyIndex, signer: signer}
}

func (s *LocalSigner) Address() flow.Address {
	return s.address
}

func (s *LocalSigner) KeyIndex() int {
	return s.keyIndex
}

func (s *LocalSigner) Sign(ctx context.Context, signable Signable) (AuthzResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	message, err := hex.DecodeString(signable.Message)
	if err != nil {
		return nil, fmt.Errorf("decode signable message: %w", err)
	}
	sig, err := s.signer.Sign(message)
	if err != nil {
		return nil, err
	}
	return NewCompositeSignature(s.address, s.keyIndex, sig), nil
}

type CompositeSignature struct {
	FType   string `json:"f_type"`
	FVsn    string `json:"f_vsn"`
	Address string `json:"addr"`
	Key     int    `json:"keyId"`
	Sig     string `json:"signature"`
}

func NewCompositeSignature(address flow.Address, keyIndex int, sig []byte) CompositeSignature {
	return CompositeSignature{
		FType:   "CompositeSignature",
		FVsn:    "1.0.0",
		Address: withPrefix(address.Hex()),
		Key:     keyIndex,
		Sig:     hex.EncodeToString(sig),
	}
}

func (c CompositeSignature) Addr() flow.Address {
	return hexToAddress(c.Address)
}

func (c CompositeSignature) KeyID() int {
	return c.Key
}

func (c CompositeSignature) Signature() string {
	return c.Sig
}
