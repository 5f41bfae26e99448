package fcl

import (
	"fmt"
	"strings"

	"github.com/onflow/flow-go-sdk"
)

type Role struct {
	Proposer   bool  `json:"proposer"`
	Authorizer bool  `json:"authorizer"`
	Payer      bool  `json:"payer"`
	Param      *bool `json:"param,omitempty"`
}

// Merge ORs the flags of other into r. Flags are never cleared.
func (r *Role) Merge(other Role) {
	r.Proposer = r.Proposer || other.Proposer
	r.Authorizer = r.Authorizer || other.Authorizer
	r.Payer = r.Payer || other.Payer
}

type ProposalKey struct {
	Address     *string `json:"address,omitempty"`
	KeyID       *int    `json:"keyId,omitempty"`
	SequenceNum *uint64 `json:"sequenceNum,omitempty"`
}

// SignableUser is a participant of an interaction. Two users are the same
// participant when their temp ids match.
type SignableUser struct {
	Kind        *string `json:"kind"`
	TempID      string  `json:"tempId"`
	Addr        *string `json:"addr"`
	Signature   *string `json:"signature"`
	KeyID       *int    `json:"keyId"`
	SequenceNum *uint64 `json:"sequenceNum"`
	Role        Role    `json:"role"`

	Signer Signer `json:"-"`
}

// NewSignableUser wraps a signer delegate into a participant record.
func NewSignableUser(signer Signer, role Role) *SignableUser {
	addr := withPrefix(signer.Address().Hex())
	keyIndex := signer.KeyIndex()
	return &SignableUser{
		TempID: signerTempID(signer),
		Addr:   &addr,
		KeyID:  &keyIndex,
		Role:   role,
		Signer: signer,
	}
}

func signerTempID(signer Signer) string {
	return fmt.Sprintf("%s|%d", withPrefix(signer.Address().Hex()), signer.KeyIndex())
}

func (u *SignableUser) Equal(other *SignableUser) bool {
	if u == nil || other == nil || u.TempID == "" || other.TempID == "" {
		return false
	}
	return u.TempID == other.TempID
}

func (u *SignableUser) Address() flow.Address {
	if u.Addr == nil {
		return flow.EmptyAddress
	}
	return hexToAddress(*u.Addr)
}

func (u *SignableUser) KeyIndex() int {
	if u.KeyID == nil {
		return 0
	}
	return *u.KeyID
}

func (u *SignableUser) signed() bool {
	return u.Signature != nil && *u.Signature != ""
}

func (u *SignableUser) clone() *SignableUser {
	c := *u
	c.Kind = clonePtr(u.Kind)
	c.Addr = clonePtr(u.Addr)
	c.Signature = clonePtr(u.Signature)
	c.KeyID = clonePtr(u.KeyID)
	c.SequenceNum = clonePtr(u.SequenceNum)
	c.Role.Param = clonePtr(u.Role.Param)
	return &c
}

type Identity struct {
	Address string `json:"address"`
	KeyID   *int   `json:"keyId,omitempty"`
}

// Identity returns nil when the user has no address yet.
func (u *SignableUser) Identity() *Identity {
	if u.Addr == nil {
		return nil
	}
	keyIndex := u.KeyIndex()
	return &Identity{Address: *u.Addr, KeyID: &keyIndex}
}

// Service describes the user as an authz service reachable at endpoint.
func (u *SignableUser) Service(method ServiceMethod, endpoint string) *Service {
	identity := u.Identity()
	if identity == nil {
		return nil
	}
	return &Service{
		FType:    "Service",
		FVsn:     "1.0.0",
		Type:     ServiceTypeAuthz,
		Method:   method,
		Endpoint: endpoint,
		Identity: identity,
		Signer:   u.Signer,
	}
}

func withPrefix(addr string) string {
	return "0x" + sansPrefix(addr)
}

func sansPrefix(addr string) string {
	if strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X") {
		return addr[2:]
	}
	return addr
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(withPrefix(a), withPrefix(b))
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func ptr[T any](v T) *T {
	return &v
}

func hexToAddress(addr string) flow.Address {
	return flow.HexToAddress(sansPrefix(addr))
}
