package fcl

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/onflow/flow-go-sdk"
)

type ResponseStatus string

const (
	ResponsePending  ResponseStatus = "PENDING"
	ResponseApproved ResponseStatus = "APPROVED"
	ResponseDeclined ResponseStatus = "DECLINED"
)

type ServiceType string

const (
	ServiceTypeAuthn         ServiceType = "authn"
	ServiceTypeAuthz         ServiceType = "authz"
	ServiceTypePreAuthz      ServiceType = "pre-authz"
	ServiceTypeUserSignature ServiceType = "user-signature"
	ServiceTypeBackChannel   ServiceType = "back-channel-rpc"
	ServiceTypeLocalView     ServiceType = "local-view"
	ServiceTypeOpenID        ServiceType = "open-id"
	ServiceTypeAccountProof  ServiceType = "account-proof"
)

type ServiceMethod string

const (
	MethodHTTPPost      ServiceMethod = "HTTP/POST"
	MethodIframeRPC     ServiceMethod = "IFRAME/RPC"
	MethodPopRPC        ServiceMethod = "POP/RPC"
	MethodTabRPC        ServiceMethod = "TAB/RPC"
	MethodExtRPC        ServiceMethod = "EXT/RPC"
	MethodWalletConnect ServiceMethod = "WC/RPC"
	MethodData          ServiceMethod = "DATA"
)

type Provider struct {
	FType   string `json:"f_type,omitempty"`
	FVsn    string `json:"f_vsn,omitempty"`
	Address string `json:"address"`
	Name    string `json:"name"`
}

type ServiceData struct {
	FType      string      `json:"f_type"`
	FVsn       string      `json:"f_vsn"`
	Nonce      *string     `json:"nonce,omitempty"`
	Address    *string     `json:"address,omitempty"`
	Signatures []AuthnData `json:"signatures,omitempty"`
}

type Service struct {
	FType    string            `json:"f_type,omitempty"`
	FVsn     string            `json:"f_vsn,omitempty"`
	Type     ServiceType       `json:"type,omitempty"`
	Method   ServiceMethod     `json:"method,omitempty"`
	Endpoint string            `json:"endpoint,omitempty"`
	UID      string            `json:"uid,omitempty"`
	ID       string            `json:"id,omitempty"`
	Identity *Identity         `json:"identity,omitempty"`
	Provider *Provider         `json:"provider,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
	Data     *ServiceData      `json:"data,omitempty"`

	// Signer, when set, signs in process instead of calling the endpoint.
	Signer Signer `json:"-"`
}

// UnmarshalJSON accepts numeric and boolean params and keeps them as strings.
func (s *Service) UnmarshalJSON(data []byte) error {
	type plain Service
	var raw struct {
		plain
		Params map[string]paramValue `json:"params"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Service(raw.plain)
	if raw.Params != nil {
		s.Params = make(map[string]string, len(raw.Params))
		for k, v := range raw.Params {
			s.Params[k] = string(v)
		}
	}
	return nil
}

func (s Service) matches(address string) bool {
	return s.Identity != nil && sameAddress(s.Identity.Address, address)
}

type paramValue string

func (p *paramValue) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case string:
		*p = paramValue(value)
	case float64:
		*p = paramValue(strconv.FormatFloat(value, 'f', -1, 64))
	case bool:
		*p = paramValue(strconv.FormatBool(value))
	default:
		return fmt.Errorf("param value %s is not a scalar", string(data))
	}
	return nil
}

type AuthnData struct {
	FType         *string   `json:"f_type,omitempty"`
	FVsn          *string   `json:"f_vsn,omitempty"`
	Addr          *string   `json:"addr,omitempty"`
	Services      []Service `json:"services,omitempty"`
	Proposer      *Service  `json:"proposer,omitempty"`
	Payer         []Service `json:"payer,omitempty"`
	Authorization []Service `json:"authorization,omitempty"`
	Signature     *string   `json:"signature,omitempty"`
	KeyID         *int      `json:"keyId,omitempty"`
	Expires       *int64    `json:"expires,omitempty"`
	Code          *string   `json:"code,omitempty"`
	Paddr         *string   `json:"paddr,omitempty"`
	Hks           *string   `json:"hks,omitempty"`
	L6n           *string   `json:"l6n,omitempty"`
}

// Expired reports whether the expiry timestamp (unix millis) is before now.
func (d AuthnData) Expired(now time.Time) bool {
	if d.Expires == nil {
		return false
	}
	return now.After(time.UnixMilli(*d.Expires))
}

// candidates returns the pre-authz services in payer, authorization,
// proposer order.
func (d AuthnData) candidates() []Service {
	services := append([]Service{}, d.Payer...)
	services = append(services, d.Authorization...)
	if d.Proposer != nil {
		services = append(services, *d.Proposer)
	}
	return services
}

// Response is the reply of a wallet or backend service.
type Response struct {
	FType                *string        `json:"f_type,omitempty"`
	FVsn                 *string        `json:"f_vsn,omitempty"`
	Status               ResponseStatus `json:"status"`
	Updates              *Service       `json:"updates,omitempty"`
	Local                *Service       `json:"local,omitempty"`
	Data                 *AuthnData     `json:"data,omitempty"`
	Reason               *string        `json:"reason,omitempty"`
	CompositeSignature   *AuthnData     `json:"compositeSignature,omitempty"`
	AuthorizationUpdates *Service       `json:"authorizationUpdates,omitempty"`
}

// UnmarshalJSON tolerates wallets that send local and data either as a
// single object or as an array, in which case the first element is used.
func (r *Response) UnmarshalJSON(data []byte) error {
	var raw struct {
		FType                *string         `json:"f_type"`
		FVsn                 *string         `json:"f_vsn"`
		Status               ResponseStatus  `json:"status"`
		Updates              *Service        `json:"updates"`
		Local                json.RawMessage `json:"local"`
		Data                 json.RawMessage `json:"data"`
		Reason               *string         `json:"reason"`
		CompositeSignature   *AuthnData      `json:"compositeSignature"`
		AuthorizationUpdates *Service        `json:"authorizationUpdates"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return &DecodeError{Err: err}
	}

	switch raw.Status {
	case ResponsePending, ResponseApproved, ResponseDeclined:
	default:
		return &DecodeError{Field: "status", Err: fmt.Errorf("unknown status %q", raw.Status)}
	}

	local, err := decodeOneOrFirst[Service](raw.Local)
	if err != nil {
		return &DecodeError{Field: "local", Err: err}
	}
	authn, err := decodeOneOrFirst[AuthnData](raw.Data)
	if err != nil {
		return &DecodeError{Field: "data", Err: err}
	}

	*r = Response{
		FType:                raw.FType,
		FVsn:                 raw.FVsn,
		Status:               raw.Status,
		Updates:              raw.Updates,
		Local:                local,
		Data:                 authn,
		Reason:               raw.Reason,
		CompositeSignature:   raw.CompositeSignature,
		AuthorizationUpdates: raw.AuthorizationUpdates,
	}
	return nil
}

// decodeOneOrFirst decodes raw as a T, falling back to []T and taking the
// first element.
func decodeOneOrFirst[T any](raw json.RawMessage) (*T, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}

	var one T
	scalarErr := json.Unmarshal(raw, &one)
	if scalarErr == nil {
		return &one, nil
	}

	var many []T
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, scalarErr
	}
	if len(many) == 0 {
		return nil, nil
	}
	return &many[0], nil
}

func DecodeResponse(data []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			return nil, err
		}
		return nil, &DecodeError{Err: err}
	}
	return &r, nil
}

func (r *Response) Addr() flow.Address {
	switch {
	case r.CompositeSignature != nil && r.CompositeSignature.Addr != nil:
		return hexToAddress(*r.CompositeSignature.Addr)
	case r.Data != nil && r.Data.Addr != nil:
		return hexToAddress(*r.Data.Addr)
	}
	return flow.EmptyAddress
}

func (r *Response) KeyID() int {
	switch {
	case r.CompositeSignature != nil && r.CompositeSignature.KeyID != nil:
		return *r.CompositeSignature.KeyID
	case r.Data != nil && r.Data.KeyID != nil:
		return *r.Data.KeyID
	}
	return 0
}

// Signature prefers data.signature and falls back to the composite
// signature relayed by multi-signature wallets.
func (r *Response) Signature() string {
	switch {
	case r.Data != nil && r.Data.Signature != nil:
		return *r.Data.Signature
	case r.CompositeSignature != nil && r.CompositeSignature.Signature != nil:
		return *r.CompositeSignature.Signature
	}
	return ""
}

// User is the authenticated wallet user and the services it registered.
type User struct {
	Addr     string    `json:"addr"`
	LoggedIn bool      `json:"loggedIn"`
	Services []Service `json:"services"`
}

func (u *User) authzServices() []Service {
	services := []Service{}
	for _, s := range u.Services {
		if s.Type == ServiceTypeAuthz {
			services = append(services, s)
		}
	}
	return services
}
