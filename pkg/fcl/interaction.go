package fcl

import (
	"github.com/onflow/cadence"
)

type Tag string

const (
	TagUnknown              Tag = "UNKNOWN"
	TagScript               Tag = "SCRIPT"
	TagTransaction          Tag = "TRANSACTION"
	TagGetTransactionStatus Tag = "GET_TRANSACTION_STATUS"
	TagGetAccount           Tag = "GET_ACCOUNT"
	TagGetEvents            Tag = "GET_EVENTS"
	TagGetLatestBlock       Tag = "GET_LATEST_BLOCK"
	TagPing                 Tag = "PING"
	TagGetTransaction       Tag = "GET_TRANSACTION"
	TagGetBlockByID         Tag = "GET_BLOCK_BY_ID"
	TagGetBlockByHeight     Tag = "GET_BLOCK_BY_HEIGHT"
	TagGetBlock             Tag = "GET_BLOCK"
	TagGetBlockHeader       Tag = "GET_BLOCK_HEADER"
	TagGetCollection        Tag = "GET_COLLECTION"
)

type Status string

const (
	StatusOK  Status = "OK"
	StatusBad Status = "BAD"
)

type Message struct {
	Cadence        *string  `json:"cadence,omitempty"`
	RefBlock       *string  `json:"refBlock,omitempty"`
	ComputeLimit   *uint64  `json:"computeLimit,omitempty"`
	Proposer       *string  `json:"proposer,omitempty"`
	Payer          *string  `json:"payer,omitempty"`
	Authorizations []string `json:"authorizations"`
	Params         []string `json:"params"`
	Arguments      []string `json:"arguments"`
}

type Block struct {
	ID       *string `json:"id,omitempty"`
	Height   *int64  `json:"height,omitempty"`
	IsSealed *bool   `json:"isSealed,omitempty"`
}

type Account struct {
	Addr *string `json:"addr,omitempty"`
}

type ID struct {
	ID *string `json:"id,omitempty"`
}

type Events struct {
	EventType *string  `json:"eventType,omitempty"`
	Start     *string  `json:"start,omitempty"`
	End       *string  `json:"end,omitempty"`
	BlockIDs  []string `json:"blockIds"`
}

// Interaction is the mutable state of one in-flight request. A single
// resolution pipeline owns it at a time.
type Interaction struct {
	Tag            Tag                      `json:"tag"`
	Assigns        map[string]string        `json:"assigns"`
	Status         Status                   `json:"status"`
	Reason         *string                  `json:"reason,omitempty"`
	Accounts       map[string]*SignableUser `json:"accounts"`
	Params         map[string]string        `json:"params"`
	Arguments      map[string]*Argument     `json:"arguments"`
	Message        Message                  `json:"message"`
	Proposer       *string                  `json:"proposer,omitempty"`
	Authorizations []string                 `json:"authorizations"`
	Payer          *string                  `json:"payer,omitempty"`
	Events         Events                   `json:"events"`
	Transaction    ID                       `json:"transaction"`
	Block          Block                    `json:"block"`
	Account        Account                  `json:"account"`
	Collection     ID                       `json:"collection"`
}

func NewInteraction() *Interaction {
	return &Interaction{
		Tag:            TagUnknown,
		Status:         StatusOK,
		Assigns:        map[string]string{},
		Accounts:       map[string]*SignableUser{},
		Params:         map[string]string{},
		Arguments:      map[string]*Argument{},
		Authorizations: []string{},
		Message: Message{
			Authorizations: []string{},
			Params:         []string{},
			Arguments:      []string{},
		},
		Events: Events{BlockIDs: []string{}},
	}
}

func (ix *Interaction) SetTag(tag Tag) *Interaction {
	ix.Tag = tag
	return ix
}

func (ix *Interaction) Is(tag Tag) bool {
	return ix.Tag == tag
}

func (ix *Interaction) IsBad() bool {
	return ix.Status == StatusBad
}

// Fail marks the interaction bad. The first reason wins.
func (ix *Interaction) Fail(reason string) *Interaction {
	if ix.IsBad() {
		return ix
	}
	ix.Status = StatusBad
	ix.Reason = &reason
	return ix
}

// AddAccount registers the user under its temp id, merging roles into an
// existing record with the same id.
func (ix *Interaction) AddAccount(user *SignableUser) *SignableUser {
	if existing, ok := ix.Accounts[user.TempID]; ok {
		existing.Role.Merge(user.Role)
		if existing.Signer == nil {
			existing.Signer = user.Signer
		}
		return existing
	}
	ix.Accounts[user.TempID] = user
	return user
}

func (ix *Interaction) SetProposer(user *SignableUser) *Interaction {
	user.Role.Proposer = true
	account := ix.AddAccount(user)
	ix.Proposer = ptr(account.TempID)
	ix.Message.Proposer = ptr(account.TempID)
	return ix
}

func (ix *Interaction) SetPayer(user *SignableUser) *Interaction {
	user.Role.Payer = true
	account := ix.AddAccount(user)
	ix.Payer = ptr(account.TempID)
	ix.Message.Payer = ptr(account.TempID)
	return ix
}

func (ix *Interaction) AddAuthorization(user *SignableUser) *Interaction {
	user.Role.Authorizer = true
	account := ix.AddAccount(user)
	ix.Authorizations = append(ix.Authorizations, account.TempID)
	ix.Message.Authorizations = append(ix.Message.Authorizations, account.TempID)
	return ix
}

// AddArgument registers value and appends its id to the ordered argument list.
func (ix *Interaction) AddArgument(value cadence.Value) (*Argument, error) {
	arg, err := NewArgument(value)
	if err != nil {
		return nil, err
	}
	ix.Arguments[arg.TempID] = arg
	ix.Message.Arguments = append(ix.Message.Arguments, arg.TempID)
	return arg, nil
}

// FindInsideSigners returns (authorizations + proposer) - payer, in first
// seen order.
func (ix *Interaction) FindInsideSigners() []string {
	inside := []string{}
	seen := map[string]bool{}
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			inside = append(inside, id)
		}
	}

	for _, id := range ix.Authorizations {
		add(id)
	}
	if ix.Proposer != nil {
		add(*ix.Proposer)
	}

	if ix.Payer == nil {
		return inside
	}
	filtered := inside[:0]
	for _, id := range inside {
		if id != *ix.Payer {
			filtered = append(filtered, id)
		}
	}
	return filtered
}

func (ix *Interaction) FindOutsideSigners() []string {
	if ix.Payer == nil {
		return []string{}
	}
	return []string{*ix.Payer}
}

// CreateProposalKey is a best effort projection of the proposer account.
func (ix *Interaction) CreateProposalKey() ProposalKey {
	if ix.Proposer == nil {
		return ProposalKey{}
	}
	account, ok := ix.Accounts[*ix.Proposer]
	if !ok {
		return ProposalKey{}
	}

	key := ProposalKey{
		KeyID:       clonePtr(account.KeyID),
		SequenceNum: clonePtr(account.SequenceNum),
	}
	if account.Addr != nil {
		key.Address = ptr(sansPrefix(*account.Addr))
	}
	return key
}

func (ix *Interaction) orderedArguments() []*Argument {
	args := make([]*Argument, 0, len(ix.Message.Arguments))
	for _, id := range ix.Message.Arguments {
		if arg, ok := ix.Arguments[id]; ok {
			args = append(args, arg)
		}
	}
	return args
}

// authorizerAddresses keeps the first occurrence of each address.
func (ix *Interaction) authorizerAddresses(normalize func(string) string) []string {
	addresses := []string{}
	seen := map[string]bool{}
	for _, id := range ix.Authorizations {
		account, ok := ix.Accounts[id]
		if !ok || account.Addr == nil {
			continue
		}
		addr := normalize(*account.Addr)
		if seen[addr] {
			continue
		}
		seen[addr] = true
		addresses = append(addresses, addr)
	}
	return addresses
}

// Clone returns a deep copy. Signer delegates and arguments are shared.
func (ix *Interaction) Clone() *Interaction {
	c := *ix
	c.Reason = clonePtr(ix.Reason)
	c.Proposer = clonePtr(ix.Proposer)
	c.Payer = clonePtr(ix.Payer)
	c.Assigns = cloneMap(ix.Assigns)
	c.Params = cloneMap(ix.Params)
	c.Arguments = cloneMap(ix.Arguments)
	c.Authorizations = cloneSlice(ix.Authorizations)

	c.Accounts = make(map[string]*SignableUser, len(ix.Accounts))
	for id, account := range ix.Accounts {
		c.Accounts[id] = account.clone()
	}

	c.Message = Message{
		Cadence:        clonePtr(ix.Message.Cadence),
		RefBlock:       clonePtr(ix.Message.RefBlock),
		ComputeLimit:   clonePtr(ix.Message.ComputeLimit),
		Proposer:       clonePtr(ix.Message.Proposer),
		Payer:          clonePtr(ix.Message.Payer),
		Authorizations: cloneSlice(ix.Message.Authorizations),
		Params:         cloneSlice(ix.Message.Params),
		Arguments:      cloneSlice(ix.Message.Arguments),
	}

	c.Events = Events{
		EventType: clonePtr(ix.Events.EventType),
		Start:     clonePtr(ix.Events.Start),
		End:       clonePtr(ix.Events.End),
		BlockIDs:  cloneSlice(ix.Events.BlockIDs),
	}
	c.Transaction = ID{ID: clonePtr(ix.Transaction.ID)}
	c.Collection = ID{ID: clonePtr(ix.Collection.ID)}
	c.Block = Block{
		ID:       clonePtr(ix.Block.ID),
		Height:   clonePtr(ix.Block.Height),
		IsSealed: clonePtr(ix.Block.IsSealed),
	}
	c.Account = Account{Addr: clonePtr(ix.Account.Addr)}
	return &c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}
