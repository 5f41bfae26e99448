package address

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/kollektive-hackathon/flow-authz/pkg/fcl"
	"github.com/onflow/flow-go-sdk"
)

// Placeholders of the core contracts, as they appear in cadence imports.
const (
	FungibleToken    = "0xFungibleToken"
	FlowToken        = "0xFlowToken"
	FlowFees         = "0xFlowFees"
	FlowTableStaking = "0xFlowTableStaking"
	LockedTokens     = "0xLockedTokens"
	StakingProxy     = "0xStakingProxy"
	NonFungibleToken = "0xNonFungibleToken"
	FCLCrypto        = "0xFCLCrypto"
)

var defaults = map[flow.ChainID]map[string]string{
	flow.Mainnet: {
		FungibleToken:    "0xf233dcee88fe0abe",
		FlowToken:        "0x1654653399040a61",
		FlowFees:         "0xf919ee77447b7497",
		FlowTableStaking: "0x8624b52f9ddcd04a",
		LockedTokens:     "0x8d0e87b65159ae63",
		StakingProxy:     "0x62430cf28c26d095",
		NonFungibleToken: "0x1d7e57aa55817448",
		FCLCrypto:        "0xb4b82a1c9d21d284",
	},
	flow.Testnet: {
		FungibleToken:    "0x9a0766d93b6608b7",
		FlowToken:        "0x7e60df042a9c0868",
		FlowFees:         "0x912d5440f7e3769e",
		FlowTableStaking: "0x9eca2b38b18b5dfe",
		LockedTokens:     "0x95e019a17d0e23d7",
		StakingProxy:     "0x7aad92e5a0715d21",
		NonFungibleToken: "0x631e88ae7f1d7c20",
		FCLCrypto:        "0x74daa6f9c7ef24b1",
	},
	flow.Emulator: {
		FungibleToken: "0xee82856bf20e2aa6",
		FlowToken:     "0x0ae53cb6e3f42a79",
		FlowFees:      "0xe5a8b7f23e8b548f",
	},
}

// Registry maps contract placeholders to addresses per chain.
type Registry struct {
	mu           sync.RWMutex
	defaultChain flow.ChainID
	contracts    map[flow.ChainID]map[string]flow.Address
}

func NewRegistry(defaultChain flow.ChainID) *Registry {
	r := &Registry{
		defaultChain: defaultChain,
		contracts:    map[flow.ChainID]map[string]flow.Address{},
	}
	r.RegisterDefaults()
	return r
}

func (r *Registry) RegisterDefaults() {
	for chainID, contracts := range defaults {
		for contract, addr := range contracts {
			r.Register(chainID, contract, flow.HexToAddress(strings.TrimPrefix(addr, "0x")))
		}
	}
}

func (r *Registry) Register(chainID flow.ChainID, contract string, address flow.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.contracts[chainID] == nil {
		r.contracts[chainID] = map[string]flow.Address{}
	}
	r.contracts[chainID][contract] = address
}

// Deregister removes contract from the given chains, or from all chains when
// none is given.
func (r *Registry) Deregister(contract string, chainIDs ...flow.ChainID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(chainIDs) == 0 {
		for chainID := range r.contracts {
			chainIDs = append(chainIDs, chainID)
		}
	}
	for _, chainID := range chainIDs {
		delete(r.contracts[chainID], contract)
	}
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contracts = map[flow.ChainID]map[string]flow.Address{}
}

func (r *Registry) DefaultChain() flow.ChainID {
	return r.defaultChain
}

func (r *Registry) AddressOf(chainID flow.ChainID, contract string) (flow.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.contracts[chainID][contract]
	return addr, ok
}

// ProcessScript replaces every registered placeholder of the chain with its
// 0x prefixed address. Longer placeholders are replaced first.
func (r *Registry) ProcessScript(script string, chainID flow.ChainID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	contracts := r.contracts[chainID]
	placeholders := make([]string, 0, len(contracts))
	for placeholder := range contracts {
		placeholders = append(placeholders, placeholder)
	}
	sort.Slice(placeholders, func(i, j int) bool {
		if len(placeholders[i]) != len(placeholders[j]) {
			return len(placeholders[i]) > len(placeholders[j])
		}
		return placeholders[i] < placeholders[j]
	})

	for _, placeholder := range placeholders {
		addr := contracts[placeholder]
		script = strings.ReplaceAll(script, placeholder, "0x"+addr.Hex())
	}
	return script
}

// Resolver materializes the interaction's cadence for chainID.
func (r *Registry) Resolver(chainID flow.ChainID) fcl.Resolver {
	return fcl.ResolverFunc(func(_ context.Context, ix *fcl.Interaction) (*fcl.Interaction, error) {
		if ix.Message.Cadence == nil {
			return ix, nil
		}
		cadence := r.ProcessScript(*ix.Message.Cadence, chainID)
		ix.Message.Cadence = &cadence
		return ix, nil
	})
}
