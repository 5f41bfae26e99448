package address

import (
	"context"
	"testing"

	"github.com/kollektive-hackathon/flow-authz/pkg/fcl"
	"github.com/onflow/flow-go-sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const transfer = `import FungibleToken from 0xFungibleToken
import FlowToken from 0xFlowToken

transaction(amount: UFix64, to: Address) {}`

func TestProcessScriptDefaults(t *testing.T) {
	tests := []struct {
		chain    flow.ChainID
		expected string
	}{
		{
			chain: flow.Mainnet,
			expected: `import FungibleToken from 0xf233dcee88fe0abe
import FlowToken from 0x1654653399040a61

transaction(amount: UFix64, to: Address) {}`,
		},
		{
			chain: flow.Testnet,
			expected: `import FungibleToken from 0x9a0766d93b6608b7
import FlowToken from 0x7e60df042a9c0868

transaction(amount: UFix64, to: Address) {}`,
		},
		{
			chain: flow.Emulator,
			expected: `import FungibleToken from 0xee82856bf20e2aa6
import FlowToken from 0x0ae53cb6e3f42a79

transaction(amount: UFix64, to: Address) {}`,
		},
	}

	r := NewRegistry(flow.Testnet)
	for _, tt := range tests {
		t.Run(string(tt.chain), func(t *testing.T) {
			assert.Equal(t, tt.expected, r.ProcessScript(transfer, tt.chain))
		})
	}
}

func TestProcessScriptLongestPlaceholderFirst(t *testing.T) {
	r := NewRegistry(flow.Emulator)
	r.Clear()
	r.Register(flow.Emulator, "0xToken", flow.HexToAddress("01"))
	r.Register(flow.Emulator, "0xTokenStaking", flow.HexToAddress("02"))

	script := r.ProcessScript("import A from 0xToken\nimport B from 0xTokenStaking", flow.Emulator)

	assert.Equal(t, "import A from 0x0000000000000001\nimport B from 0x0000000000000002", script)
}

func TestRegisterAndDeregister(t *testing.T) {
	r := NewRegistry(flow.Mainnet)
	assert.Equal(t, flow.Mainnet, r.DefaultChain())

	custom := flow.HexToAddress("f8d6e0586b0a20c7")
	r.Register(flow.Emulator, "0xKitty", custom)
	addr, ok := r.AddressOf(flow.Emulator, "0xKitty")
	require.True(t, ok)
	assert.Equal(t, custom, addr)

	r.Deregister(FungibleToken, flow.Mainnet)
	_, ok = r.AddressOf(flow.Mainnet, FungibleToken)
	assert.False(t, ok)
	_, ok = r.AddressOf(flow.Testnet, FungibleToken)
	assert.True(t, ok)

	r.Deregister(FlowToken)
	for _, chain := range []flow.ChainID{flow.Mainnet, flow.Testnet, flow.Emulator} {
		_, ok = r.AddressOf(chain, FlowToken)
		assert.False(t, ok, chain)
	}

	r.Clear()
	_, ok = r.AddressOf(flow.Emulator, "0xKitty")
	assert.False(t, ok)
	assert.Equal(t, transfer, r.ProcessScript(transfer, flow.Mainnet))
}

func TestRegistryResolver(t *testing.T) {
	r := NewRegistry(flow.Mainnet)
	ix := fcl.NewInteraction()
	cadence := "import FlowToken from 0xFlowToken"
	ix.Message.Cadence = &cadence

	ix, err := fcl.Pipeline(r.Resolver(flow.Mainnet)).Resolve(context.Background(), ix)
	require.NoError(t, err)

	assert.Equal(t, "import FlowToken from 0x1654653399040a61", *ix.Message.Cadence)
	assert.Equal(t, "import FlowToken from 0xFlowToken", cadence)
}
