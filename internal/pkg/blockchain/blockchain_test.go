package blockchain

import (
	"testing"

	"github.com/onflow/flow-go-sdk"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestGetCosignAuthorizer(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	assert.False(t, GetCosignAuthorizer().Configured())

	viper.Set("COSIGN_KMS_RESOURCE_NAME", "projects/p/locations/l/keyRings/r/cryptoKeys/k/cryptoKeyVersions/1")
	viper.Set("COSIGN_ADDRESS", "0x179b6b1cb6755e31")
	viper.Set("COSIGN_KEY_INDEX", "2")

	authorizer := GetCosignAuthorizer()
	assert.True(t, authorizer.Configured())
	assert.Equal(t, "179b6b1cb6755e31", authorizer.ResourceOwnerAddress)
	assert.Equal(t, 2, authorizer.KeyIndex)
}

func TestChainID(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	assert.Equal(t, flow.Testnet, ChainID())

	viper.Set("FLOW_CHAIN_ID", "flow-mainnet")
	assert.Equal(t, flow.Mainnet, ChainID())
}
