package blockchain

import (
	"strings"

	"github.com/spf13/viper"
)

// Authorizer is a Flow account key the service signs with.
type Authorizer struct {
	KmsResourceId        string `json:"kmsResourceId"`
	ResourceOwnerAddress string `json:"resourceOwnerAddress"`
	KeyIndex             int    `json:"keyIndex"`
}

// GetCosignAuthorizer reads the co-signing key from configuration.
func GetCosignAuthorizer() Authorizer {
	return Authorizer{
		KmsResourceId:        viper.GetString("COSIGN_KMS_RESOURCE_NAME"),
		ResourceOwnerAddress: strings.ToLower(strings.TrimPrefix(viper.GetString("COSIGN_ADDRESS"), "0x")),
		KeyIndex:             viper.GetInt("COSIGN_KEY_INDEX"),
	}
}

func (a Authorizer) Configured() bool {
	return a.KmsResourceId != "" && a.ResourceOwnerAddress != ""
}
