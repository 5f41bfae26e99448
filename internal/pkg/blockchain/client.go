package blockchain

import (
	"fmt"

	"github.com/onflow/flow-go-sdk"
	"github.com/onflow/flow-go-sdk/access/grpc"
	"github.com/spf13/viper"
)

const defaultAccessNode = grpc.TestnetHost

func NewAccessClient() (*grpc.Client, error) {
	host := viper.GetString("FLOW_ACCESS_NODE")
	if host == "" {
		host = defaultAccessNode
	}
	client, err := grpc.NewClient(host)
	if err != nil {
		return nil, fmt.Errorf("connect to access node %s: %w", host, err)
	}
	return client, nil
}

// ChainID returns the configured chain, testnet when unset.
func ChainID() flow.ChainID {
	chainID := viper.GetString("FLOW_CHAIN_ID")
	if chainID == "" {
		return flow.Testnet
	}
	return flow.ChainID(chainID)
}
