package cosign

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/kollektive-hackathon/flow-authz/pkg/fcl"
	"github.com/kollektive-hackathon/flow-authz/pkg/fcl/address"
	"github.com/onflow/flow-go-sdk"
	"github.com/rs/zerolog/log"
)

var (
	errCadenceMismatch = errors.New("signable cadence does not match the signed transaction")
	errRolesMismatch   = errors.New("signable roles do not match the signed transaction")

	whitespace = regexp.MustCompile(`\s`)
)

// cadencePolicy holds the transactions the co-signer accepts. An empty
// policy accepts any transaction.
type cadencePolicy struct {
	allowed []string
}

// loadCadencePolicy reads the templates matching pattern and resolves their
// contract placeholders for chainID.
func loadCadencePolicy(pattern string, registry *address.Registry, chainID flow.ChainID) (cadencePolicy, error) {
	if pattern == "" {
		return cadencePolicy{}, nil
	}
	files, err := filepath.Glob(pattern)
	if err != nil {
		return cadencePolicy{}, err
	}
	if len(files) == 0 {
		return cadencePolicy{}, fmt.Errorf("no cadence templates match %s", pattern)
	}

	templates := make([]string, 0, len(files))
	for _, file := range files {
		code, err := os.ReadFile(file)
		if err != nil {
			return cadencePolicy{}, err
		}
		templates = append(templates, string(code))
	}
	return newCadencePolicy(registry, chainID, templates...), nil
}

func newCadencePolicy(registry *address.Registry, chainID flow.ChainID, templates ...string) cadencePolicy {
	policy := cadencePolicy{}
	for _, template := range templates {
		policy.allowed = append(policy.allowed, registry.ProcessScript(template, chainID))
	}
	return policy
}

func (p cadencePolicy) allows(script string) bool {
	if len(p.allowed) == 0 {
		return true
	}
	for _, allowed := range p.allowed {
		if sameCadence(allowed, script) {
			return true
		}
	}

	log.Warn().Msg(fmt.Sprintf("Transaction is not in the cosign allow list: \"%s\"", script))
	return false
}

func sameCadence(a, b string) bool {
	return whitespace.ReplaceAllString(a, "") == whitespace.ReplaceAllString(b, "")
}

// verifySignable decodes the transaction behind the signable's message and
// checks the signable describes it.
func verifySignable(signable fcl.Signable, account flow.Address, keyIndex int) (*flow.Transaction, error) {
	transaction, err := fcl.DecodeSigningMessage(signable.Message)
	if err != nil {
		return nil, err
	}
	if signable.Cadence != nil && !sameCadence(*signable.Cadence, string(transaction.Script)) {
		return nil, errCadenceMismatch
	}
	if !holdsRoles(transaction, account, keyIndex, signable.Roles) {
		return nil, errRolesMismatch
	}
	return transaction, nil
}

// holdsRoles reports whether the key holds every role claimed, and at least
// one. Only the proposer role is bound to a key index.
func holdsRoles(transaction *flow.Transaction, account flow.Address, keyIndex int, roles fcl.Role) bool {
	if !roles.Proposer && !roles.Authorizer && !roles.Payer {
		return false
	}
	if roles.Proposer && (transaction.ProposalKey.Address != account || transaction.ProposalKey.KeyIndex != keyIndex) {
		return false
	}
	if roles.Payer && transaction.Payer != account {
		return false
	}
	if roles.Authorizer {
		for _, authorizer := range transaction.Authorizers {
			if authorizer == account {
				return true
			}
		}
		return false
	}
	return true
}
