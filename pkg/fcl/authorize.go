package fcl

import (
	"context"
	"fmt"
	"sync"

	"github.com/onflow/flow-go-sdk"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Authorize collects every signature the interaction needs and returns the
// signed transaction. Payload signers run concurrently; the envelope signer
// runs once all payload signatures are merged. Any failure marks the
// interaction bad.
func Authorize(ctx context.Context, ix *Interaction, fetcher AccountFetcher, session *Session) (*flow.Transaction, error) {
	if err := badInteraction(ix); err != nil {
		return nil, err
	}

	tx, err := authorize(ctx, ix, fetcher, session)
	if err != nil {
		ix.Fail(err.Error())
		return nil, err
	}
	return tx, nil
}

func authorize(ctx context.Context, ix *Interaction, fetcher AccountFetcher, session *Session) (*flow.Transaction, error) {
	tx, err := ix.UnsignedFlowTransaction(ctx, fetcher)
	if err != nil {
		return nil, err
	}

	inside := ix.FindInsideSigners()
	if err := signAll(ctx, ix, session, inside, PayloadSigningMessage(tx)); err != nil {
		return nil, err
	}
	if err := ix.attachSignatures(tx, inside, tx.AddPayloadSignature); err != nil {
		return nil, err
	}

	outside := ix.FindOutsideSigners()
	if err := signAll(ctx, ix, session, outside, EnvelopeSigningMessage(tx)); err != nil {
		return nil, err
	}

	return ix.ToFlowTransaction(ctx, fetcher)
}

// signAll asks each account to sign message. Signables are built before any
// signer runs so every signer sees the same snapshot.
func signAll(ctx context.Context, ix *Interaction, session *Session, ids []string, message string) error {
	signables := make([]Signable, len(ids))
	for i, id := range ids {
		signable, err := ix.BuildSignable(id, message)
		if err != nil {
			return err
		}
		signables[i] = signable
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		id, signable, account := id, signables[i], ix.Accounts[id]
		g.Go(func() error {
			log.Debug().
				Str("account", id).
				Interface("roles", account.Role).
				Msg("Requesting signature")

			response, err := account.Sign(gctx, session, signable)
			if err == nil {
				err = gctx.Err()
			}
			if err != nil {
				return fmt.Errorf("%w: account %q: %w", ErrSigningFailed, id, err)
			}

			mu.Lock()
			defer mu.Unlock()
			return mergeSignature(id, account, response)
		})
	}
	return g.Wait()
}

func mergeSignature(id string, account *SignableUser, response AuthzResponse) error {
	if addr := response.Addr(); addr != flow.EmptyAddress {
		if addr != account.Address() {
			return fmt.Errorf("%w: account %q answered for %s", ErrSigningFailed, id, addr.Hex())
		}
		if response.KeyID() != account.KeyIndex() {
			return fmt.Errorf("%w: account %q answered for key %d, want %d", ErrSigningFailed, id, response.KeyID(), account.KeyIndex())
		}
	}
	sig := response.Signature()
	if sig == "" {
		return fmt.Errorf("%w: account %q returned no signature", ErrIncompleteSignatures, id)
	}
	account.Signature = &sig
	return nil
}
