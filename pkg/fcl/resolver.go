package fcl

import (
	"context"
	"fmt"
)

// Resolver is one stage that populates an interaction before signing.
type Resolver interface {
	Resolve(ctx context.Context, ix *Interaction) (*Interaction, error)
}

type ResolverFunc func(ctx context.Context, ix *Interaction) (*Interaction, error)

func (f ResolverFunc) Resolve(ctx context.Context, ix *Interaction) (*Interaction, error) {
	return f(ctx, ix)
}

type pipeline []Resolver

// Pipeline applies resolvers in order. It stops at the first error and at
// the first interaction observed as bad.
func Pipeline(resolvers ...Resolver) Resolver {
	return pipeline(resolvers)
}

func (p pipeline) Resolve(ctx context.Context, ix *Interaction) (*Interaction, error) {
	for i, resolver := range p {
		if err := badInteraction(ix); err != nil {
			return ix, err
		}
		if err := ctx.Err(); err != nil {
			return ix, err
		}

		next, err := resolver.Resolve(ctx, ix)
		if err != nil {
			return ix, fmt.Errorf("resolver %d: %w", i, err)
		}
		ix = next
	}
	return ix, badInteraction(ix)
}

func badInteraction(ix *Interaction) error {
	if !ix.IsBad() {
		return nil
	}
	reason := ""
	if ix.Reason != nil {
		reason = *ix.Reason
	}
	return fmt.Errorf("%w: %s", ErrBadInteraction, reason)
}
