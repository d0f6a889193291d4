package events

import (
	"context"
	"testing"
)

func TestNilPublisherIsUsable(t *testing.T) {
	var p *Publisher

	// Publish and Close on a nil publisher must be no-ops so callers never
	// branch on whether eventing is configured.
	p.Publish(context.Background(), Invalidation{Kind: "chain_minted", ChainID: "c1"})
	if err := p.Close(); err != nil {
		t.Fatalf("close on nil publisher: %v", err)
	}
}

func TestZeroPublisherIsUsable(t *testing.T) {
	p := &Publisher{}
	p.Publish(context.Background(), Invalidation{Kind: "memory_updated"})
	if err := p.Close(); err != nil {
		t.Fatalf("close on zero publisher: %v", err)
	}
}
