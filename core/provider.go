package core

import "context"

// Payload is inbound message content after classification by the transport.
// Text is set for KindText, Data holds raw bytes for media kinds. Name is the
// original attachment filename when one is known.
type Payload struct {
	Kind Kind
	Text string
	Data []byte
	Name string
}

// Result is what a provider adapter produced. Exactly one field matching the
// capability's reply shape is populated.
type Result struct {
	Text     string
	ImageURL string
	Audio    []byte
}

// Provider performs the actual AI computation for one capability.
type Provider interface {
	Invoke(ctx context.Context, payload *Payload) (*Result, error)
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func(ctx context.Context, payload *Payload) (*Result, error)

func (f ProviderFunc) Invoke(ctx context.Context, payload *Payload) (*Result, error) {
	return f(ctx, payload)
}
