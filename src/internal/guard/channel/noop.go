package channel

import "context"

// Noop is the channel of a context with no shared storage at all. The guard
// then runs with per-context independence.
type Noop struct{}

func (Noop) Publish(context.Context, Key, string) error { return nil }

func (Noop) Clear(context.Context, Key) error { return nil }

func (Noop) Get(context.Context, Key) (string, bool, error) { return "", false, nil }

func (Noop) Subscribe(Key, Handler) func() { return func() {} }

func (Noop) Close() error { return nil }
