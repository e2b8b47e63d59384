package session

import (
	"go.uber.org/zap"

	"example.com/fitness/internal/identity"
)

// TokenWriter is the store entry point the bridge writes through.
type TokenWriter interface {
	ApplyToken(token string, user Claims) bool
}

// BridgeOption configures the Bridge.
type BridgeOption func(*Bridge)

// WithBridgeLogger overrides the default no-op logger.
func WithBridgeLogger(logger *zap.Logger) BridgeOption {
	return func(b *Bridge) { b.logger = logger }
}

// Bridge forwards identity provider notifications to the store. It does not deduplicate;
// the store's equal-token guard absorbs repeated emissions.
type Bridge struct {
	store  TokenWriter
	logger *zap.Logger
}

// NewBridge wires a bridge to store.
func NewBridge(store TokenWriter, opts ...BridgeOption) *Bridge {
	b := &Bridge{store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Observe handles one provider notification. States without a token are ignored.
func (b *Bridge) Observe(state identity.State) {
	if !state.Authenticated() {
		return
	}
	if b.store.ApplyToken(state.Token, Claims(state.Claims)) {
		b.logger.Debug("identity token forwarded to session")
	}
}

// Attach subscribes the bridge to n and returns the detach func.
func (b *Bridge) Attach(n identity.Notifier) func() {
	return n.Subscribe(b.Observe)
}
