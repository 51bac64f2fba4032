// Package notify defines the outbound push channel consumed by external
// dashboard/websocket collaborators.
package notify

// Notifier receives freshly persisted snapshots for live consumers. Payloads
// are the same documents written to the store.
type Notifier interface {
	PushHotlist(payload any)
	PushRiskWarnings(payload any)
}

// Nop discards every push. Used when no live channel is configured.
type Nop struct{}

func (Nop) PushHotlist(any)      {}
func (Nop) PushRiskWarnings(any) {}
