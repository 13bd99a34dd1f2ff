package ports

import "context"

// Session event reasons
const (
	ReasonSignOut        = "sign_out"
	ReasonRenewalExpired = "renewal_expired"
)

// EventPublisher notifies other components about session changes
type EventPublisher interface {
	PublishSessionEnded(ctx context.Context, principalID string, reason string) error
}
