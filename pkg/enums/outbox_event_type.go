package enums

import "fmt"

// OutboxEventType identifies the domain event stored in outbox_events.
type OutboxEventType string

const (
	OutboxEventTypeBoostIncreased    OutboxEventType = "boost.increased"
	OutboxEventTypeAgentBoosted      OutboxEventType = "boost.agent_boosted"
	OutboxEventTypeStakeBoostAwarded OutboxEventType = "boost.stake_awarded"
)

var validOutboxEventTypes = []OutboxEventType{
	OutboxEventTypeBoostIncreased,
	OutboxEventTypeAgentBoosted,
	OutboxEventTypeStakeBoostAwarded,
}

// IsValid reports whether the value matches a known outbox event type.
func (t OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
