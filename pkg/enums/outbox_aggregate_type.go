package enums

// OutboxAggregateType identifies which aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	OutboxAggregateTypeBoostBalance OutboxAggregateType = "boost_balance"
)

// IsValid reports whether the value matches a known aggregate type.
func (t OutboxAggregateType) IsValid() bool {
	return t == OutboxAggregateTypeBoostBalance
}
