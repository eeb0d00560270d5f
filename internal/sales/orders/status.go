package orders

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPacked    Status = "packed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// transitions is the complete table of legal moves. Statuses without an entry are
// terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusPacked, StatusCancelled},
	StatusPacked:    {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered, StatusCancelled},
	StatusDelivered: nil,
	StatusCancelled: nil,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// HoldsStock reports whether an order in s has had its stock deducted.
func (s Status) HoldsStock() bool {
	switch s {
	case StatusConfirmed, StatusPacked, StatusShipped:
		return true
	}
	return false
}

// AllowedTransitions returns a copy of the statuses reachable from s.
func AllowedTransitions(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

// CanTransition reports whether from → to is in the table.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type stockEffect int

const (
	effectNone stockEffect = iota
	// effectDeduct takes every line out of stock as a sale.
	effectDeduct
	// effectRestore puts every line back as a return.
	effectRestore
)

// stockEffectOf decides what a legal transition does to inventory.
func stockEffectOf(from, to Status) stockEffect {
	switch {
	case from == StatusPending && to == StatusConfirmed:
		return effectDeduct
	case to == StatusCancelled && from.HoldsStock():
		return effectRestore
	}
	return effectNone
}
