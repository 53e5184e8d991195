package order

// transitions is the single source of truth for legal status changes.
// Terminal states have no entry.
var transitions = map[Status]map[Status]struct{}{
	StatusCreated:   {StatusPaid: {}, StatusCancelled: {}},
	StatusPaid:      {StatusConfirmed: {}, StatusCancelled: {}},
	StatusConfirmed: {StatusPreparing: {}, StatusCancelled: {}},
	StatusPreparing: {StatusReady: {}},
	StatusReady:     {StatusDelivered: {}},
}

// Statuses lists every known status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusCreated,
		StatusPaid,
		StatusConfirmed,
		StatusPreparing,
		StatusReady,
		StatusDelivered,
		StatusCancelled,
	}
}

func CanTransition(from, to Status) bool {
	_, ok := transitions[from][to]
	return ok
}

func ParseStatus(s string) (Status, bool) {
	for _, st := range Statuses() {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// HoldsStock reports whether an order in status s still holds the stock reserved at creation.
// It matches the set of states that may legally be cancelled.
func HoldsStock(s Status) bool {
	return CanTransition(s, StatusCancelled)
}
