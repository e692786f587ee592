package orders

type Status string

const (
	StatusPending         Status = "pending"
	StatusCheckoutPending Status = "checkout_pending"
	StatusConfirmed       Status = "confirmed"
	StatusPreparing       Status = "preparing"
	StatusReady           Status = "ready"
	StatusCompleted       Status = "completed"
	StatusCancelPending   Status = "cancel_pending"
	StatusDeleted         Status = "deleted"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:         {StatusCheckoutPending: true, StatusCancelPending: true},
	StatusCheckoutPending: {StatusPending: true, StatusConfirmed: true, StatusCancelPending: true},
	StatusConfirmed:       {StatusCheckoutPending: true, StatusPreparing: true},
	StatusPreparing:       {StatusReady: true},
	StatusReady:           {StatusCompleted: true},
	StatusCompleted:       {},
	StatusCancelPending:   {StatusPending: true, StatusDeleted: true},
	StatusDeleted:         {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Mutable reports whether line items may still be changed in this status.
func (s Status) Mutable() bool {
	switch s {
	case StatusPending, StatusCheckoutPending, StatusCancelPending:
		return true
	}
	return false
}
