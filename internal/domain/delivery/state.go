package delivery

// Status is the workflow state of a delivery request.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusFulfilled Status = "FULFILLED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusFulfilled || s == StatusCancelled
}

// rank orders the forward path. Cancelled sits outside the path.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusConfirmed:
		return 1
	case StatusPreparing:
		return 2
	case StatusReady:
		return 3
	case StatusFulfilled:
		return 4
	}
	return -1
}

// State is the projected view of one delivery request.
type State struct {
	Exists      bool
	Status      Status
	HarvestID   string
	AccountID   string
	SlotID      string
	Mode        Mode
	AddressID   string
	LocationID  string
	CancelledBy ActorType
}
