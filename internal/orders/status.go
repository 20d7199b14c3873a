package orders

type Status string

const (
	StatusTaken     Status = "taken"
	StatusPreparing Status = "preparing"
	StatusPrepared  Status = "prepared"
	StatusServed    Status = "served"
)

type PaymentStatus string

const (
	PaymentUnpaid    PaymentStatus = "unpaid"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTaken, StatusPreparing, StatusPrepared, StatusServed:
		return true
	}
	return false
}

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentUnpaid, PaymentPaid, PaymentCancelled:
		return true
	}
	return false
}

// nextStatus is the intended kitchen progression. It is a UI hint only:
// writes are not gated on it, so staff can jump straight to served.
var nextStatus = map[Status]Status{
	StatusTaken:     StatusPreparing,
	StatusPreparing: StatusPrepared,
	StatusPrepared:  StatusServed,
}

func NextStatus(s Status) (Status, bool) {
	n, ok := nextStatus[s]
	return n, ok
}

// Completed reports the derived completion predicate. It is never stored;
// every consumer recomputes it.
func (o *Order) Completed() bool {
	return o.OrderStatus == StatusServed && o.PaymentStatus == PaymentPaid
}

// EditableByCustomer: the customer may resubmit items/total only while the
// order is untouched by the kitchen and unpaid.
func (o *Order) EditableByCustomer() bool {
	return o.OrderStatus == StatusTaken && o.PaymentStatus == PaymentUnpaid
}

// ReadyToFinalize flags "one action left": served but unpaid, or paid but not
// yet served. Reaching it never auto-completes; finalizing sets
// served+paid together.
func (o *Order) ReadyToFinalize() bool {
	return (o.OrderStatus == StatusServed && o.PaymentStatus == PaymentUnpaid) ||
		(o.OrderStatus == StatusPrepared && o.PaymentStatus == PaymentPaid)
}
