package gateway

import "fmt"

// DeliveryError is the single failure a gateway reports. The cause is kept
// for logs; callers only learn that delivery did not happen.
type DeliveryError struct {
	Op  string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s: %v", e.Op, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
