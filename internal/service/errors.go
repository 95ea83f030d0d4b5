package service

import "fmt"

// ValidationError rejects a malformed bid synchronously. Never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// DuplicateBidError rejects a repeat submission. The message differs
// between the short-window memo and the recent-bids index scan so clients
// can tell the two apart from a low-bid rejection.
type DuplicateBidError struct {
	Reason string
}

func (e *DuplicateBidError) Error() string {
	return e.Reason
}

// LowBidError rejects a bid at or below the current highest, disclosing
// the amount to beat.
type LowBidError struct {
	CurrentHighest float64
}

func (e *LowBidError) Error() string {
	return fmt.Sprintf("bid amount must be higher than the current highest bid of %.2f", e.CurrentHighest)
}
