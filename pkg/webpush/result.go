package webpush

import "time"

// AttemptResult is the outcome of delivering one event to one subscription.
type AttemptResult struct {
	SubscriptionID           string        `json:"subscriptionId"`
	Success                  bool          `json:"success"`
	ErrorCode                ErrorCode     `json:"errorCode,omitempty"`
	ErrorMessage             string        `json:"errorMessage,omitempty"`
	ShouldRemoveSubscription bool          `json:"shouldRemoveSubscription,omitempty"`
	StatusCode               int           `json:"statusCode,omitempty"`
	RetryAfter               int           `json:"retryAfterSeconds,omitempty"`
	Duration                 time.Duration `json:"-"`
}

// DeliveryResult merges every attempt of one delivery call.
// SuccessCount + FailureCount == TotalAttempts == len(Attempts).
type DeliveryResult struct {
	EventID               string          `json:"eventId"`
	TotalAttempts         int             `json:"totalAttempts"`
	SuccessCount          int             `json:"successCount"`
	FailureCount          int             `json:"failureCount"`
	Attempts              []AttemptResult `json:"attempts"`
	SubscriptionsToRemove []string        `json:"subscriptionsToRemove"`
	Skipped               bool            `json:"skipped,omitempty"`
}

// Status summarises the result as an event status.
func (r DeliveryResult) Status() Status {
	switch {
	case r.Skipped:
		return StatusSkipped
	case r.SuccessCount > 0:
		return StatusSent
	default:
		return StatusFailed
	}
}

// Aggregate merges attempts into a DeliveryResult, preserving their order.
func Aggregate(eventID string, attempts []AttemptResult) DeliveryResult {
	result := DeliveryResult{
		EventID:               eventID,
		TotalAttempts:         len(attempts),
		Attempts:              make([]AttemptResult, len(attempts)),
		SubscriptionsToRemove: []string{},
	}
	copy(result.Attempts, attempts)

	for _, a := range attempts {
		if a.Success {
			result.SuccessCount++
			continue
		}
		result.FailureCount++
		if a.ShouldRemoveSubscription {
			result.SubscriptionsToRemove = append(result.SubscriptionsToRemove, a.SubscriptionID)
		}
	}
	return result
}

func skippedResult(eventID string) DeliveryResult {
	r := Aggregate(eventID, nil)
	r.Skipped = true
	return r
}
