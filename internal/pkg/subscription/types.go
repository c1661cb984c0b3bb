package subscription

import (
	"errors"
	"fmt"
	"strings"

	"github.com/HenrikVollan/KakaoBoks/app/models"
)

// ErrStaleReference marks events addressing an unknown or already-terminal
// subscription. Stale events are logged and acked, never failed back to the
// provider: replay after cancellation is an expected scenario.
var ErrStaleReference = errors.New("event references unknown or terminal subscription")

// finalIgnorePrefix labels ledger rows whose outcome was decided against the
// state at delivery time. Re-applying such an event later would bill a cycle
// the provider never charged, so these rows must never be replayed.
const finalIgnorePrefix = "ignored: "

func finalIgnore(reason string) string {
	return finalIgnorePrefix + reason
}

// IsFinalProcessingError reports whether a stored processing error is
// permanent. Final rows are excluded from automatic retry and from replay.
func IsFinalProcessingError(msg string) bool {
	return msg == ErrStaleReference.Error() || strings.HasPrefix(msg, finalIgnorePrefix)
}

// InvalidTransitionError rejects an admin command that has no row in the
// transition table. It names the current state so the operator sees why.
type InvalidTransitionError struct {
	Command string
	Status  string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s subscription in state %q", e.Command, e.Status)
}

// Result reports what processing one webhook event did.
type Result struct {
	Duplicate    bool
	Ignored      bool
	IgnoreReason string
	Subscription *models.Subscription
	Order        *models.RecurringOrder
}

// Notifier receives lifecycle notifications. Implementations must not block
// the pipeline; failures are logged and dropped.
type Notifier interface {
	SubscriptionPastDue(sub *models.Subscription)
	SubscriptionCancelled(sub *models.Subscription)
}
