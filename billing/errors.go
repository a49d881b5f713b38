package billing

import (
	"fmt"

	"github.com/coreybb/chatshop/models"
)

// CompletedCheckoutError is returned when a status change is attempted on a
// checkout that already reached its terminal COMPLETED state. Completed
// checkouts are immutable.
type CompletedCheckoutError struct {
	ID         int64
	System     models.PaymentSystem
	TrackingID string
	NewStatus  string
}

func (e *CompletedCheckoutError) Error() string {
	return fmt.Sprintf("checkout %d (%s, tracking id %s) is completed; refusing status change to %q",
		e.ID, e.System, e.TrackingID, e.NewStatus)
}
