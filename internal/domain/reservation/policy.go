package reservation

import "time"

const (
	// FullRefundNotice is the minimum notice for a full deposit refund.
	FullRefundNotice = 24 * time.Hour
	// PartialRefundNotice is the minimum notice for a half refund and for modifications.
	PartialRefundNotice = 4 * time.Hour
)

// RefundPercentage returns the share of the deposit refunded when cancelling
// with the given notice before the slot starts.
func RefundPercentage(notice time.Duration) int {
	switch {
	case notice >= FullRefundNotice:
		return 100
	case notice >= PartialRefundNotice:
		return 50
	default:
		return 0
	}
}

// RefundAmount applies the refund tier to a deposit in minor units.
func RefundAmount(deposit int64, notice time.Duration) (int64, int) {
	pct := RefundPercentage(notice)
	return deposit * int64(pct) / 100, pct
}
