package services

import "fmt"

// Rupees renders a paise amount as a rupee string for user-facing messages.
// Balance arithmetic never leaves int64 paise.
func Rupees(paise int64) string {
	sign := ""
	if paise < 0 {
		sign = "-"
		paise = -paise
	}
	return fmt.Sprintf("%s₹%d.%02d", sign, paise/100, paise%100)
}

// roundHalfUpFee computes amount*bps/10000 rounded half-up to the nearest
// paisa. Applied once per transfer so rounding error never accumulates.
func roundHalfUpFee(amount, bps int64) int64 {
	return (amount*bps + 5000) / 10000
}
