package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextAfter(t *testing.T) {
	due := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC), NextAfter(due, IntervalWeekly))
	// Calendar-month arithmetic: Jan 31 + 1 month normalises past February.
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), NextAfter(due, IntervalMonthly))
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), NextAfter(due, IntervalQuarterly))

	mid := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC), NextAfter(mid, IntervalMonthly))
}
