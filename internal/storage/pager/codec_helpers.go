package pager

import (
	"time"

	"github.com/shopspring/decimal"
)

func unixNanoUTC(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func decimalFromParts(mantissa int64, exp int32) decimal.Decimal {
	return decimal.New(mantissa, exp)
}
