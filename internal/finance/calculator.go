// Package finance computes the money consequences of appointment
// transitions. Amounts are integers in minor currency units; rates are basis
// points so no floating point reaches an amount.
package finance

import (
	"fmt"
	"math"
	"math/big"

	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
)

const basisPoints = 10000

const (
	DefaultPlatformFeeRate         = 0.12
	DefaultNoShowFamilyChargeRatio = 0.5
)

type FeeSchedule struct {
	PlatformFeeBps     int64
	NoShowFamilyCharge int64 // basis points of the price charged to the family
}

// RatesToSchedule converts configuration rates (0.12, 0.5) to basis points.
func RatesToSchedule(platformFeeRate, noShowChargeRatio float64) (FeeSchedule, error) {
	if platformFeeRate < 0 || platformFeeRate > 1 {
		return FeeSchedule{}, fmt.Errorf("platform fee rate %v out of range [0,1]", platformFeeRate)
	}
	if noShowChargeRatio < 0 || noShowChargeRatio > 1 {
		return FeeSchedule{}, fmt.Errorf("no-show charge ratio %v out of range [0,1]", noShowChargeRatio)
	}
	return FeeSchedule{
		PlatformFeeBps:     int64(math.Round(platformFeeRate * basisPoints)),
		NoShowFamilyCharge: int64(math.Round(noShowChargeRatio * basisPoints)),
	}, nil
}

func DefaultFeeSchedule() FeeSchedule {
	s, _ := RatesToSchedule(DefaultPlatformFeeRate, DefaultNoShowFamilyChargeRatio)
	return s
}

// PlatformFeeRate is the fee as a fraction, for display.
func (s FeeSchedule) PlatformFeeRate() float64 {
	return float64(s.PlatformFeeBps) / basisPoints
}

type Calculator struct {
	schedule FeeSchedule
}

func NewCalculator(schedule FeeSchedule) *Calculator {
	return &Calculator{schedule: schedule}
}

func (c *Calculator) Schedule() FeeSchedule {
	return c.schedule
}

// Cancellation refunds the full price.
func (c *Calculator) Cancellation(price int64) (model.FinancialOutcome, error) {
	if err := checkPrice(price); err != nil {
		return model.FinancialOutcome{}, err
	}
	return model.FinancialOutcome{
		RefundAmount:   price,
		PlatformFeeBps: c.schedule.PlatformFeeBps,
	}, nil
}

// NoShow charges the family part of the price and pays the educator that
// part net of the platform fee. The rest of the price is refunded.
func (c *Calculator) NoShow(price int64) (model.FinancialOutcome, error) {
	if err := checkPrice(price); err != nil {
		return model.FinancialOutcome{}, err
	}
	charge := mulDivRoundHalfUp(price, c.schedule.NoShowFamilyCharge, basisPoints)
	compensation := mulDivRoundHalfUp(price, c.schedule.NoShowFamilyCharge*(basisPoints-c.schedule.PlatformFeeBps), basisPoints*basisPoints)
	return model.FinancialOutcome{
		RefundAmount:       price - charge,
		FamilyChargeAmount: charge,
		CompensationAmount: compensation,
		PlatformFeeAmount:  charge - compensation,
		PlatformFeeBps:     c.schedule.PlatformFeeBps,
	}, nil
}

// Completion captures the full price and pays the educator net of the fee.
func (c *Calculator) Completion(price int64) (model.FinancialOutcome, error) {
	if err := checkPrice(price); err != nil {
		return model.FinancialOutcome{}, err
	}
	payout := mulDivRoundHalfUp(price, basisPoints-c.schedule.PlatformFeeBps, basisPoints)
	return model.FinancialOutcome{
		FamilyChargeAmount: price,
		CompensationAmount: payout,
		PlatformFeeAmount:  price - payout,
		PlatformFeeBps:     c.schedule.PlatformFeeBps,
	}, nil
}

func checkPrice(price int64) error {
	if price < 0 {
		return fmt.Errorf("price %d must not be negative", price)
	}
	return nil
}

// mulDivRoundHalfUp returns round(value*num/den) with halves rounded up, for
// non-negative operands. big.Int keeps the product from overflowing.
func mulDivRoundHalfUp(value, num, den int64) int64 {
	n := new(big.Int).Mul(big.NewInt(value), big.NewInt(num))
	n.Mul(n, big.NewInt(2))
	n.Add(n, big.NewInt(den))
	d := new(big.Int).Mul(big.NewInt(den), big.NewInt(2))
	return n.Quo(n, d).Int64()
}
