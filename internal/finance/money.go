package finance

import (
	"strconv"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatMajor renders a minor-unit amount in major units for display only.
func FormatMajor(amount int64, code string, tag language.Tag) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return strconv.FormatInt(amount, 10) + " " + code
	}
	scale, _ := currency.Standard.Rounding(unit)
	major := float64(amount)
	for i := 0; i < scale; i++ {
		major /= 10
	}
	return message.NewPrinter(tag).Sprint(currency.Symbol(unit.Amount(major)))
}
