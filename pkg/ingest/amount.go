package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var amountPattern = regexp.MustCompile(`^(\D*?)(\d+(?:\.\d*)?)(.*)$`)

// ExtractAmountCurrency splits a raw amount such as "$1,200.50" or
// "500,000 VND" into its numeric value and currency marker. Commas are
// treated as thousands separators. A leading minus sign negates the amount.
func ExtractAmountCurrency(raw string) (float64, string, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")

	m := amountPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, "", fmt.Errorf("no numeric amount in %q", raw)
	}

	prefix := strings.TrimSpace(m[1])
	negative := false
	if strings.HasPrefix(prefix, "-") {
		negative = true
		prefix = strings.TrimSpace(strings.TrimPrefix(prefix, "-"))
	} else if strings.HasSuffix(prefix, "-") {
		negative = true
		prefix = strings.TrimSpace(strings.TrimSuffix(prefix, "-"))
	}

	amount, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if negative {
		amount = -amount
	}

	currency := strings.TrimSpace(prefix + strings.TrimSpace(m[3]))
	return amount, currency, nil
}
