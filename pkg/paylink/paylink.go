package paylink

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// PaypalMe builds a paypal.me redirect URL for the given handle and amount.
// The amount is whole cents; PayPal expects decimal currency units. Currency
// must be an ISO 4217 code; PayPal ignores unsupported ones, so we pass it
// through untouched.
func PaypalMe(handle string, amountCents int64, currency string) (string, error) {
	h := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
	if h == "" {
		return "", fmt.Errorf("paypal handle is required")
	}
	if amountCents <= 0 {
		return "", fmt.Errorf("amount must be positive, got %d cents", amountCents)
	}

	amount := decimal.NewFromInt(amountCents).Div(decimal.NewFromInt(100))
	path := fmt.Sprintf("/%s/%s", url.PathEscape(h), amount.StringFixed(2))
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if cur != "" {
		path += cur
	}
	return "https://paypal.me" + path, nil
}
