package worker

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// NormalizePhone strips formatting and prefixes the country code unless the
// number already carries it.
func NormalizePhone(phone, countryCode string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(digits, countryCode) && len(digits) > 9 {
		return digits
	}
	return countryCode + digits
}

func receiptText(customerName, company, invoiceNumber string, total decimal.Decimal) string {
	name := customerName
	if name == "" {
		name = "customer"
	}
	return fmt.Sprintf("Hello %s, thank you for shopping at %s. Invoice %s, total %s.",
		name, company, invoiceNumber, total.StringFixed(2))
}

// WhatsAppLink builds a wa.me click-to-chat link with the text pre-filled.
func WhatsAppLink(phone, text string) string {
	return "https://wa.me/" + phone + "?text=" + url.QueryEscape(text)
}
