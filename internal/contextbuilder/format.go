package contextbuilder

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var mxPrinter = message.NewPrinter(language.MustParse("es-MX"))

// FormatPriceMXN 은 가격을 "$12,500 MXN" 형식으로 만든다.
func FormatPriceMXN(price float64) string {
	return mxPrinter.Sprintf("$%d MXN", int64(math.Round(price)))
}

func formatRating(avg float64, count int64) string {
	if count == 0 {
		return "sin reseñas"
	}
	return fmt.Sprintf("%.1f★ (%d)", avg, count)
}

func catalogLine(l Listing) string {
	parts := []string{l.Name}
	if len(l.Services) > 0 {
		names := make([]string, 0, len(l.Services))
		for _, s := range l.Services {
			entry := s.Name
			if s.PriceMXN > 0 {
				entry += " " + FormatPriceMXN(s.PriceMXN)
				if s.Unit != "" {
					entry += "/" + s.Unit
				}
			}
			names = append(names, entry)
		}
		parts = append(parts, strings.Join(names, "; "))
	}
	if l.City != "" {
		parts = append(parts, l.City)
	}
	parts = append(parts, formatRating(l.AvgRating, l.ReviewCount))
	if l.Verified {
		parts = append(parts, "verificado")
	}
	if contact := l.Contact(); contact != "" {
		parts = append(parts, contact)
	}
	return "- " + strings.Join(parts, " | ")
}
