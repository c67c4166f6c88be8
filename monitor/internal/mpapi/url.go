// Package mpapi builds Mercado Público buscador API URLs and parses its
// JSON responses. Everything here is pure: parse failures degrade to
// empty values and never propagate.
package mpapi

import (
	"fmt"
	"strings"
)

const (
	// DefaultBaseAPI is the JSON API host gated behind the buscador SPA.
	DefaultBaseAPI = "https://api.buscador.mercadopublico.cl"

	// DefaultPortalURL is the SPA page whose load issues the bearer token.
	DefaultPortalURL = "https://buscador.mercadopublico.cl/compra-agil"

	// Referer is sent with every API request.
	Referer = "https://buscador.mercadopublico.cl/"
)

// ListURL builds the paginated quick-purchase listing endpoint.
// The region parameter is deliberately not emitted: the API ignores the
// date filters when region is present.
func ListURL(base string, page int, dateFrom, dateTo string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/compra-agil?status=2&order_by=recent&page_number=%d", base, page)
	if dateFrom != "" {
		fmt.Fprintf(&b, "&date_from=%s", dateFrom)
	}
	if dateTo != "" {
		fmt.Fprintf(&b, "&date_to=%s", dateTo)
	}
	return b.String()
}

// DetailURL builds the single-tender detail (ficha) endpoint. Codes are
// inserted raw; the upstream accepts them unescaped.
func DetailURL(base, code string) string {
	return fmt.Sprintf("%s/compra-agil?action=ficha&code=%s", base, code)
}
