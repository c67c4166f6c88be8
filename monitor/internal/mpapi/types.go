package mpapi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Number decodes a JSON value that may arrive as a number, a numeric
// string, or null. The upstream is inconsistent about amounts.
type Number float64

// UnmarshalJSON never fails: unparseable values decode to zero.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = Number(f)
	return nil
}

// Count is Number's integer counterpart, used for bidder counts, state
// tags, and lead times.
type Count int

func (c *Count) UnmarshalJSON(b []byte) error {
	var n Number
	n.UnmarshalJSON(b)
	*c = Count(n)
	return nil
}

// ListItem is one row of payload.resultados on the listing endpoint.
// Field tags mirror the upstream keys, typos included.
type ListItem struct {
	Codigo             string  `json:"codigo"`
	ID                 string  `json:"id"`
	Nombre             string  `json:"nombre"`
	Organismo          string  `json:"organismo"`
	MontoCLP           *Number `json:"monto_disponible_CLP"`
	FechaPublicacion   string  `json:"fecha_publicacion"`
	FechaCierre        string  `json:"fecha_cierre"`
	Estado             string  `json:"estado"`
	EstadoConvocatoria *Count  `json:"estado_convocatoria"`
	Proveedores        *Count  `json:"cantidad_provedores_cotizando"`
}

// Code returns the stable identifier for dedup: codigo, falling back to id.
func (it *ListItem) Code() string {
	if it.Codigo != "" {
		return it.Codigo
	}
	return it.ID
}

// Detail is the normalized payload of the ficha endpoint. Null upstream
// values stay nil; Productos is kept raw and decoded at the scoring
// boundary, where list-vs-JSON-string polymorphism is handled once.
type Detail struct {
	Descripcion        *string
	DireccionEntrega   *string
	FechaCierreP1      string
	FechaCierreP2      string
	Productos          json.RawMessage
	Estado             string
	Proveedores        *Count
	EstadoConvocatoria *Count
	PlazoEntrega       *Count
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses the timestamp formats the upstream emits. Naive stamps
// are interpreted in the host zone; empty or unrecognized values yield the
// zero time.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}
