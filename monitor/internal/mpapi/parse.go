package mpapi

import "encoding/json"

// PageMeta carries the pagination counters from page 1 of a listing sweep.
type PageMeta struct {
	TotalResults int
	TotalPages   int
}

type listPayload struct {
	Resultados  json.RawMessage `json:"resultados"`
	ResultCount Count           `json:"resultCount"`
	PageCount   Count           `json:"pageCount"`
}

type listEnvelope struct {
	Payload *listPayload `json:"payload"`
}

// ParseList validates and extracts the result rows and pagination meta
// from a listing response body. ok is false when the body carries no
// payload.resultados key; callers treat that as an empty page. Counters
// default to zero.
func ParseList(body []byte) (items []ListItem, meta PageMeta, ok bool) {
	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Payload == nil {
		return nil, PageMeta{}, false
	}
	meta = PageMeta{
		TotalResults: int(env.Payload.ResultCount),
		TotalPages:   int(env.Payload.PageCount),
	}
	if env.Payload.Resultados == nil {
		return nil, meta, false
	}
	if err := json.Unmarshal(env.Payload.Resultados, &items); err != nil {
		return nil, meta, true
	}
	return items, meta, true
}

type detailPayload struct {
	Descripcion          *string         `json:"descripcion"`
	DireccionEntrega     *string         `json:"direccion_entrega"`
	FechaCierreP1        string          `json:"fecha_cierre_primer_llamado"`
	FechaCierreP2        string          `json:"fecha_cierre_segundo_llamado"`
	ProductosSolicitados json.RawMessage `json:"productos_solicitados"`
	Estado               string          `json:"estado"`
	MotivoDesierta       string          `json:"motivo_desierta"`
	Proveedores          *Count          `json:"cantidad_provedores_cotizando"`
	EstadoConvocatoria   *Count          `json:"estado_convocatoria"`
	PlazoEntrega         *Count          `json:"plazo_entrega"`
}

type detailEnvelope struct {
	Success string         `json:"success"`
	Payload *detailPayload `json:"payload"`
}

// ParseDetail normalizes a ficha response into a Detail record. It returns
// nil unless success == "OK" and a payload object is present. When the
// state text is absent but a desertion reason exists, the state falls back
// to "Desierta".
func ParseDetail(body []byte) *Detail {
	var env detailEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	if env.Success != "OK" || env.Payload == nil {
		return nil
	}
	p := env.Payload

	estado := p.Estado
	if estado == "" && p.MotivoDesierta != "" {
		estado = "Desierta"
	}

	return &Detail{
		Descripcion:        p.Descripcion,
		DireccionEntrega:   p.DireccionEntrega,
		FechaCierreP1:      p.FechaCierreP1,
		FechaCierreP2:      p.FechaCierreP2,
		Productos:          p.ProductosSolicitados,
		Estado:             estado,
		Proveedores:        p.Proveedores,
		EstadoConvocatoria: p.EstadoConvocatoria,
		PlazoEntrega:       p.PlazoEntrega,
	}
}
