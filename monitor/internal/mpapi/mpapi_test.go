package mpapi

import (
	"testing"
	"time"
)

func TestListURL(t *testing.T) {
	got := ListURL("https://api.example.cl", 3, "2026-08-01", "2026-08-20")
	want := "https://api.example.cl/compra-agil?status=2&order_by=recent&page_number=3&date_from=2026-08-01&date_to=2026-08-20"
	if got != want {
		t.Fatalf("ListURL = %q, want %q", got, want)
	}
}

func TestListURLOmitsEmptyDates(t *testing.T) {
	got := ListURL("https://api.example.cl", 1, "", "")
	want := "https://api.example.cl/compra-agil?status=2&order_by=recent&page_number=1"
	if got != want {
		t.Fatalf("ListURL = %q, want %q", got, want)
	}
}

func TestDetailURL(t *testing.T) {
	got := DetailURL("https://api.example.cl", "5331-1234-COT26")
	want := "https://api.example.cl/compra-agil?action=ficha&code=5331-1234-COT26"
	if got != want {
		t.Fatalf("DetailURL = %q, want %q", got, want)
	}
}

func TestParseList(t *testing.T) {
	body := []byte(`{"payload":{"resultados":[
		{"codigo":"123-1-COT26","nombre":"Compra de insumos","organismo":"Hospital X",
		 "monto_disponible_CLP":"1500000","estado":"Publicada","cantidad_provedores_cotizando":3}
	],"resultCount":42,"pageCount":2}}`)

	items, meta, ok := ParseList(body)
	if !ok {
		t.Fatal("ParseList ok = false, want true")
	}
	if meta.TotalResults != 42 || meta.TotalPages != 2 {
		t.Fatalf("meta = %+v, want 42/2", meta)
	}
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	it := items[0]
	if it.Code() != "123-1-COT26" {
		t.Errorf("Code = %q", it.Code())
	}
	// Amounts arrive as strings half the time; both must decode.
	if it.MontoCLP == nil || float64(*it.MontoCLP) != 1500000 {
		t.Errorf("MontoCLP = %v, want 1500000", it.MontoCLP)
	}
	if it.Proveedores == nil || int(*it.Proveedores) != 3 {
		t.Errorf("Proveedores = %v, want 3", it.Proveedores)
	}
}

func TestParseListMissingPayload(t *testing.T) {
	for _, body := range []string{`{}`, `{"payload":null}`, `{"payload":{"resultCount":5}}`, `not json`} {
		if _, _, ok := ParseList([]byte(body)); ok {
			t.Errorf("ParseList(%q) ok = true, want false", body)
		}
	}
}

func TestParseListBadRowsDegradeToEmpty(t *testing.T) {
	// A present but malformed resultados key is a valid page with no rows,
	// not a session failure.
	items, _, ok := ParseList([]byte(`{"payload":{"resultados":{"weird":1},"pageCount":1}}`))
	if !ok {
		t.Fatal("ok = false, want true")
	}
	if len(items) != 0 {
		t.Fatalf("len(items) = %d, want 0", len(items))
	}
}

func TestParseDetail(t *testing.T) {
	body := []byte(`{"success":"OK","payload":{
		"descripcion":"Se requieren guantes de nitrilo",
		"estado":"Publicada",
		"plazo_entrega":"10",
		"productos_solicitados":[{"nombre":"Guante","descripcion":"nitrilo talla M"}]}}`)

	d := ParseDetail(body)
	if d == nil {
		t.Fatal("ParseDetail = nil")
	}
	if d.Descripcion == nil || *d.Descripcion != "Se requieren guantes de nitrilo" {
		t.Errorf("Descripcion = %v", d.Descripcion)
	}
	if d.Estado != "Publicada" {
		t.Errorf("Estado = %q", d.Estado)
	}
	if d.PlazoEntrega == nil || int(*d.PlazoEntrega) != 10 {
		t.Errorf("PlazoEntrega = %v, want 10", d.PlazoEntrega)
	}
}

func TestParseDetailRequiresSuccess(t *testing.T) {
	for _, body := range []string{
		`{"success":"ERROR","payload":{}}`,
		`{"success":"OK"}`,
		`{"payload":{}}`,
		`garbage`,
	} {
		if d := ParseDetail([]byte(body)); d != nil {
			t.Errorf("ParseDetail(%q) = %+v, want nil", body, d)
		}
	}
}

func TestParseDetailDesiertaFallback(t *testing.T) {
	d := ParseDetail([]byte(`{"success":"OK","payload":{"motivo_desierta":"Sin ofertas"}}`))
	if d == nil {
		t.Fatal("ParseDetail = nil")
	}
	if d.Estado != "Desierta" {
		t.Fatalf("Estado = %q, want Desierta", d.Estado)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-08-20T15:04:05", time.Date(2026, 8, 20, 15, 4, 5, 0, time.Local)},
		{"2026-08-20 15:04:05", time.Date(2026, 8, 20, 15, 4, 5, 0, time.Local)},
		{"2026-08-20", time.Date(2026, 8, 20, 0, 0, 0, 0, time.Local)},
		{"", time.Time{}},
		{"nonsense", time.Time{}},
	}
	for _, tt := range tests {
		if got := ParseTime(tt.in); !got.Equal(tt.want) {
			t.Errorf("ParseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCodeFallsBackToID(t *testing.T) {
	it := ListItem{ID: "999-1-COT26"}
	if it.Code() != "999-1-COT26" {
		t.Fatalf("Code = %q", it.Code())
	}
}
