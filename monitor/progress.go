package monitor

// Progress delivers human-readable status and a 0-100 percentage while
// a long operation runs. Either callback may be nil.
type Progress struct {
	Text func(string)
	Pct  func(int)
}

func (p *Progress) text(msg string) {
	if p != nil && p.Text != nil {
		p.Text(msg)
	}
}

func (p *Progress) pct(v int) {
	if p != nil && p.Pct != nil {
		p.Pct(v)
	}
}
