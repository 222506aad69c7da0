package models

// Participant is one persona seated at a table.
type Participant struct {
	Handle  string `json:"handle" yaml:"handle"`
	Label   string `json:"label" yaml:"label"`
	Persona string `json:"persona" yaml:"persona"`
	Tone    string `json:"tone" yaml:"tone"`
	Focus   string `json:"focus" yaml:"focus"`
}

// Table is a themed group of personas. Tables are immutable once loaded.
type Table struct {
	ID           string        `json:"id" yaml:"id"`
	Number       int           `json:"number" yaml:"number"`
	Title        string        `json:"title" yaml:"title"`
	Theme        string        `json:"theme" yaml:"theme"`
	Summary      string        `json:"summary" yaml:"summary"`
	Vibe         string        `json:"vibe" yaml:"vibe"`
	Seats        *int          `json:"seats,omitempty" yaml:"seats,omitempty"`
	Participants []Participant `json:"participants" yaml:"participants"`
}

// SeatCount prefers the configured seat count and falls back to the roster size.
func (t *Table) SeatCount() int {
	if t == nil {
		return 0
	}
	if t.Seats != nil {
		return *t.Seats
	}
	return len(t.Participants)
}
