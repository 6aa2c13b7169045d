package models

import "time"

// Session groups the students evaluated together and their exercises.
type Session struct {
	ID        string    `db:"id" json:"id"`
	Date      time.Time `db:"date" json:"date"`
	CreatedBy *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	Students  []Student `db:"-" json:"students"`
}

// Student is a roster entry of a session. Students are identified by name within a session.
type Student struct {
	SessionID string `db:"session_id" json:"-"`
	Name      string `db:"name" json:"name"`
	Position  int    `db:"position" json:"-"`
}

// SessionGraph is the fully resolved Session → Students → Exercises → Observations tree.
type SessionGraph struct {
	Session
	Exercises []Exercise `json:"exercises"`
}

// StudentNames returns roster names in roster order.
func (s Session) StudentNames() []string {
	names := make([]string, 0, len(s.Students))
	for _, st := range s.Students {
		names = append(names, st.Name)
	}
	return names
}

// HasStudent reports whether name is on the roster.
func (s Session) HasStudent(name string) bool {
	for _, st := range s.Students {
		if st.Name == name {
			return true
		}
	}
	return false
}

// ObservationsFor returns every observation recorded for student across all exercises,
// in exercise order and then observation order.
func (g SessionGraph) ObservationsFor(student string) []Observation {
	var out []Observation
	for _, ex := range g.Exercises {
		if ex.StudentName != student {
			continue
		}
		for _, obs := range ex.Observations {
			if obs.StudentName == student {
				out = append(out, obs)
			}
		}
	}
	return out
}
