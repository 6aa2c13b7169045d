package models

import "time"

// Exercise is one evaluation episode for one student scoped to a set of competences.
type Exercise struct {
	ID           string        `db:"id" json:"id"`
	SessionID    string        `db:"session_id" json:"session_id"`
	Name         string        `db:"name" json:"name"`
	Date         time.Time     `db:"date" json:"date"`
	StudentName  string        `db:"student_name" json:"student_name"`
	Competences  []Competence  `db:"-" json:"competences"`
	IsCompleted  bool          `db:"is_completed" json:"is_completed"`
	Observations []Observation `db:"-" json:"observations"`
}

// Observation is a single checklist entry of an exercise.
type Observation struct {
	ID          string     `db:"id" json:"id"`
	ExerciseID  string     `db:"exercise_id" json:"exercise_id"`
	StudentName string     `db:"student_name" json:"student_name"`
	Competence  Competence `db:"competence" json:"competence"`
	ObCode      *string    `db:"ob_code" json:"ob_code"`
	Text        string     `db:"text" json:"text"`
	IsChecked   bool       `db:"is_checked" json:"is_checked"`
	Position    int        `db:"position" json:"-"`
	Timestamp   time.Time  `db:"timestamp" json:"timestamp"`
}
