package models

// CompetenceReportRow is the graded outcome of one competence for one student.
type CompetenceReportRow struct {
	Competence        Competence         `json:"-"`
	HowMany           int                `json:"how_many"`
	HowOften          int                `json:"how_often"`
	SafetyScore       int                `json:"safety_score"`
	FinalGrade        int                `json:"final_grade"`
	ObservedBehaviors []ObservedBehavior `json:"observations"`
}

// ObservedBehavior is a behavior that was checked at least once.
type ObservedBehavior struct {
	ObCode *string `json:"ob_code"`
	Text   string  `json:"text"`
}

// UncheckedObservation is an observation that was never checked.
type UncheckedObservation struct {
	Text       string     `json:"text"`
	ObCode     *string    `json:"ob_code"`
	Competence Competence `json:"competence"`
}

// StudentReport is the consolidated report of one student.
type StudentReport struct {
	Report                map[Competence]CompetenceReportRow `json:"report"`
	UncheckedObservations []UncheckedObservation             `json:"unchecked_observations"`
}

// SessionReport maps student names to their reports.
type SessionReport map[string]StudentReport
