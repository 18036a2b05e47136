package model

// GradeRow is one line of a teacher's grade sheet.
type GradeRow struct {
	Row          int     `json:"row"`
	SubmissionID string  `json:"submission_id"`
	Score        float64 `json:"score"`
	Feedback     string  `json:"feedback"`
	// RawScore is the cell as typed; ScoreSet is false when it is not a number.
	RawScore string `json:"-"`
	ScoreSet bool   `json:"-"`
}

type GradeImportFailure struct {
	Row          int    `json:"row"`
	SubmissionID string `json:"submission_id"`
	Error        string `json:"error"`
}

type GradeImportReport struct {
	Total    int                  `json:"total"`
	Graded   int                  `json:"graded"`
	Failures []GradeImportFailure `json:"failures,omitempty"`
}
