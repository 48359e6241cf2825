package domain

// CheckScore is the sub-score of one validator check family.
type CheckScore struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// ValidationOutcome is the validator's verdict for one extraction attempt.
type ValidationOutcome struct {
	ItemID          string       `json:"item_id"`
	Accepted        bool         `json:"accepted"`
	Confidence      float64      `json:"confidence"`
	Reasons         []string     `json:"reasons"`
	MissingRequired []string     `json:"missing_required,omitempty"`
	Checks          []CheckScore `json:"checks"`
}
