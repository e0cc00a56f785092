// Package triage defines the closed status and score vocabularies shared by
// the read and write paths of workspace annotations.
package triage

type Status string

const (
	StatusArchived      Status = "Archived"
	StatusNeedsReview   Status = "Needs Review"
	StatusReadyToEngage Status = "Ready to Engage"
	StatusEngaging      Status = "Engaging"
	StatusEngaged       Status = "Engaged"
)

// DefaultStatusCode is the stored code for Needs Review, seeded whenever an
// annotation is created by a score-only write.
const DefaultStatusCode = 0

var statusCodes = map[Status]int{
	StatusArchived:      -1,
	StatusNeedsReview:   0,
	StatusReadyToEngage: 1,
	StatusEngaging:      2,
	StatusEngaged:       3,
}

var statusLabels = map[int]Status{
	-1: StatusArchived,
	0:  StatusNeedsReview,
	1:  StatusReadyToEngage,
	2:  StatusEngaging,
	3:  StatusEngaged,
}

// StatusCode maps a status label to its stored code. Unrecognized labels are
// rejected at the boundary, so the second return reports validity.
func StatusCode(label string) (int, bool) {
	code, ok := statusCodes[Status(label)]
	return code, ok
}

// StatusLabel maps a stored code back to its display label. Codes outside the
// table fall back to Needs Review.
func StatusLabel(code int) Status {
	if label, ok := statusLabels[code]; ok {
		return label
	}
	return StatusNeedsReview
}

// ScoreValue maps a score label to its stored integer. The mapping is
// deliberately permissive: an unrecognized label maps to 0 instead of
// failing, matching the write path's original contract.
func ScoreValue(label string) int {
	switch label {
	case "Prime":
		return 100
	case "High":
		return 75
	case "Medium":
		return 45
	case "Low":
		return 10
	default:
		return 0
	}
}
