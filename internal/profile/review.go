package profile

import "github.com/sells-group/brand-cli/internal/model"

// Decision is a reviewer's verdict on one changed path.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// ReviewResult splits a change set by review decision.
type ReviewResult struct {
	Accepted model.Changes `json:"accepted"`
	Rejected []string      `json:"rejected"`
	Pending  []string      `json:"pending"`
}

// Review sorts changes into accepted, rejected and undecided paths.
// Decisions for paths that are not in changes are ignored.
func Review(changes model.Changes, decisions map[string]Decision) ReviewResult {
	res := ReviewResult{Accepted: model.Changes{}}
	for _, path := range changes.Paths() {
		switch decisions[path] {
		case DecisionAccept:
			res.Accepted[path] = changes[path]
		case DecisionReject:
			res.Rejected = append(res.Rejected, path)
		default:
			res.Pending = append(res.Pending, path)
		}
	}
	return res
}
