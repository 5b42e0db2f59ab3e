package loadgen

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/jmespath/go-jmespath"
)

var (
	assignedReviewersPath = jmespath.MustCompile("pr.assigned_reviewers")
	replacedByPath        = jmespath.MustCompile("replaced_by")
)

// ReassignOutcome is the decoded meaning of a successful reassign response.
// It is either a FullReviewerList or a ReplacementHint.
type ReassignOutcome interface {
	// Apply returns the reviewer set that follows from current
	Apply(current []string) []string
}

// FullReviewerList is the authoritative reviewer set sent by the server
type FullReviewerList struct {
	Reviewers []string
}

// Apply replaces current wholesale
func (l FullReviewerList) Apply([]string) []string {
	return normalizeReviewers(l.Reviewers)
}

// ReplacementHint says OldUserID was swapped for NewUserID
type ReplacementHint struct {
	OldUserID string
	NewUserID string
}

// Apply removes the old reviewer when present and adds the new one once.
// Applying the same hint twice yields the same set.
func (h ReplacementHint) Apply(current []string) []string {
	next := make([]string, 0, len(current)+1)
	for _, id := range current {
		if id != h.OldUserID {
			next = append(next, id)
		}
	}
	if !slices.Contains(next, h.NewUserID) {
		next = append(next, h.NewUserID)
	}
	return next
}

// DecodeReassignResponse turns a 200 reassign body into a ReassignOutcome.
// A pr.assigned_reviewers list that is non-empty after normalization wins
// over replaced_by. A malformed list is ignored when replaced_by is usable.
func DecodeReassignResponse(body []byte, oldUserID string) (ReassignOutcome, error) {
	data, err := decodeJSON(body)
	if err != nil {
		return nil, err
	}

	reviewers, listErr := searchReviewers(data)
	if listErr == nil {
		if reviewers = normalizeReviewers(reviewers); len(reviewers) > 0 {
			return FullReviewerList{Reviewers: reviewers}, nil
		}
	}

	replacedBy, err := replacedByPath.Search(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReconciliationAmbiguous, err)
	}
	newUserID, ok := replacedBy.(string)
	if !ok || newUserID == "" {
		if listErr != nil {
			return nil, listErr
		}
		return nil, ErrReconciliationAmbiguous
	}
	return ReplacementHint{OldUserID: oldUserID, NewUserID: newUserID}, nil
}

func DecodeAssignedReviewers(body []byte) ([]string, error) {
	data, err := decodeJSON(body)
	if err != nil {
		return nil, err
	}
	reviewers, err := searchReviewers(data)
	if err != nil {
		return nil, err
	}
	return normalizeReviewers(reviewers), nil
}

func decodeJSON(body []byte) (interface{}, error) {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: response is not valid JSON: %v", ErrReconciliationAmbiguous, err)
	}
	return data, nil
}

func searchReviewers(data interface{}) ([]string, error) {
	result, err := assignedReviewersPath.Search(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReconciliationAmbiguous, err)
	}
	if result == nil {
		return nil, nil
	}
	items, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: assigned_reviewers is %T, not a list", ErrReconciliationAmbiguous, result)
	}
	reviewers := make([]string, 0, len(items))
	for _, item := range items {
		id, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: assigned_reviewers contains %T", ErrReconciliationAmbiguous, item)
		}
		reviewers = append(reviewers, id)
	}
	return reviewers, nil
}
