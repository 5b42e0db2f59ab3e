package loadgen

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/studiowebux/reviewload/internal/types"
)

// suffixLength is the number of hex characters appended to pull request ids
const suffixLength = 8

// Factory generates synthetic team and pull request payloads
type Factory struct {
	suffix func() string
}

// NewFactory creates a factory with uuid-derived id suffixes
func NewFactory() *Factory {
	return &Factory{suffix: randomSuffix}
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLength]
}

// Team builds a team payload with size active members.
// Member ids are "<team>-user-<n>" with n starting at 1.
func (f *Factory) Team(name string, size int) types.Team {
	members := make([]types.TeamMember, 0, size)
	for idx := 1; idx <= size; idx++ {
		members = append(members, types.TeamMember{
			UserID:   fmt.Sprintf("%s-user-%d", name, idx),
			Username: fmt.Sprintf("user-%d", idx),
			IsActive: true,
		})
	}
	return types.Team{TeamName: name, Members: members}
}

// PullRequests builds count pull request payloads authored by author
func (f *Factory) PullRequests(author string, count int) []types.CreatePullRequest {
	prs := make([]types.CreatePullRequest, 0, count)
	for idx := 1; idx <= count; idx++ {
		prs = append(prs, types.CreatePullRequest{
			ID:       fmt.Sprintf("%s-pr-%d-%s", author, idx, f.suffix()),
			Name:     fmt.Sprintf("Feature #%d", idx),
			AuthorID: author,
		})
	}
	return prs
}

// TeamNamer hands out sequential team names for one run.
// It is shared by every session of the run.
type TeamNamer struct {
	prefix string
	next   atomic.Int64
}

// NewTeamNamer creates a namer whose first name is "<prefix>-1"
func NewTeamNamer(prefix string) *TeamNamer {
	return &TeamNamer{prefix: prefix}
}

// Next returns the next unused team name
func (n *TeamNamer) Next() string {
	return fmt.Sprintf("%s-%d", n.prefix, n.next.Add(1))
}
