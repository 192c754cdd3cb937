package engine

import "github.com/dukerupert/taskwheel/internal/model"

// splitShare computes each recipient's slice of a whole-point value, in
// hundredths. Division rounds half up; if the rounded shares would sum past
// the total, the share is walked down until they fit. The residual is
// absorbed (a small accepted loss), never redistributed, so the recorded
// total can fall at most a few hundredths short of the instance value and
// can never exceed it.
func splitShare(points, n int) int64 {
	if n <= 0 || points <= 0 {
		return 0
	}
	total := int64(points) * model.PointScale
	share := (total + int64(n)/2) / int64(n)
	for share > 0 && share*int64(n) > total {
		share--
	}
	return share
}

// buildShares produces the share list for a set of recipient ids.
func buildShares(points int, recipients []int64) []model.CompletionShare {
	share := splitShare(points, len(recipients))
	shares := make([]model.CompletionShare, 0, len(recipients))
	for _, id := range recipients {
		shares = append(shares, model.CompletionShare{PersonID: id, ShareHundredths: share})
	}
	return shares
}
