package graph

import "errors"

// ErrNoUsers is returned when an average is requested over zero users
var ErrNoUsers = errors.New("total users must be greater than 0")

// AverageFriendsPerUser returns the average degree of a graph with the
// given edge and vertex counts. Every stored edge adds one to the degree of
// each endpoint, so self-loops and duplicates count as stored.
func AverageFriendsPerUser(totalFriendships, totalUsers int64) (float64, error) {
	if totalUsers <= 0 {
		return 0, ErrNoUsers
	}
	return float64(totalFriendships) * 2 / float64(totalUsers), nil
}
