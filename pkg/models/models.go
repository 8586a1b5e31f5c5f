package models

import (
	"time"
)

// Dataset is one named snapshot of an ingested social graph
type Dataset struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is a vertex of a dataset. UserID comes from the input file and is
// not a storage-assigned key.
type User struct {
	DatasetID int64 `json:"datasetId"`
	UserID    int64 `json:"userId"`
}

// Friendship is one undirected edge as it appeared in the input file
type Friendship struct {
	DatasetID int64 `json:"datasetId"`
	User1ID   int64 `json:"user1Id"`
	User2ID   int64 `json:"user2Id"`
}

// Statistics holds derived degree statistics for a dataset
type Statistics struct {
	TotalUsers            int64   `json:"totalUsers"`
	AverageFriendsPerUser float64 `json:"averageFriendsPerUser"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"error"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ExistsResponse answers a dataset name lookup
type ExistsResponse struct {
	Name   string `json:"name"`
	Exists bool   `json:"exists"`
}
