package graph

import (
	"github.com/ha1tch/socnet/pkg/models"
)

// Edge is one friendship line of an edge list, in file orientation
type Edge struct {
	From int64
	To   int64
}

// EdgeList is a parsed social graph: the distinct vertices and every edge
// in the order it was read.
type EdgeList struct {
	// Vertices holds each user ID once, in order of first appearance
	Vertices []int64
	Edges    []Edge

	seen map[int64]struct{}
}

// NewEdgeList creates an empty edge list
func NewEdgeList() *EdgeList {
	return &EdgeList{
		Vertices: []int64{},
		Edges:    []Edge{},
		seen:     make(map[int64]struct{}),
	}
}

// AddEdge appends an edge and records both endpoints as vertices.
// Duplicate and reversed edges are kept as separate entries.
func (l *EdgeList) AddEdge(from, to int64) {
	l.addVertex(from)
	l.addVertex(to)
	l.Edges = append(l.Edges, Edge{From: from, To: to})
}

func (l *EdgeList) addVertex(id int64) {
	if l.seen == nil {
		l.seen = make(map[int64]struct{})
		for _, v := range l.Vertices {
			l.seen[v] = struct{}{}
		}
	}
	if _, exists := l.seen[id]; exists {
		return
	}
	l.seen[id] = struct{}{}
	l.Vertices = append(l.Vertices, id)
}

// HasVertex reports whether id appears anywhere in the edge list
func (l *EdgeList) HasVertex(id int64) bool {
	if l.seen != nil {
		_, ok := l.seen[id]
		return ok
	}
	for _, v := range l.Vertices {
		if v == id {
			return true
		}
	}
	return false
}

// VertexCount returns the number of distinct user IDs
func (l *EdgeList) VertexCount() int {
	return len(l.Vertices)
}

// EdgeCount returns the number of edges, duplicates included
func (l *EdgeList) EdgeCount() int {
	return len(l.Edges)
}

// IsEmpty reports whether the edge list has no vertices
func (l *EdgeList) IsEmpty() bool {
	return len(l.Vertices) == 0
}

// Materialize builds the rows to persist for a dataset: one user per
// distinct vertex and one friendship per edge, preserving input order.
func Materialize(datasetID int64, l *EdgeList) ([]models.User, []models.Friendship) {
	users := make([]models.User, 0, len(l.Vertices))
	for _, id := range l.Vertices {
		users = append(users, models.User{
			DatasetID: datasetID,
			UserID:    id,
		})
	}

	friendships := make([]models.Friendship, 0, len(l.Edges))
	for _, e := range l.Edges {
		friendships = append(friendships, models.Friendship{
			DatasetID: datasetID,
			User1ID:   e.From,
			User2ID:   e.To,
		})
	}

	return users, friendships
}
