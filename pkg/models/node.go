// Package models defines the execution tracking models shared by the store,
// the polling coordinator and the remote client.
package models

import "maps"

// NoSubIndex marks a node's own record, as opposed to one of its loop iterations.
const NoSubIndex = -1

// ExecutionRecord is one observation of a node (or loop iteration) run state.
type ExecutionRecord struct {
	NodeID    string         `json:"node_id"`
	SubIndex  int            `json:"sub_index"`
	Status    Status         `json:"status"`
	StartTime *int64         `json:"start_time,omitempty"` // epoch milliseconds
	EndTime   *int64         `json:"end_time,omitempty"`   // epoch milliseconds
	Duration  *float64       `json:"duration,omitempty"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	Outputs   map[string]any `json:"outputs,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// IsIteration reports whether the record describes a loop iteration.
func (r ExecutionRecord) IsIteration() bool {
	return r.SubIndex >= 0
}

// Clone returns a copy that does not share payload maps with r.
func (r ExecutionRecord) Clone() ExecutionRecord {
	c := r
	c.Inputs = maps.Clone(r.Inputs)
	c.Outputs = maps.Clone(r.Outputs)

	if r.StartTime != nil {
		v := *r.StartTime
		c.StartTime = &v
	}

	if r.EndTime != nil {
		v := *r.EndTime
		c.EndTime = &v
	}

	if r.Duration != nil {
		v := *r.Duration
		c.Duration = &v
	}

	return c
}

// NormalizeSubIndex maps an absent or negative iteration index to NoSubIndex.
func NormalizeSubIndex(subIndex *int) int {
	if subIndex == nil || *subIndex < 0 {
		return NoSubIndex
	}

	return *subIndex
}

// RecordKey identifies a record inside the store.
type RecordKey struct {
	CanvasID string
	NodeID   string
	SubIndex int
}

func NewRecordKey(canvasID, nodeID string, subIndex int) RecordKey {
	if subIndex < 0 {
		subIndex = NoSubIndex
	}

	return RecordKey{CanvasID: canvasID, NodeID: nodeID, SubIndex: subIndex}
}

// NodeStatus is the projection of a record consumed by status projectors.
type NodeStatus struct {
	NodeID   string `json:"node_id"`
	SubIndex int    `json:"sub_index"`
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
}
