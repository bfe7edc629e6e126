package models

import "fmt"

// HistoryQuery selects a page of stored predictions.
type HistoryQuery struct {
	Disease string `json:"disease,omitempty"`
	Offset  int    `json:"offset,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// Validate normalizes limit and offset. Returns an error for a negative offset.
func (q *HistoryQuery) Validate() error {
	if q.Offset < 0 {
		return fmt.Errorf("offset cannot be negative")
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 200 {
		q.Limit = 200
	}
	return nil
}
