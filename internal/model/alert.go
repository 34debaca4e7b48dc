package model

import "time"

// Alert is a notification emitted by the anomaly evaluator or the chain
// verifier and fanned out by the alert dispatcher.
type Alert struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}
