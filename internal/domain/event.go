package domain

import "time"

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event describes one persisted mutation.
type Event struct {
	Collection string    `json:"collection"`
	Op         Op        `json:"op"`
	ID         string    `json:"id"`
	Record     Record    `json:"record,omitempty"`
	At         time.Time `json:"at"`
}

type EventPublisher interface {
	Publish(Event)
}
