package queue

import "errors"

// ErrQueueNotFound is returned when a queue name does not resolve to a row.
// Send, Count and Receive surface it; QueueExists absorbs it into false.
var ErrQueueNotFound = errors.New("queue not found")
