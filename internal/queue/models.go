package queue

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// Queue is a durable queue row mapped to Go.
type Queue struct {
	ID           int64
	Name         string
	DefaultLease time.Duration
}

// Message is the durable message row mapped to Go. Handle and LeaseExpiresAt
// are nil while the message sits unleased; Receive fills both for the duration
// of a lease.
type Message struct {
	ID             int64
	QueueID        int64
	Queue          string
	Body           string
	BodyMD5        string
	CreatedAt      time.Time
	Handle         *string
	LeaseExpiresAt *time.Time
}

// Leased reports whether the record carries a lease handle.
func (m *Message) Leased() bool {
	return m.Handle != nil
}

// ReceiveOptions controls how messages are claimed.
type ReceiveOptions struct {
	Queue string
	Max   int
	Lease time.Duration
}

// Capabilities is the static descriptor of the operations this queue
// implementation supports.
type Capabilities struct {
	Create        bool `json:"create"`
	Delete        bool `json:"delete"`
	Send          bool `json:"send"`
	Receive       bool `json:"receive"`
	DeleteMessage bool `json:"deleteMessage"`
	GetQueues     bool `json:"getQueues"`
	Count         bool `json:"count"`
	IsExists      bool `json:"isExists"`
}

// NormalizeBody converts a payload to its stored text form. Textual payloads
// are trimmed, so bytes-in may not equal bytes-out for bodies with
// surrounding whitespace.
func NormalizeBody(body string) string {
	return strings.TrimSpace(body)
}

// BodyDigest returns the hex MD5 of a normalized body. It is an integrity
// check against corruption, not a cryptographic signature.
func BodyDigest(body string) string {
	sum := md5.Sum([]byte(body))
	return hex.EncodeToString(sum[:])
}
