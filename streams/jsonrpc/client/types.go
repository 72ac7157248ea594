package client

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind discriminates release-feed payloads.
type EventKind string

const (
	EventPublished      EventKind = "published"
	EventRevoked        EventKind = "revoked"
	EventMinimumVersion EventKind = "minimumVersion"
	EventSignerRotation EventKind = "signerRotation"
)

// SubscriptionEvent is the wrapper object received from the server.
type SubscriptionEvent struct {
	Type    EventKind       `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// ReleaseEvent is one accepted registry operation as broadcast on the feed.
// The Nonce is the operation nonce the registry consumed, so events arrive
// in strictly increasing nonce order on a healthy feed.
type ReleaseEvent struct {
	Kind           EventKind   `json:"kind"`
	Component      string      `json:"component"`
	Version        string      `json:"version,omitempty"`
	BinaryHash     common.Hash `json:"binaryHash,omitempty"`
	MinimumVersion string      `json:"minimumVersion,omitempty"`
	RevokeReason   string      `json:"revokeReason,omitempty"`
	Nonce          uint64      `json:"nonce"`

	// SentAt carries the server-side send timestamp (unix nanoseconds),
	// copied from the wrapper for latency accounting.
	SentAt int64 `json:"-"`
}
