package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Event kinds emitted by the core. Events carry identifiers and timestamps
// only; never secret material, keys, or payload bytes.
const (
	UserSignedUp      = "user.signup"
	UserStatusChanged = "user.status"
	UserRoleChanged   = "user.role"
	KeyPairPublished  = "user.keypair"
	ItemCreated       = "item.create"
	ItemUpdated       = "item.update"
	ItemDeleted       = "item.delete"
	RequestCreated    = "request.create"
	RequestApproved   = "request.approve"
	RequestDenied     = "request.deny"
	RequestCancelled  = "request.cancel"
	GrantRevoked      = "grant.revoke"
)

type Event struct {
	ActorID    string    `bson:"actor_id" json:"actorId"`
	Kind       string    `bson:"kind" json:"kind"`
	TargetType string    `bson:"target_type" json:"targetType"`
	TargetID   string    `bson:"target_id" json:"targetId"`
	At         time.Time `bson:"at" json:"at"`
	IP         string    `bson:"ip,omitempty" json:"ip,omitempty"`
}

type Sink interface {
	Record(ctx context.Context, e Event)
}

type ipKey struct{}

// WithIP attaches the caller's network address so services can stamp events
// without plumbing an extra parameter through every signature.
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

func IPFrom(ctx context.Context) string {
	ip, _ := ctx.Value(ipKey{}).(string)
	return ip
}

// ChainLog is an in-memory, hash-chained event log: each entry's hash covers
// the previous hash, so truncation or edits are detectable via Verify.
type ChainLog struct {
	mu       sync.Mutex
	lastHash []byte
	entries  []ChainEntry
}

type ChainEntry struct {
	Event Event  `json:"event"`
	Hash  string `json:"hash"`
}

func NewChainLog() *ChainLog { return &ChainLog{} }

func (l *ChainLog) Record(ctx context.Context, e Event) {
	if e.IP == "" {
		e.IP = IPFrom(ctx)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	sum := chainHash(l.lastHash, e)
	l.lastHash = sum
	l.entries = append(l.entries, ChainEntry{Event: e, Hash: hex.EncodeToString(sum)})
}

func (l *ChainLog) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var prev []byte
	for i, en := range l.entries {
		sum := chainHash(prev, en.Event)
		if hex.EncodeToString(sum) != en.Hash {
			return fmt.Errorf("audit chain broken at entry %d", i)
		}
		prev = sum
	}
	return nil
}

func (l *ChainLog) Entries() []ChainEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ChainEntry(nil), l.entries...)
}

func chainHash(prev []byte, e Event) []byte {
	h := sha256.New()
	h.Write(prev)
	fmt.Fprintf(h, "%s|%s|%s|%s|%d|%s", e.ActorID, e.Kind, e.TargetType, e.TargetID, e.At.UnixNano(), e.IP)
	return h.Sum(nil)
}

// Fanout records to every sink.
type Fanout []Sink

func (f Fanout) Record(ctx context.Context, e Event) {
	for _, s := range f {
		s.Record(ctx, e)
	}
}

// Discard drops everything; test default.
type Discard struct{}

func (Discard) Record(context.Context, Event) {}
