package table

import (
	"time"

	"github.com/ccnd-project/ccnd/internal/core"
	"github.com/cespare/xxhash/v2"
)

// NonceLifetime is how long a seen nonce is remembered (spec.md §4.4:
// "Entries are 6 s long").
const NonceLifetime = 6 * time.Second

// MaxLazyExpire bounds how many head-of-queue expired entries a single
// query evicts (spec.md §4.4: "at most 10 ... are lazily removed").
const MaxLazyExpire = 10

type nonceEntry struct {
	bytes   []byte
	faceid  uint64
	expiry  core.WrappedTime
	bucket  uint64
	ringPrev, ringNext *nonceEntry
}

// NonceTable deduplicates recently-seen Interest nonces (spec.md §4.4).
// It is hashed with xxhash for bucket lookup and threaded through a
// doubly-linked expiry ring (sentinel head) for O(1) amortized lazy
// eviction in FIFO order, since every entry has the same fixed lifetime.
type NonceTable struct {
	buckets  map[uint64][]*nonceEntry
	sentinel nonceEntry
}

// NewNonceTable builds an empty table.
func NewNonceTable() *NonceTable {
	nt := &NonceTable{buckets: make(map[uint64][]*nonceEntry)}
	nt.sentinel.ringNext = &nt.sentinel
	nt.sentinel.ringPrev = &nt.sentinel
	return nt
}

func (nt *NonceTable) ringAppend(e *nonceEntry) {
	tail := nt.sentinel.ringPrev
	e.ringPrev = tail
	e.ringNext = &nt.sentinel
	tail.ringNext = e
	nt.sentinel.ringPrev = e
}

func (nt *NonceTable) ringRemove(e *nonceEntry) {
	e.ringPrev.ringNext = e.ringNext
	e.ringNext.ringPrev = e.ringPrev
	e.ringPrev = nil
	e.ringNext = nil
}

func (nt *NonceTable) bucketRemove(e *nonceEntry) {
	list := nt.buckets[e.bucket]
	for i, x := range list {
		if x == e {
			nt.buckets[e.bucket] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(nt.buckets[e.bucket]) == 0 {
		delete(nt.buckets, e.bucket)
	}
}

// expireOldest lazily evicts up to MaxLazyExpire entries from the head of
// the ring that have already passed their expiry.
func (nt *NonceTable) expireOldest(now core.WrappedTime) {
	for i := 0; i < MaxLazyExpire; i++ {
		head := nt.sentinel.ringNext
		if head == &nt.sentinel {
			return
		}
		if !head.expiry.Before(now) {
			return
		}
		nt.ringRemove(head)
		nt.bucketRemove(head)
	}
}

func nonceKey(nonce []byte) uint64 {
	return xxhash.Sum64(nonce)
}

func (nt *NonceTable) find(bucket uint64, nonce []byte) *nonceEntry {
	for _, e := range nt.buckets[bucket] {
		if string(e.bytes) == string(nonce) {
			return e
		}
	}
	return nil
}

// Outcome classifies a nonce query per spec.md §4.4 step 5.
type Outcome int

const (
	OutcomeNew Outcome = iota
	OutcomeRefresh
	OutcomeDuplicate
)

// Query looks up nonce, lazily expiring stale head entries first, then
// either records it as new, recognizes it as a refresh from the same
// face, or flags it as a duplicate of an unexpired entry recorded from a
// different face (whether or not that face still exists).
func (nt *NonceTable) Query(nonce []byte, faceid uint64, now core.WrappedTime) Outcome {
	nt.expireOldest(now)

	bucket := nonceKey(nonce)
	if e := nt.find(bucket, nonce); e != nil {
		if e.expiry.Before(now) {
			// expired despite not yet reaching the ring head: treat as new.
			nt.ringRemove(e)
			nt.bucketRemove(e)
		} else if e.faceid == faceid {
			e.expiry = now.Add(core.DurationToTicks(NonceLifetime))
			return OutcomeRefresh
		} else {
			return OutcomeDuplicate
		}
	}

	e := &nonceEntry{
		bytes:  append([]byte{}, nonce...),
		faceid: faceid,
		expiry: now.Add(core.DurationToTicks(NonceLifetime)),
		bucket: bucket,
	}
	nt.buckets[bucket] = append(nt.buckets[bucket], e)
	nt.ringAppend(e)
	return OutcomeNew
}
