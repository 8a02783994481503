// internal/pipeline/dedupe.go
package pipeline

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type logKey struct {
	txHash   common.Hash
	logIndex uint
}

// Dedupe tracks (transactionHash, logIndex) pairs already delivered.
// Delivery across the WS/polling boundary is at-least-once, so duplicates
// are expected and must collapse to one downstream transition. Capacity is
// bounded; the oldest keys are evicted FIFO.
type Dedupe struct {
	mu    sync.Mutex
	seen  map[logKey]struct{}
	order []logKey
	cap   int
}

func NewDedupe(capacity int) *Dedupe {
	if capacity <= 0 {
		capacity = 8192
	}
	return &Dedupe{
		seen: make(map[logKey]struct{}, capacity),
		cap:  capacity,
	}
}

// Contains reports whether the pair was already recorded.
func (d *Dedupe) Contains(txHash common.Hash, logIndex uint) bool {
	k := logKey{txHash: txHash, logIndex: logIndex}

	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[k]
	return ok
}

// Mark records the pair, evicting the oldest key once capacity is reached.
// Marking happens only after the pair's event was actually delivered, so a
// failed delivery stays eligible for replay.
func (d *Dedupe) Mark(txHash common.Hash, logIndex uint) {
	k := logKey{txHash: txHash, logIndex: logIndex}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[k]; ok {
		return
	}
	if len(d.order) >= d.cap {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	d.seen[k] = struct{}{}
	d.order = append(d.order, k)
}

// Len reports the number of tracked keys.
func (d *Dedupe) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
