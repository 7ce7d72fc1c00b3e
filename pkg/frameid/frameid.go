// Package frameid derives protocol-safe frame identifiers.
//
// An identifier is the highwayhash of (thread id, depth, pc) folded into the
// positive 31-bit range, so the same native frame maps to the same id on every
// request while the thread stays stopped. The Allocator remembers which key
// owns which id and linearly probes past ids already owned by another key,
// which keeps ids unique across all threads queried during one stop.
package frameid

import (
	"encoding/binary"
	"math"

	"github.com/minio/highwayhash"
)

// DefaultCapacity bounds the number of remembered assignments before the
// table is dropped.
const DefaultCapacity = 1 << 16

// maxID keeps identifiers within a signed 32-bit integer, which is what most
// DAP clients store frame ids in.
const maxID = math.MaxInt32

var hashKey = [32]byte{
	0x64, 0x61, 0x70, 0x62, 0x72, 0x69, 0x64, 0x67,
	0x65, 0x2d, 0x66, 0x72, 0x61, 0x6d, 0x65, 0x2d,
	0x69, 0x64, 0x2d, 0x6b, 0x65, 0x79, 0x2d, 0x76,
	0x31, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

type key struct {
	thread int
	depth  int
	pc     uint64
}

// Allocator assigns frame identifiers. It is not safe for concurrent use;
// it is owned by the affinity executor like the engine itself.
type Allocator struct {
	capacity int
	byKey    map[key]int
	byID     map[int]key
}

// New returns an allocator that forgets its assignments once it holds
// capacity of them. capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Allocator {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	a := &Allocator{capacity: capacity}
	a.Reset()
	return a
}

// ID returns the identifier of the frame at depth (0 = innermost) of thread
// whose program counter is pc.
func (a *Allocator) ID(thread, depth int, pc uint64) int {
	k := key{thread: thread, depth: depth, pc: pc}
	if id, ok := a.byKey[k]; ok {
		return id
	}
	id := Hash(thread, depth, pc)
	for {
		if _, taken := a.byID[id]; !taken {
			break
		}
		id++
		if id > maxID {
			id = 1
		}
	}
	a.byKey[k] = id
	a.byID[id] = k
	return id
}

// Trim forgets every assignment once the table holds capacity of them. It
// must only be called between responses; ID never drops assignments, so ids
// within one response stay distinct.
func (a *Allocator) Trim() {
	if len(a.byKey) >= a.capacity {
		a.Reset()
	}
}

// Len reports how many assignments are remembered.
func (a *Allocator) Len() int {
	return len(a.byKey)
}

// Reset forgets every assignment. Call it when the debuggee resumes, since
// the frames of the previous stop are gone.
func (a *Allocator) Reset() {
	a.byKey = make(map[key]int)
	a.byID = make(map[int]key)
}

// Hash is the probe-free identifier of a frame, always in [1, MaxInt32].
func Hash(thread, depth int, pc uint64) int {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(int64(thread)))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(int64(depth)))
	binary.LittleEndian.PutUint64(buf[16:24], pc)
	sum := highwayhash.Sum64(buf[:], hashKey[:])
	return int(sum%maxID) + 1
}
