// Package phy implements the physical/MAC-layer bit framing for each
// trunking family: sync-word search with error tolerance, slot/frame
// segmentation, FEC decoding via internal/fec, and CRC validation.
// Each variant yields validated ProtocolUnit records; only units with
// CRC ok reach internal/trunking, per spec.md §4.3/§4.4.
package phy

// ProtocolUnit is the validated output of the physical layer (spec.md §3).
type ProtocolUnit struct {
	ChannelKind string // P25 DUID name, DMR data-type name, TETRA logical channel, or "osw" for SmartNet
	Slot        int    // TDMA slot number, 0 for non-TDMA protocols
	FrameIndex  uint64
	Bits        []byte // 0/1 values, the validated payload (post-FEC)
	CRCOk       bool
	BEREstimate float64
}

// SyncState is the sync-lock state machine's two states (spec.md §4.3).
type SyncState int

const (
	Searching SyncState = iota
	Locked
)

// SyncLock implements the shared sync-lock state machine: slide a
// window across the bit buffer in SEARCHING, looking for any allowed
// sync pattern within the configured Hamming-distance tolerance; once
// LOCKED, re-verify at each frame boundary and revert after too many
// consecutive misses.
type SyncLock struct {
	Patterns          [][]byte
	ToleranceBits      int
	FrameBits          int
	MaxMissesBeforeDrop int

	state         SyncState
	consecutiveMiss int
	framesLocked    uint64
	OnSyncLost      func()
	OnSyncAcquired  func()
}

// NewSyncLock builds a sync-lock state machine for a set of allowed
// patterns (all must be the same bit length), a Hamming-distance
// tolerance, and the frame length in bits to skip once locked.
func NewSyncLock(patterns [][]byte, tolerance, frameBits int) *SyncLock {
	return &SyncLock{
		Patterns:            patterns,
		ToleranceBits:       tolerance,
		FrameBits:           frameBits,
		MaxMissesBeforeDrop: 10,
		state:               Searching,
	}
}

func (s *SyncLock) State() SyncState { return s.state }

func (s *SyncLock) FramesLocked() uint64 { return s.framesLocked }

// Search slides a window the width of the sync pattern across buf,
// returning the index immediately after the first matching window and
// true if found, transitioning to LOCKED. The caller is responsible
// for discarding bits preceding the match, per spec.md §4.3.
func (s *SyncLock) Search(buf []byte) (afterSyncIdx int, found bool) {
	if len(s.Patterns) == 0 {
		return 0, false
	}
	patLen := len(s.Patterns[0])
	for start := 0; start+patLen <= len(buf); start++ {
		window := buf[start : start+patLen]
		if dist, ok := s.bestMatch(window); ok && dist <= s.ToleranceBits {
			s.state = Locked
			s.consecutiveMiss = 0
			s.framesLocked = 0
			if s.OnSyncAcquired != nil {
				s.OnSyncAcquired()
			}
			return start + patLen, true
		}
	}
	return 0, false
}

// VerifyAtBoundary re-checks sync at the expected frame boundary while
// LOCKED; on repeated failure it reverts to SEARCHING.
func (s *SyncLock) VerifyAtBoundary(window []byte) (ok bool) {
	if dist, found := s.bestMatch(window); found && dist <= s.ToleranceBits {
		s.consecutiveMiss = 0
		s.framesLocked++
		return true
	}
	s.consecutiveMiss++
	s.framesLocked++
	if s.consecutiveMiss > s.MaxMissesBeforeDrop {
		s.state = Searching
		s.consecutiveMiss = 0
		if s.OnSyncLost != nil {
			s.OnSyncLost()
		}
	}
	return false
}

func (s *SyncLock) bestMatch(window []byte) (minDist int, ok bool) {
	minDist = len(window) + 1
	for _, pat := range s.Patterns {
		if len(pat) != len(window) {
			continue
		}
		d := hammingDistance(pat, window)
		if d < minDist {
			minDist = d
		}
		ok = true
	}
	return minDist, ok
}

func hammingDistance(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	dist := 0
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			dist++
		}
	}
	return dist
}
