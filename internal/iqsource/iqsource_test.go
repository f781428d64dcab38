package iqsource

import (
	"context"
	"testing"
)

func TestBytesToIQNormalizesAroundZero(t *testing.T) {
	raw := []byte{127, 127, 255, 0}
	out := BytesToIQ(raw)
	if len(out) != 2 {
		t.Fatalf("got %d samples, want 2", len(out))
	}
	if real(out[0]) >= 0 || real(out[0]) < -0.01 {
		t.Errorf("sample 0 real = %v, want ~ -0.4/128", real(out[0]))
	}
}

func TestMockSourceReplaysScript(t *testing.T) {
	script := [][]complex64{{1, 2}, {3, 4}}
	m := NewMockSource(script)
	if err := m.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	ch, err := m.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var got int
	for range ch {
		got++
	}
	if got != len(script) {
		t.Errorf("got %d blocks, want %d", got, len(script))
	}
}

func TestDropCounterDropsOldestWhenFull(t *testing.T) {
	var dropped, lastCount int
	dc := NewDropCounter(func(n int) { dropped++; lastCount = n })
	ch := make(chan Block, 1)
	dc.Enqueue(ch, Block{SeqNum: 1, Samples: make([]complex64, 3)})
	dc.Enqueue(ch, Block{SeqNum: 2})
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if lastCount != 3 {
		t.Errorf("lastCount = %d, want 3 (the dropped block's sample count)", lastCount)
	}
	b := <-ch
	if b.SeqNum != 2 {
		t.Errorf("survived block seq = %d, want 2 (oldest dropped)", b.SeqNum)
	}
}
