package protocol

import "testing"

func TestSendWindowBound(t *testing.T) {
	w := NewSendWindow(8)
	sent := 0
	for {
		if _, ok := w.AcquireSeq(); !ok {
			break
		}
		sent++
		if sent > 100 {
			t.Fatal("window never reported full")
		}
	}
	if sent != 8 {
		t.Errorf("acquired %d seqs before full, want 8", sent)
	}
	if w.Outstanding() > w.WindowSize() {
		t.Errorf("outstanding = %d exceeds window size %d", w.Outstanding(), w.WindowSize())
	}
}

func TestSendWindowCumulativeAck(t *testing.T) {
	w := NewSendWindow(8)
	for i := 0; i < 5; i++ {
		w.AcquireSeq()
	}
	slid, oldBase, newBase, dist := w.OnAck(2)
	if !slid {
		t.Fatal("expected slide")
	}
	if oldBase != 0 || newBase != 3 || dist != 3 {
		t.Errorf("oldBase=%d newBase=%d dist=%d, want 0,3,3", oldBase, newBase, dist)
	}
	if w.SendBase() != 3 {
		t.Errorf("SendBase = %d, want 3", w.SendBase())
	}
}

func TestSendWindowDuplicateAckIgnored(t *testing.T) {
	w := NewSendWindow(8)
	for i := 0; i < 5; i++ {
		w.AcquireSeq()
	}
	w.OnAck(2)
	slid, _, _, _ := w.OnAck(1) // behind send_base now
	if slid {
		t.Error("expected duplicate ACK to be ignored")
	}
	if w.SendBase() != 3 {
		t.Errorf("SendBase regressed to %d", w.SendBase())
	}
}

func TestSendWindowOutOfWindowAckIgnored(t *testing.T) {
	w := NewSendWindow(4)
	for i := 0; i < 4; i++ {
		w.AcquireSeq()
	}
	slid, _, _, _ := w.OnAck(6)
	if slid {
		t.Error("expected out-of-window ACK to be ignored")
	}
}

func TestRecvWindowInOrderDelivery(t *testing.T) {
	r := NewRecvWindow(8)
	outcome, delivered := r.OnFrame(0, []byte("a"))
	if outcome != OutcomeDelivered || len(delivered) != 1 || delivered[0].Seq != 0 {
		t.Fatalf("unexpected outcome %v / %v", outcome, delivered)
	}
	if r.ExpectedSeq() != 1 {
		t.Errorf("expected_seq = %d, want 1", r.ExpectedSeq())
	}
}

func TestRecvWindowOutOfOrderBufferThenFlush(t *testing.T) {
	r := NewRecvWindow(8)

	outcome, delivered := r.OnFrame(1, []byte("b"))
	if outcome != OutcomeBuffered || delivered != nil {
		t.Fatalf("seq 1 should buffer, got %v", outcome)
	}
	outcome, delivered = r.OnFrame(2, []byte("c"))
	if outcome != OutcomeBuffered || delivered != nil {
		t.Fatalf("seq 2 should buffer, got %v", outcome)
	}

	outcome, delivered = r.OnFrame(0, []byte("a"))
	if outcome != OutcomeDelivered {
		t.Fatalf("seq 0 should deliver, got %v", outcome)
	}
	want := []byte{0, 1, 2}
	if len(delivered) != 3 {
		t.Fatalf("delivered %d frames, want 3", len(delivered))
	}
	for i, d := range delivered {
		if d.Seq != want[i] {
			t.Errorf("delivered[%d].Seq = %d, want %d", i, d.Seq, want[i])
		}
	}
	if r.ExpectedSeq() != 3 {
		t.Errorf("expected_seq = %d, want 3", r.ExpectedSeq())
	}
}

func TestRecvWindowDuplicateIsReAcked(t *testing.T) {
	r := NewRecvWindow(8)
	r.OnFrame(0, []byte("a"))
	outcome, _ := r.OnFrame(0, []byte("a"))
	if outcome != OutcomeDuplicate {
		t.Errorf("expected Duplicate, got %v", outcome)
	}
}

func TestRecvWindowOutOfWindowIgnored(t *testing.T) {
	r := NewRecvWindow(4)
	outcome, _ := r.OnFrame(6, []byte("x"))
	if outcome != OutcomeOutOfWindow {
		t.Errorf("expected OutOfWindow, got %v", outcome)
	}
}

func TestWrapAround(t *testing.T) {
	r := NewRecvWindow(8)
	var seen []uint8
	for i := 0; i < 17; i++ {
		seq := uint8(i % 16)
		_, delivered := r.OnFrame(seq, []byte{byte(i)})
		for _, d := range delivered {
			seen = append(seen, d.Seq)
		}
	}
	if len(seen) != 17 {
		t.Fatalf("delivered %d frames, want 17", len(seen))
	}
	for i, s := range seen {
		want := uint8(i % 16)
		if s != want {
			t.Errorf("seen[%d] = %d, want %d", i, s, want)
		}
	}
}

func TestAdjustWindowHint(t *testing.T) {
	if got := AdjustWindowHint(8, 50, 0.1); got != 4 {
		t.Errorf("high loss should halve: got %d, want 4", got)
	}
	if got := AdjustWindowHint(8, 50, 0.02); got != 7 {
		t.Errorf("moderate loss should shrink by 1: got %d, want 7", got)
	}
	if got := AdjustWindowHint(4, 50, 0.0001); got != 5 {
		t.Errorf("healthy link should grow by 1: got %d, want 5", got)
	}
	if got := AdjustWindowHint(8, 50, 0.0001); got != 8 {
		t.Errorf("growth should cap at 8: got %d, want 8", got)
	}
	if got := AdjustWindowHint(1, 500, 0.2); got != 1 {
		t.Errorf("halving should floor at 1: got %d, want 1", got)
	}
}
