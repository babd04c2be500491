package physical

import (
	"bufio"
	"io"
	"math/rand"
	"sync"

	"dllink/protocol"
)

// LossySimChannel pairs two in-process half-duplex pipes (io.Pipe) into a
// full-duplex Channel and perturbs writes per configured rates: this is
// the physical-layer simulator a demo needs to exercise the engine's loss
// recovery end to end, grounded in style on the teacher's own UDP
// loopback handling in source/server/server.go's listen()/Update() loop
// (a read loop feeding a handler), adapted from sockets to an in-memory
// byte pipe pair.
type LossySimChannel struct {
	writeSide io.WriteCloser
	readSide  *bufio.Reader
	readCloser io.Closer

	mu        sync.Mutex
	rng       *rand.Rand
	lossRate  float64
	corruptRate float64
	dupRate   float64
}

// newLossySimChannel constructs one direction's worth of simulated wire:
// call it twice and cross-wire each side's write pipe into the other's
// read pipe to get a full-duplex pair (see NewSimPair).
func newLossySimChannel(w io.WriteCloser, r io.ReadCloser, seed int64, lossRate, corruptRate, dupRate float64) *LossySimChannel {
	return &LossySimChannel{
		writeSide:   w,
		readSide:    bufio.NewReader(r),
		readCloser:  r,
		rng:         rand.New(rand.NewSource(seed)),
		lossRate:    lossRate,
		corruptRate: corruptRate,
		dupRate:     dupRate,
	}
}

// SimPair is a connected pair of LossySimChannel endpoints: writes on A
// are perturbed and delivered to B's ReadFrame, and vice versa.
type SimPair struct {
	A, B *LossySimChannel
}

// NewSimPair builds a full-duplex simulated link. lossRate/corruptRate
// apply independently to each direction's writes; dupRate duplicates a
// frame with the given probability.
func NewSimPair(seed int64, lossRate, corruptRate, dupRate float64) *SimPair {
	arOut, bwIn := io.Pipe()
	brOut, awIn := io.Pipe()

	a := newLossySimChannel(awIn, arOut, seed, lossRate, corruptRate, dupRate)
	b := newLossySimChannel(bwIn, brOut, seed+1, lossRate, corruptRate, dupRate)
	return &SimPair{A: a, B: b}
}

// Write perturbs and forwards a single encoded frame. It never returns a
// perturbation as an error: silent loss/corruption is the point of the
// simulator.
func (c *LossySimChannel) Write(frame []byte) (int, error) {
	c.mu.Lock()
	roll := c.rng.Float64()
	dup := c.rng.Float64() < c.dupRate
	corrupt := c.rng.Float64() < c.corruptRate
	c.mu.Unlock()

	if roll < c.lossRate {
		return len(frame), nil
	}

	out := frame
	if corrupt && len(out) > 2 {
		out = append([]byte(nil), out...)
		out[len(out)/2] ^= 0xFF
	}

	if _, err := c.writeSide.Write(out); err != nil {
		return 0, err
	}
	if dup {
		c.writeSide.Write(out)
	}
	return len(frame), nil
}

// ReadFrame reads up to and including the next FLAG byte after an
// initial FLAG, returning one complete wire frame. Bit stuffing
// guarantees FLAG never appears mid-frame (protocol.Stuff escapes it),
// so scanning for the delimiter is sufficient framing.
func (c *LossySimChannel) ReadFrame() ([]byte, error) {
	if _, err := c.readSide.ReadBytes(protocol.FLAG); err != nil {
		return nil, err
	}
	rest, err := c.readSide.ReadBytes(protocol.FLAG)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(rest)+1)
	out = append(out, protocol.FLAG)
	out = append(out, rest...)
	return out, nil
}

// Close closes both the write side and our end of the read pipe.
func (c *LossySimChannel) Close() error {
	werr := c.writeSide.Close()
	rerr := c.readCloser.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
