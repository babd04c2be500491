package physical

import (
	"bufio"
	"fmt"

	"go.bug.st/serial"

	"dllink/protocol"
)

// BugstSerialChannel binds the physical layer to a real serial port via
// go.bug.st/serial, giving the "opaque tx/rx physical layer" of the spec
// a genuine byte-channel implementation alongside the in-process
// simulator.
type BugstSerialChannel struct {
	port   serial.Port
	reader *bufio.Reader
}

// OpenBugstSerial opens path at baud, 8N1, and wraps it as a Channel.
func OpenBugstSerial(path string, baud int) (*BugstSerialChannel, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return &BugstSerialChannel{port: port, reader: bufio.NewReader(port)}, nil
}

func (c *BugstSerialChannel) Write(frame []byte) (int, error) {
	return c.port.Write(frame)
}

func (c *BugstSerialChannel) ReadFrame() ([]byte, error) {
	if _, err := c.reader.ReadBytes(protocol.FLAG); err != nil {
		return nil, err
	}
	rest, err := c.reader.ReadBytes(protocol.FLAG)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(rest)+1)
	out = append(out, protocol.FLAG)
	out = append(out, rest...)
	return out, nil
}

func (c *BugstSerialChannel) Close() error {
	return c.port.Close()
}
