package physical

import (
	"bufio"
	"fmt"

	"github.com/tarm/serial"

	"dllink/protocol"
)

// TarmSerialChannel is an alternate serial backend behind the same
// Channel interface as BugstSerialChannel, so the demo can exercise both
// serial stacks the retrieval pack surfaced (--serial-driver bugst|tarm)
// without committing to a single one.
type TarmSerialChannel struct {
	port   *serial.Port
	reader *bufio.Reader
}

// OpenTarmSerial opens path at baud via github.com/tarm/serial.
func OpenTarmSerial(path string, baud int) (*TarmSerialChannel, error) {
	cfg := &serial.Config{Name: path, Baud: baud}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return &TarmSerialChannel{port: port, reader: bufio.NewReader(port)}, nil
}

func (c *TarmSerialChannel) Write(frame []byte) (int, error) {
	return c.port.Write(frame)
}

func (c *TarmSerialChannel) ReadFrame() ([]byte, error) {
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

func (c *TarmSerialChannel) Close() error {
	return c.port.Close()
}
