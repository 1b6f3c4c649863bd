package motion

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/rush_recorder/internal/wallclock"
)

// SerialSource reads an accelerometer that streams one reading per line over
// a serial port, e.g. a microcontroller printing "ax,ay,az" in g. Lines may
// carry a leading device counter ("millis,ax,ay,az"). Samples are always
// stamped on arrival with the host clock, since windows are measured against
// it. The device sets the cadence.
type SerialSource struct {
	portName string
	baudRate uint
	openPort func() (io.ReadWriteCloser, error)

	mu     sync.Mutex
	port   io.ReadWriteCloser
	rateHz float64
}

// NewSerialSource prepares a source on portName; the port is opened by Start.
func NewSerialSource(portName string, baudRate int) *SerialSource {
	s := &SerialSource{portName: portName, baudRate: uint(baudRate)}
	s.openPort = func() (io.ReadWriteCloser, error) {
		return serial.Open(serial.OpenOptions{
			PortName:              s.portName,
			BaudRate:              s.baudRate,
			DataBits:              8,
			StopBits:              1,
			MinimumReadSize:       1,
			ParityMode:            serial.PARITY_NONE,
			InterCharacterTimeout: 0,
		})
	}
	return s
}

// Available reports whether the serial device node exists.
func (s *SerialSource) Available() bool {
	if s.portName == "" {
		return false
	}
	_, err := os.Stat(s.portName)
	return err == nil
}

// Configure records the expected rate; the device itself decides the cadence.
func (s *SerialSource) Configure(rateHz float64) error {
	if intervalFor(rateHz) <= 0 {
		return fmt.Errorf("serial source: invalid sample rate %g Hz", rateHz)
	}
	s.mu.Lock()
	s.rateHz = rateHz
	s.mu.Unlock()
	return nil
}

func (s *SerialSource) Start(onSample func(Sample), onError func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port != nil {
		return ErrAlreadyStarted
	}

	port, err := s.openPort()
	if err != nil {
		return fmt.Errorf("%w: serial open %s: %v", ErrUnavailable, s.portName, err)
	}
	s.port = port
	log.Printf("serial: accelerometer stream opened on %s at %d baud (expecting %.0f Hz)",
		s.portName, s.baudRate, s.rateHz)

	go s.readLoop(port, onSample, onError)
	return nil
}

// Stop closes the port, which ends the read loop.
func (s *SerialSource) Stop() {
	s.mu.Lock()
	port := s.port
	s.port = nil
	s.mu.Unlock()

	if port != nil {
		if err := port.Close(); err != nil {
			log.Printf("serial: close %s: %v", s.portName, err)
		}
	}
}

func (s *SerialSource) readLoop(port io.ReadWriteCloser, onSample func(Sample), onError func(error)) {
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		sample, err := ParseLine(line, wallclock.NowMs())
		if err != nil {
			if onError != nil {
				onError(err)
			}
			continue
		}

		if !s.owns(port) {
			return
		}
		onSample(sample)
	}

	// A closed port after Stop is the normal way out.
	if err := scanner.Err(); err != nil && s.owns(port) && !errors.Is(err, os.ErrClosed) && onError != nil {
		onError(fmt.Errorf("serial read: %w", err))
	}
}

func (s *SerialSource) owns(port io.ReadWriteCloser) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port == port
}

// ParseLine parses "ax,ay,az" or "counter,ax,ay,az" into a sample stamped nowMs.
func ParseLine(line string, nowMs int64) (Sample, error) {
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	switch len(fields) {
	case 3:
	case 4:
		if _, err := strconv.ParseUint(fields[0], 10, 64); err != nil {
			return Sample{}, fmt.Errorf("serial line %q: counter: %w", line, err)
		}
		fields = fields[1:]
	default:
		return Sample{}, fmt.Errorf("serial line %q: want 3 or 4 fields, got %d", line, len(fields))
	}

	var axes [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Sample{}, fmt.Errorf("serial line %q: axis %d: %w", line, i, err)
		}
		axes[i] = v
	}
	return Sample{TimestampMs: nowMs, Ax: axes[0], Ay: axes[1], Az: axes[2]}, nil
}
