// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// MPU9250 registers used by the accelerometer path.
const (
	regAccelConfig  = 0x1C // ACCEL_FS_SEL in bits 4:3
	regAccelConfig2 = 0x1D // A_DLPFCFG in bits 2:0
	regAccelXoutH   = 0x3B // ACCEL_XOUT_H .. ACCEL_ZOUT_L, 6 bytes big endian
	regUserCtrl     = 0x6A
	regPwrMgmt1     = 0x6B
	regWhoAmI       = 0x75

	spiReadFlag = 0x80

	userCtrlI2CIFDis = 0x10 // SPI only
	pwrMgmtClkAuto   = 0x01 // wake, best available clock
	accelDLPF41Hz    = 0x03
)

// knownChipIDs maps WHO_AM_I values to part names.
var knownChipIDs = map[byte]string{
	0x71: "MPU9250",
	0x73: "MPU9255",
	0x70: "MPU6500",
}

// accelCountsPerG indexed by ACCEL_FS_SEL: ±2g, ±4g, ±8g, ±16g.
var accelCountsPerG = [4]float64{16384, 8192, 4096, 2048}

// IMUSource reads the accelerometer of an MPU9250 over SPI.
type IMUSource struct {
	spiDev     string
	csPin      string
	accelRange byte

	openOnce sync.Once
	openErr  error
	dev      *mpuDevice

	mu       sync.Mutex
	interval time.Duration
	stream   *stream
}

// NewIMUSource prepares an MPU9250 source. The device is opened on first use.
// csPin names a GPIO used as manual chip select; empty lets the SPI driver
// handle CS.
func NewIMUSource(spiDev, csPin string, accelRange byte) *IMUSource {
	return &IMUSource{
		spiDev:     spiDev,
		csPin:      csPin,
		accelRange: accelRange & 0x03,
		interval:   intervalFor(20),
	}
}

// newIMUSourceConn builds a source over an already connected SPI conn.
func newIMUSourceConn(c spi.Conn, cs gpio.PinOut, accelRange byte) *IMUSource {
	s := &IMUSource{accelRange: accelRange & 0x03, interval: intervalFor(20)}
	s.openOnce.Do(func() {
		dev := &mpuDevice{conn: c, cs: cs}
		if err := dev.init(s.accelRange); err != nil {
			s.openErr = err
			return
		}
		s.dev = dev
	})
	return s
}

// Available opens and probes the device once and reports whether it answered
// with a known chip ID.
func (s *IMUSource) Available() bool {
	s.openOnce.Do(func() {
		s.dev, s.openErr = s.open()
		if s.openErr != nil {
			log.Printf("mpu9250: unavailable: %v", s.openErr)
		}
	})
	return s.openErr == nil
}

func (s *IMUSource) open() (*mpuDevice, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	port, err := spireg.Open(s.spiDev)
	if err != nil {
		return nil, fmt.Errorf("SPI open (%s): %w", s.spiDev, err)
	}

	mode := spi.Mode3
	var cs gpio.PinOut
	if s.csPin != "" {
		pin := gpioreg.ByName(s.csPin)
		if pin == nil {
			port.Close()
			return nil, fmt.Errorf("CS pin %q not found", s.csPin)
		}
		if err := pin.Out(gpio.High); err != nil {
			port.Close()
			return nil, fmt.Errorf("CS pin %q: %w", s.csPin, err)
		}
		cs = pin
		mode |= spi.NoCS
	}

	c, err := port.Connect(1*physic.MegaHertz, mode, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("SPI connect (%s): %w", s.spiDev, err)
	}

	dev := &mpuDevice{conn: c, cs: cs}
	if err := dev.init(s.accelRange); err != nil {
		port.Close()
		return nil, err
	}
	log.Printf("mpu9250: %s ready on %s, accelerometer range ±%dg",
		dev.part, s.spiDev, []int{2, 4, 8, 16}[s.accelRange])
	return dev, nil
}

func (s *IMUSource) Configure(rateHz float64) error {
	interval := intervalFor(rateHz)
	if interval <= 0 {
		return fmt.Errorf("mpu9250: invalid sample rate %g Hz", rateHz)
	}
	s.mu.Lock()
	s.interval = interval
	s.mu.Unlock()
	return nil
}

func (s *IMUSource) Start(onSample func(Sample), onError func(error)) error {
	if !s.Available() {
		return fmt.Errorf("%w: %v", ErrUnavailable, s.openErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return ErrAlreadyStarted
	}
	s.stream = startStream(s.interval, s.read, onSample, onError)
	return nil
}

func (s *IMUSource) Stop() {
	s.mu.Lock()
	st := s.stream
	s.stream = nil
	s.mu.Unlock()

	if st != nil {
		st.Stop()
	}
}

func (s *IMUSource) read(now time.Time) (Sample, error) {
	x, y, z, err := s.dev.readAccel()
	if err != nil {
		return Sample{}, fmt.Errorf("mpu9250 accel: %w", err)
	}
	return Sample{TimestampMs: now.UnixMilli(), Ax: x, Ay: y, Az: z}, nil
}

// mpuDevice is register-level access to one MPU9250.
type mpuDevice struct {
	mu         sync.Mutex
	conn       spi.Conn
	cs         gpio.PinOut // nil when the driver handles CS
	part       string
	countsPerG float64
}

func (d *mpuDevice) init(accelRange byte) error {
	id, err := d.readReg(regWhoAmI, 1)
	if err != nil {
		return fmt.Errorf("WHO_AM_I: %w", err)
	}
	part, ok := knownChipIDs[id[0]]
	if !ok {
		return fmt.Errorf("unexpected WHO_AM_I 0x%02X", id[0])
	}
	d.part = part

	writes := []struct{ reg, val byte }{
		{regPwrMgmt1, pwrMgmtClkAuto},
		{regUserCtrl, userCtrlI2CIFDis},
		{regAccelConfig, (accelRange & 0x03) << 3},
		{regAccelConfig2, accelDLPF41Hz},
	}
	for _, w := range writes {
		if err := d.writeReg(w.reg, w.val); err != nil {
			return fmt.Errorf("write 0x%02X: %w", w.reg, err)
		}
	}

	cfg, err := d.readReg(regAccelConfig, 1)
	if err != nil {
		return fmt.Errorf("ACCEL_CONFIG readback: %w", err)
	}
	fsSel := (cfg[0] >> 3) & 0x03
	if fsSel != accelRange&0x03 {
		return fmt.Errorf("ACCEL_CONFIG readback: range %d, want %d", fsSel, accelRange&0x03)
	}
	d.countsPerG = accelCountsPerG[fsSel]
	return nil
}

func (d *mpuDevice) readAccel() (x, y, z float64, err error) {
	b, err := d.readReg(regAccelXoutH, 6)
	if err != nil {
		return 0, 0, 0, err
	}
	ax := int16(binary.BigEndian.Uint16(b[0:2]))
	ay := int16(binary.BigEndian.Uint16(b[2:4]))
	az := int16(binary.BigEndian.Uint16(b[4:6]))
	return float64(ax) / d.countsPerG, float64(ay) / d.countsPerG, float64(az) / d.countsPerG, nil
}

func (d *mpuDevice) readReg(reg byte, n int) ([]byte, error) {
	w := make([]byte, n+1)
	r := make([]byte, n+1)
	w[0] = reg | spiReadFlag
	if err := d.tx(w, r); err != nil {
		return nil, err
	}
	return r[1:], nil
}

func (d *mpuDevice) writeReg(reg, val byte) error {
	w := []byte{reg &^ spiReadFlag, val}
	return d.tx(w, make([]byte, len(w)))
}

func (d *mpuDevice) tx(w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cs != nil {
		if err := d.cs.Out(gpio.Low); err != nil {
			return err
		}
		defer d.cs.Out(gpio.High)
	}
	return d.conn.Tx(w, r)
}
