package motion

import (
	"fmt"
	"log"

	"github.com/relabs-tech/rush_recorder/internal/config"
)

// Open builds the source selected by cfg.SensorSource, wrapped with the
// accelerometer calibration when one is configured.
func Open(cfg *config.Config) (Source, error) {
	var src Source
	switch cfg.SensorSource {
	case config.SourceMock, "":
		log.Println("motion: using mock accelerometer source")
		src = NewMockSource()
	case config.SourceMPU9250:
		log.Printf("motion: using MPU9250 on %s", cfg.IMUSPIDevice)
		src = NewIMUSource(cfg.IMUSPIDevice, cfg.IMUCSPin, cfg.IMUAccelRange)
	case config.SourceSerial:
		log.Printf("motion: using serial accelerometer on %s", cfg.SerialPort)
		src = NewSerialSource(cfg.SerialPort, cfg.SerialBaudRate)
	default:
		return nil, fmt.Errorf("motion: unknown sensor source %q", cfg.SensorSource)
	}

	if cfg.AccelCalibrationFile == "" {
		return src, nil
	}
	cal, err := LoadCalibration(cfg.AccelCalibrationFile)
	if err != nil {
		return nil, err
	}
	log.Printf("motion: applying accelerometer calibration from %s (bias %+.3f/%+.3f/%+.3f g)",
		cfg.AccelCalibrationFile, cal.AccelBias.X, cal.AccelBias.Y, cal.AccelBias.Z)
	return Calibrated(src, cal), nil
}
