package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/relabs-tech/rush_recorder/internal/config"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader("INGEST_URL=http://172.20.10.3:8000/ingest\n"))
	require.NoError(t, err)

	require.Equal(t, 5*time.Second, cfg.WindowDuration)
	require.Equal(t, 6*time.Second, cfg.RequestTimeout())
	require.InDelta(t, 20.0, cfg.SampleRateHz, 1e-9)
	require.Equal(t, config.SourceMock, cfg.SensorSource)
	require.Equal(t, 0, cfg.MaxInFlight)
	require.Equal(t, 101, cfg.ExpectedSamplesPerWindow())
}

func TestParseFullFile(t *testing.T) {
	src := `
# classifier
INGEST_URL = http://localhost:8000/ingest
WINDOW_DURATION=PT10S
REQUEST_TIMEOUT_MARGIN=PT2.5S
MAX_IN_FLIGHT=3

SAMPLE_RATE_HZ=50
SENSOR_SOURCE=mpu9250
IMU_SPI_DEVICE=/dev/spidev6.0
IMU_CS_PIN=18
IMU_ACCEL_RANGE=1
AUTO_START=true

MQTT_BROKER=tcp://localhost:1883
TOPIC_STATUS=rush/status
WEB_SERVER_PORT=9090
`
	cfg, err := config.Parse(strings.NewReader(src))
	require.NoError(t, err)

	require.Equal(t, 10*time.Second, cfg.WindowDuration)
	require.Equal(t, 12500*time.Millisecond, cfg.RequestTimeout())
	require.Equal(t, 3, cfg.MaxInFlight)
	require.InDelta(t, 50.0, cfg.SampleRateHz, 1e-9)
	require.Equal(t, config.SourceMPU9250, cfg.SensorSource)
	require.Equal(t, "/dev/spidev6.0", cfg.IMUSPIDevice)
	require.Equal(t, "18", cfg.IMUCSPin)
	require.Equal(t, byte(1), cfg.IMUAccelRange)
	require.True(t, cfg.AutoStart)
	require.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	require.Equal(t, 9090, cfg.WebServerPort)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"missing url":     "SAMPLE_RATE_HZ=20\n",
		"relative url":    "INGEST_URL=/ingest\n",
		"unknown key":     "INGEST_URL=http://h/i\nFOO=bar\n",
		"no equals":       "INGEST_URL=http://h/i\njust-text\n",
		"bad duration":    "INGEST_URL=http://h/i\nWINDOW_DURATION=5s\n",
		"zero duration":   "INGEST_URL=http://h/i\nWINDOW_DURATION=PT0S\n",
		"bad range":       "INGEST_URL=http://h/i\nIMU_ACCEL_RANGE=4\n",
		"bad source":      "INGEST_URL=http://h/i\nSENSOR_SOURCE=gps\n",
		"negative cap":    "INGEST_URL=http://h/i\nMAX_IN_FLIGHT=-1\n",
		"serial no port":  "INGEST_URL=http://h/i\nSENSOR_SOURCE=serial\n",
		"rate zero":       "INGEST_URL=http://h/i\nSAMPLE_RATE_HZ=0\n",
		"status no topic": "INGEST_URL=http://h/i\nMQTT_BROKER=tcp://b:1883\nTOPIC_STATUS=\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Parse(strings.NewReader(src))
			require.Error(t, err)
		})
	}
}

func TestLoadAndGlobal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rush_config.txt")
	require.NoError(t, os.WriteFile(path, []byte("INGEST_URL=http://localhost:8000/ingest\n"), 0o600))

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)

	require.NoError(t, config.InitGlobal(path))
	require.NotNil(t, config.Get())
	require.Equal(t, "http://localhost:8000/ingest", config.Get().IngestURL)
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "..", "rush_config.txt"))
	require.NoError(t, err)

	require.Equal(t, config.SourceMock, cfg.SensorSource)
	require.Equal(t, 6*time.Second, cfg.RequestTimeout())
	require.Equal(t, byte(1), cfg.IMUAccelRange)
	require.Equal(t, 101, cfg.ExpectedSamplesPerWindow())
	require.Empty(t, cfg.WebRoot)
}
