package main

import (
	"bufio"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/autoscalehub/autoscale/pkg/adc"
	"github.com/autoscalehub/autoscale/pkg/calibration"
	"github.com/autoscalehub/autoscale/pkg/capture"
	"github.com/autoscalehub/autoscale/pkg/logging"
	"github.com/autoscalehub/autoscale/pkg/serialcli"
	"github.com/autoscalehub/autoscale/pkg/transport"
)

var (
	ingestURL      string
	functionSecret string
	deviceID       string
	serialPort     string
	version        = "dev"
)

var rootCmd = &cobra.Command{
	Use:     "scale-firmware",
	Short:   "Load-cell scale firmware",
	Long:    `scale-firmware runs the event-capture state machine against an ADC (real over --serial-port, or a built-in simulator), uploading captured events to an ingest endpoint, with a serial console for calibration.`,
	Version: version,
	RunE:    runSimulate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&ingestURL, "ingest-url", "http://localhost:8080", "ingest endpoint URL")
	rootCmd.PersistentFlags().StringVar(&functionSecret, "secret", "", "shared secret for the ingest endpoint")
	rootCmd.PersistentFlags().StringVar(&deviceID, "device-id", "sim-scale-1", "device identifier to report")
	rootCmd.PersistentFlags().StringVar(&serialPort, "serial-port", "", "real ADC serial device (e.g. /dev/ttyUSB0); empty uses the built-in simulator")
}

// simReader is a live adc.Reader generating a synthetic raw-count trace:
// idle noise around zero, punctuated by periodic weighing events. Used
// in place of real hardware when --serial-port is not set.
type simReader struct {
	mu       sync.Mutex
	t        time.Time
	loadedAt time.Time
	loaded   bool
	offset   int32
	scale    float32
}

func newSimReader() *simReader {
	return &simReader{t: time.Now(), scale: 1}
}

func (s *simReader) IsReady() bool { return true }

func (s *simReader) ReadRaw() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if !s.loaded && now.Sub(s.t) > 15*time.Second {
		s.loaded = true
		s.loadedAt = now
	}
	if s.loaded && now.Sub(s.loadedAt) > 8*time.Second {
		s.loaded = false
		s.t = now
	}
	if s.loaded {
		return int32(2100000 + 20000*rand.NormFloat64())
	}
	return int32(1000 * rand.NormFloat64())
}

func (s *simReader) SetOffset(o int32) {
	s.mu.Lock()
	s.offset = o
	s.mu.Unlock()
}

func (s *simReader) SetScale(sc float32) {
	s.mu.Lock()
	s.scale = sc
	s.mu.Unlock()
}

func runSimulate(cmd *cobra.Command, args []string) error {
	log := logging.New(logging.Config{Level: logging.LevelInfo, Format: logging.FormatText})

	reader, err := openReader()
	if err != nil {
		return err
	}
	if closer, ok := reader.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	engine := calibration.New(reader, &calibration.MemStore{}, nil)
	tr := transport.NewHTTPTransport(ingestURL, functionSecret)
	machine := capture.New(capture.DefaultConfig(), tr, nil, deviceID)

	cli := serialcli.New(engine, func() int32 {
		if !reader.IsReady() {
			return 0
		}
		return reader.ReadRaw()
	})
	go runSerialConsole(cli)

	ticker := time.NewTicker(capture.DefaultConfig().IdlePoll)
	defer ticker.Stop()

	log.With("ingest_url", ingestURL).With("device_id", deviceID).Info("scale-firmware started")

	for range ticker.C {
		if !reader.IsReady() {
			continue
		}
		kg := engine.Convert(reader.ReadRaw())
		if event := machine.Tick(kg); event != nil {
			log.With("sample_count", event.SampleCount).With("peak_kg", roundKg(event.PeakKg)).Info("event captured and submitted")
		}
	}
	return nil
}

// openReader returns a real adc.SerialReader when --serial-port is set,
// or the built-in live simulator otherwise.
func openReader() (adc.Reader, error) {
	if serialPort != "" {
		r, err := adc.OpenSerialReader(serialPort, 115200)
		if err != nil {
			return nil, fmt.Errorf("open serial port %s: %w", serialPort, err)
		}
		return r, nil
	}
	return newSimReader(), nil
}

func runSerialConsole(cli *serialcli.CLI) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fmt.Println(cli.Handle(scanner.Text()))
	}
}

func roundKg(kg float64) float64 {
	return math.Round(kg*100) / 100
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
