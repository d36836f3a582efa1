package adc

import (
	"bufio"
	"errors"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/tarm/serial"
)

// SerialReader is a Reader backed by a real ADC board speaking a
// line-oriented protocol over a serial port: each line is a decimal
// raw count, e.g. "8421903\n". A background goroutine keeps the most
// recent parsed value so ReadRaw never blocks on serial I/O.
type SerialReader struct {
	port *serial.Port

	mu      sync.Mutex
	last    int32
	ready   bool
	offset  int32
	scale   float32
}

// OpenSerialReader opens dev (or a platform default if dev is empty)
// at baud and starts the background line reader.
func OpenSerialReader(dev string, baud int) (*SerialReader, error) {
	var devices []string
	if dev != "" {
		devices = append(devices, dev)
	} else {
		switch runtime.GOOS {
		case "windows":
			devices = append(devices, "COM3")
		case "linux":
			devices = append(devices, "/dev/ttyUSB0", "/dev/ttyACM0")
		case "darwin":
			devices = append(devices, "/dev/tty.usbserial")
		}
	}
	if len(devices) == 0 {
		return nil, errors.New("adc: no serial device specified")
	}

	var firstErr error
	for _, d := range devices {
		p, err := serial.OpenPort(&serial.Config{Name: d, Baud: baud})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		r := &SerialReader{port: p, scale: 1}
		go r.readLoop()
		return r, nil
	}
	return nil, firstErr
}

func (r *SerialReader) readLoop() {
	scanner := bufio.NewScanner(r.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseInt(line, 10, 32)
		if err != nil {
			continue
		}
		r.mu.Lock()
		r.last = int32(v)
		r.ready = true
		r.mu.Unlock()
	}
}

func (r *SerialReader) IsReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

func (r *SerialReader) ReadRaw() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		panic("adc: read_raw called while not ready")
	}
	return r.last
}

func (r *SerialReader) SetOffset(o int32) {
	r.mu.Lock()
	r.offset = o
	r.mu.Unlock()
}

func (r *SerialReader) SetScale(s float32) {
	r.mu.Lock()
	r.scale = s
	r.mu.Unlock()
}

// Close releases the underlying serial port.
func (r *SerialReader) Close() error { return r.port.Close() }
