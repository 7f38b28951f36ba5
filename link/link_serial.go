package link

import (
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// serialLink implements Link over a serial UART (USB/DIN/PI) at
// SerialBaud/8N1/no-flow-control, via go.bug.st/serial — cross-platform and
// pure Go, so a single implementation covers every OS.
type serialLink struct {
	cfg      Config
	receiver Receiver
	log      zerolog.Logger

	mu   sync.Mutex
	port serial.Port
	done chan struct{}
}

func newSerialLink(cfg Config, receiver Receiver, logger zerolog.Logger) *serialLink {
	return &serialLink{cfg: cfg, receiver: receiver, log: logger.With().Str("transport", "serial").Logger()}
}

func (l *serialLink) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port != nil {
		return nil
	}

	mode := &serial.Mode{
		BaudRate: SerialBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(l.cfg.Device, mode)
	if err != nil {
		return fmt.Errorf("link: serial open %s: %w", l.cfg.Device, err)
	}

	l.log.Info().Str("device", l.cfg.Device).Int("baud", SerialBaud).Msg("connection open")
	l.port = port
	l.done = make(chan struct{})
	go l.readLoop(port, l.done)
	return nil
}

func (l *serialLink) readLoop(port serial.Port, done chan struct{}) {
	buf := make([]byte, 256)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			l.receiver(chunk)
		}
		if err != nil {
			if err != io.EOF {
				l.log.Warn().Err(err).Msg("serial read error, link closing")
			}
			return
		}
		select {
		case <-done:
			return
		default:
		}
	}
}

func (l *serialLink) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return nil
	}
	close(l.done)
	err := l.port.Close()
	l.port = nil
	l.log.Info().Msg("connection close")
	return err
}

func (l *serialLink) Reconnect() error {
	if l.Connected() {
		l.log.Debug().Msg("reconnect: still connected, closing first")
		if err := l.Disconnect(); err != nil {
			return err
		}
	}
	return l.Connect()
}

func (l *serialLink) Send(b []byte) error {
	l.mu.Lock()
	port := l.port
	l.mu.Unlock()
	if port == nil {
		return ErrNotConnected
	}
	_, err := port.Write(b)
	return err
}

func (l *serialLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port != nil
}
