package link

import (
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// tcpLink implements Link over a TCP socket to a Wi-Fi bridge, dialing
// host:port directly with stdlib net.Dial — see DESIGN.md for why this
// stays on the standard library.
type tcpLink struct {
	cfg      Config
	receiver Receiver
	log      zerolog.Logger

	mu   sync.Mutex
	conn net.Conn
	done chan struct{}
}

func newTCPLink(cfg Config, receiver Receiver, logger zerolog.Logger) *tcpLink {
	return &tcpLink{cfg: cfg, receiver: receiver, log: logger.With().Str("transport", "tcp").Logger()}
}

func (l *tcpLink) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", l.cfg.Address, l.cfg.Port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("link: tcp dial %s: %w", addr, err)
	}

	l.log.Info().Str("address", addr).Msg("connection open")
	l.conn = conn
	l.done = make(chan struct{})
	go l.readLoop(conn, l.done)
	return nil
}

func (l *tcpLink) readLoop(conn net.Conn, done chan struct{}) {
	buf := make([]byte, 512)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			l.receiver(chunk)
		}
		if err != nil {
			if err != io.EOF {
				l.log.Warn().Err(err).Msg("tcp read error, link closing")
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

func (l *tcpLink) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	close(l.done)
	err := l.conn.Close()
	l.conn = nil
	l.log.Info().Msg("connection close")
	return err
}

func (l *tcpLink) Reconnect() error {
	if l.Connected() {
		l.log.Debug().Msg("reconnect: still connected, closing first")
		if err := l.Disconnect(); err != nil {
			return err
		}
	}
	return l.Connect()
}

func (l *tcpLink) Send(b []byte) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	_, err := conn.Write(b)
	return err
}

func (l *tcpLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}
