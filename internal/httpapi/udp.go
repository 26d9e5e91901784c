package httpapi

import (
	"context"
	"fmt"
	"net"
	"unicode/utf8"

	"github.com/book-expert/logger"
)

// udpBufferBytes is the largest datagram a device is expected to send.
const udpBufferBytes = 1024

// UDPListener logs datagrams sent by devices during development. It writes
// through the same DeviceLog as the WebSocket surface.
type UDPListener struct {
	conn      net.PacketConn
	deviceLog *DeviceLog
	log       *logger.Logger
}

// NewUDPListener binds the given UDP address immediately so the caller can
// report bind failures before starting the receive loop.
func NewUDPListener(addr string, deviceLog *DeviceLog, log *logger.Logger) (*UDPListener, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind UDP listener on %s: %w", addr, err)
	}

	return &UDPListener{
		conn:      conn,
		deviceLog: deviceLog,
		log:       log,
	}, nil
}

// Addr returns the bound local address.
func (l *UDPListener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Run receives datagrams until the context is cancelled.
func (l *UDPListener) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()

		_ = l.conn.Close()
	}()

	l.log.Info("UDP device listener started on %s", l.conn.LocalAddr())

	buffer := make([]byte, udpBufferBytes)

	for {
		n, remoteAddr, err := l.conn.ReadFrom(buffer)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("failed to read UDP datagram: %w", err)
		}

		data := buffer[:n]

		var logErr error

		if utf8.Valid(data) {
			logErr = l.deviceLog.Append(remoteAddr.String(), string(data))
		} else {
			logErr = l.deviceLog.AppendBinary(remoteAddr.String(), data)
		}

		if logErr != nil {
			l.log.Error("Failed to log UDP datagram: %v", logErr)
		}
	}
}
