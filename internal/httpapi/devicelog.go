package httpapi

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// binaryPreviewBytes bounds the hex preview written for non-text payloads.
const binaryPreviewBytes = 64

// DeviceLog appends timestamped device messages to a shared debug log file.
// The WebSocket and UDP surfaces both write through it.
type DeviceLog struct {
	mu   sync.Mutex
	path string
}

// NewDeviceLog creates the log file's directory if needed.
func NewDeviceLog(path string) (*DeviceLog, error) {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create device log directory: %w", err)
	}

	return &DeviceLog{path: path}, nil
}

// Append writes one timestamped text line from the given remote address.
func (d *DeviceLog) Append(remoteAddr, message string) error {
	return d.writeLine(remoteAddr, message)
}

// AppendBinary writes a hex preview of a non-text payload.
func (d *DeviceLog) AppendBinary(remoteAddr string, data []byte) error {
	preview := data
	if len(preview) > binaryPreviewBytes {
		preview = preview[:binaryPreviewBytes]
	}

	return d.writeLine(remoteAddr, "<binary:"+hex.EncodeToString(preview)+">")
}

func (d *DeviceLog) writeLine(remoteAddr, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	file, err := os.OpenFile(d.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open device log: %w", err)
	}
	defer file.Close()

	timestamp := time.Now().UTC().Format(time.RFC3339)

	_, err = fmt.Fprintf(file, "%s %s %s\n", timestamp, remoteAddr, message)
	if err != nil {
		return fmt.Errorf("failed to write device log line: %w", err)
	}

	return nil
}

var deviceUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Devices connect directly without an Origin header.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// handleDeviceSocket accepts a device connection, logs every message it
// sends and acknowledges each one with a short ACK frame.
func (s *Server) handleDeviceSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := deviceUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Failed to upgrade device socket from %s: %v", r.RemoteAddr, err)

		return
	}
	defer conn.Close()

	s.log.Info("Device socket connected from %s", r.RemoteAddr)

	for {
		messageType, data, readErr := conn.ReadMessage()
		if readErr != nil {
			s.log.Info("Device socket from %s closed: %v", r.RemoteAddr, readErr)

			return
		}

		var logErr error

		if messageType == websocket.TextMessage {
			logErr = s.deviceLog.Append(r.RemoteAddr, string(data))
		} else {
			logErr = s.deviceLog.AppendBinary(r.RemoteAddr, data)
		}

		if logErr != nil {
			s.log.Error("Failed to log device message: %v", logErr)
		}

		writeErr := conn.WriteMessage(websocket.TextMessage, []byte("ACK"))
		if writeErr != nil {
			s.log.Error("Failed to acknowledge device message: %v", writeErr)

			return
		}
	}
}
