package remote

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Device is a registered remote reader.
type Device struct {
	ID         string
	Name       string
	Platform   string
	AppVersion string

	mu       sync.Mutex
	lastSeen time.Time
	conn     *websocket.Conn
}

func (d *Device) String() string {
	return fmt.Sprintf("%s [%s]", d.Name, d.ID)
}

// LastSeen returns when the device last sent anything.
func (d *Device) LastSeen() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeen
}

func (d *Device) attach(conn *websocket.Conn) {
	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()
}

func (d *Device) close() {
	d.mu.Lock()
	conn := d.conn
	d.conn = nil
	d.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}
