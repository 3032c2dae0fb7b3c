// Package client is a minimal Go client for the control chain IPC
// protocol exposed by package ipc: line-delimited JSON requests and
// replies over a Unix-domain socket, plus an asynchronous event
// stream for device_status and data_update.
package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
)

type envelope struct {
	Reply string          `json:"reply"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Client is a connected control chain IPC client.
type Client struct {
	conn net.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  []chan envelope
	onStatus func(json.RawMessage)
	onUpdate func(json.RawMessage)
}

// Dial connects to a control-chain-host IPC socket at socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", socketPath, err)
	}
	c := &Client{conn: conn}
	go c.readLoop()
	return c, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// OnDeviceStatus registers a callback for device_status events.
func (c *Client) OnDeviceStatus(fn func(data json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = fn
}

// OnDataUpdate registers a callback for data_update events.
func (c *Client) OnDataUpdate(fn func(data json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = fn
}

func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 4096), 1<<20)
	for scanner.Scan() {
		var env envelope
		if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
			continue
		}
		if env.Event != "" {
			c.dispatchEvent(env)
			continue
		}
		c.mu.Lock()
		if len(c.pending) > 0 {
			ch := c.pending[0]
			c.pending = c.pending[1:]
			c.mu.Unlock()
			ch <- env
			continue
		}
		c.mu.Unlock()
	}
}

func (c *Client) dispatchEvent(env envelope) {
	c.mu.Lock()
	status, update := c.onStatus, c.onUpdate
	c.mu.Unlock()
	switch env.Event {
	case "device_status":
		if status != nil {
			status(env.Data)
		}
	case "data_update":
		if update != nil {
			update(env.Data)
		}
	}
}

// call sends a request and blocks for its matching reply. Replies are
// matched in send order, since the server answers each client
// connection's requests strictly in the order they arrive.
func (c *Client) call(request string, data interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	buf, err := json.Marshal(struct {
		Request string          `json:"request"`
		Data    json.RawMessage `json:"data"`
	}{Request: request, Data: payload})
	if err != nil {
		return nil, err
	}

	ch := make(chan envelope, 1)
	c.mu.Lock()
	c.pending = append(c.pending, ch)
	c.mu.Unlock()

	c.writeMu.Lock()
	_, err = c.conn.Write(append(buf, '\n'))
	c.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	env := <-ch
	return env.Data, nil
}

// DeviceList requests the ids of devices matching filter ("all",
// "registered", or "unregistered").
func (c *Client) DeviceList(filter string) ([]byte, error) {
	data, err := c.call("device_list", map[string]string{"filter": filter})
	if err != nil {
		return nil, err
	}
	var ids []byte
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// DeviceDescriptor fetches a device's descriptor as raw JSON.
func (c *Client) DeviceDescriptor(deviceID byte) (json.RawMessage, error) {
	return c.call("device_descriptor", map[string]byte{"device_id": deviceID})
}

// Assign requests a new assignment; in is marshalled verbatim as the
// request body.
func (c *Client) Assign(in interface{}) (int, error) {
	return c.callForID("assign", in)
}

// SetValue requests an assignment value change.
func (c *Client) SetValue(in interface{}) (int, error) {
	return c.callForID("set_value", in)
}

func (c *Client) callForID(request string, in interface{}) (int, error) {
	data, err := c.call(request, in)
	if err != nil {
		return -1, err
	}
	var body struct {
		ID    int    `json:"id"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return -1, err
	}
	if body.Error != "" {
		return -1, fmt.Errorf("client: %s: %s", request, body.Error)
	}
	return body.ID, nil
}

// Unassign removes an assignment by key fields.
func (c *Client) Unassign(key interface{}) error {
	_, err := c.call("unassign", key)
	return err
}

// SwitchPage changes a device's active page.
func (c *Client) SwitchPage(deviceID, page byte) error {
	_, err := c.call("switch_page", map[string]byte{"device_id": deviceID, "page": page})
	return err
}

// DisableDevice sends a disable request for deviceID.
func (c *Client) DisableDevice(deviceID byte) error {
	_, err := c.call("disable_device", map[string]byte{"device_id": deviceID})
	return err
}

// Subscribe enables delivery of the named event ("device_status" or
// "data_update") to this client.
func (c *Client) Subscribe(event string) error {
	_, err := c.call("subscribe", map[string]string{"event": event})
	return err
}

// Unsubscribe disables delivery of the named event.
func (c *Client) Unsubscribe(event string) error {
	_, err := c.call("unsubscribe", map[string]string{"event": event})
	return err
}
