// Package ipc implements the local control chain IPC server: a
// Unix-domain socket speaking a line-delimited JSON request/reply and
// event protocol, grounded on original_source/server/src/main.c's
// send_reply/send_event envelope shapes. This layer is explicitly
// outside the protocol core's scope (spec.md §1); it exists only to
// exercise the core's public API (spec.md §6) over a socket.
package ipc

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"

	controlchain "github.com/control-chain/controlchain"
	"github.com/control-chain/controlchain/internal/trace"
)

type request struct {
	Request string          `json:"request"`
	Data    json.RawMessage `json:"data"`
}

type reply struct {
	Reply string      `json:"reply"`
	Data  interface{} `json:"data"`
}

type event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Server exposes a *controlchain.Handle over a Unix-domain socket.
type Server struct {
	handle *controlchain.Handle
	ln     net.Listener

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn net.Conn

	writeMu sync.Mutex

	mu           sync.Mutex
	wantsStatus  bool
	wantsUpdates bool
}

// Listen opens socketPath (removing any stale socket file left behind
// by a prior run) and starts serving.
func Listen(handle *controlchain.Handle, socketPath string) (*Server, error) {
	os.Remove(socketPath)
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen %s: %w", socketPath, err)
	}

	s := &Server{handle: handle, ln: ln, clients: make(map[*client]struct{})}
	handle.SetDeviceStatusCallback(s.broadcastStatus)
	handle.SetDataUpdateCallback(s.broadcastUpdate)

	go s.acceptLoop()
	return s, nil
}

func (s *Server) Close() error {
	return s.ln.Close()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		c := &client{conn: conn}
		s.mu.Lock()
		s.clients[c] = struct{}{}
		s.mu.Unlock()
		go s.serve(c)
	}
}

func (s *Server) serve(c *client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		c.conn.Close()
	}()

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 4096), 1<<20)
	for scanner.Scan() {
		var req request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			trace.Eventf("ipc: malformed request: %v", err)
			continue
		}
		s.handleRequest(c, req)
	}
}

func (s *Server) handleRequest(c *client, req request) {
	ctx := context.Background()

	switch req.Request {
	case "device_list":
		var body struct {
			Filter string `json:"filter"`
		}
		json.Unmarshal(req.Data, &body)
		filter := controlchain.FilterRegistered
		switch body.Filter {
		case "all":
			filter = controlchain.FilterAll
		case "unregistered":
			filter = controlchain.FilterUnregistered
		}
		c.send(reply{Reply: req.Request, Data: s.handle.DeviceList(filter)})

	case "device_descriptor":
		var body struct {
			DeviceID byte `json:"device_id"`
		}
		json.Unmarshal(req.Data, &body)
		js, err := s.handle.DeviceDescriptorJSON(body.DeviceID)
		if err != nil {
			c.send(reply{Reply: req.Request, Data: map[string]string{"error": err.Error()}})
			return
		}
		c.send(reply{Reply: req.Request, Data: json.RawMessage(js)})

	case "assign":
		var in controlchain.AssignmentInput
		json.Unmarshal(req.Data, &in)
		id, err := s.handle.Assign(ctx, in, true)
		c.send(reply{Reply: req.Request, Data: idOrError(id, err)})

	case "unassign":
		var key controlchain.AssignmentKey
		json.Unmarshal(req.Data, &key)
		err := s.handle.Unassign(ctx, key)
		c.send(reply{Reply: req.Request, Data: okOrError(err)})

	case "set_value":
		var in controlchain.SetValueInput
		json.Unmarshal(req.Data, &in)
		id, err := s.handle.SetValue(ctx, in)
		c.send(reply{Reply: req.Request, Data: idOrError(id, err)})

	case "switch_page":
		var body struct {
			DeviceID byte `json:"device_id"`
			Page     byte `json:"page"`
		}
		json.Unmarshal(req.Data, &body)
		err := s.handle.SwitchPage(ctx, body.DeviceID, body.Page)
		c.send(reply{Reply: req.Request, Data: okOrError(err)})

	case "disable_device":
		var body struct {
			DeviceID byte `json:"device_id"`
		}
		json.Unmarshal(req.Data, &body)
		err := s.handle.DisableDevice(ctx, body.DeviceID)
		c.send(reply{Reply: req.Request, Data: okOrError(err)})

	case "subscribe", "unsubscribe":
		var body struct {
			Event string `json:"event"`
		}
		json.Unmarshal(req.Data, &body)
		c.setSubscription(body.Event, req.Request == "subscribe")
		c.send(reply{Reply: req.Request, Data: okOrError(nil)})

	default:
		c.send(reply{Reply: req.Request, Data: map[string]string{"error": "unknown request"}})
	}
}

func (c *client) setSubscription(name string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch name {
	case "device_status":
		c.wantsStatus = on
	case "data_update":
		c.wantsUpdates = on
	}
}

func (c *client) send(v interface{}) {
	buf, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.Write(append(buf, '\n'))
}

func (s *Server) broadcastStatus(dev *controlchain.Device) {
	payload := map[string]interface{}{"device_id": dev.ID, "status": dev.Status.String()}
	s.broadcast("device_status", payload, func(c *client) bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.wantsStatus
	})
}

func (s *Server) broadcastUpdate(u *controlchain.UpdateList) {
	payload := map[string]interface{}{
		"device_id": u.DeviceID,
		"raw_data":  base64.StdEncoding.EncodeToString(u.RawData),
	}
	s.broadcast("data_update", payload, func(c *client) bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.wantsUpdates
	})
}

func (s *Server) broadcast(name string, data interface{}, want func(*client) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		if want(c) {
			c.send(event{Event: name, Data: data})
		}
	}
}

func idOrError(id int, err error) interface{} {
	if err != nil {
		return map[string]string{"error": err.Error()}
	}
	return map[string]int{"id": id}
}

func okOrError(err error) interface{} {
	if err != nil {
		return map[string]string{"error": err.Error()}
	}
	return map[string]bool{"ok": true}
}
