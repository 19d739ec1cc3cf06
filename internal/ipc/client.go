package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(serviceName+"."+method, req, resp)
}

// Start requests the daemon to start reconciling.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.call("Start", Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon process to exit.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Volume sets or adjusts a channel track.
func (c *Client) Volume(req VolumeRequest) (*OutcomeResponse, error) {
	var resp OutcomeResponse
	if err := c.call("Volume", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ToggleMute flips a channel track's mute flag.
func (c *Client) ToggleMute(req MuteRequest) (*OutcomeResponse, error) {
	var resp OutcomeResponse
	if err := c.call("ToggleMute", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MoveApplication attaches an application stream to a channel.
func (c *Client) MoveApplication(req MoveRequest) (*OutcomeResponse, error) {
	var resp OutcomeResponse
	if err := c.call("MoveApplication", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamerMode sets or toggles streamer mode.
func (c *Client) StreamerMode(req ModeRequest) (*PassResponse, error) {
	var resp PassResponse
	if err := c.call("StreamerMode", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SelectDevices changes the hardware output and input.
func (c *Client) SelectDevices(req DevicesRequest) (*PassResponse, error) {
	var resp PassResponse
	if err := c.call("SelectDevices", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reconcile runs a pass against the current intent.
func (c *Client) Reconcile(reason string) (*PassResponse, error) {
	var resp PassResponse
	if err := c.call("Reconcile", ReconcileRequest{Reason: reason}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HardwareDevices lists selectable sinks and sources.
func (c *Client) HardwareDevices() (*HardwareResponse, error) {
	var resp HardwareResponse
	if err := c.call("HardwareDevices", Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BindHotkey stores a binding.
func (c *Client) BindHotkey(req BindRequest) (*BindResponse, error) {
	var resp BindResponse
	if err := c.call("BindHotkey", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TriggerHotkey injects a key combo into the hotkey listener.
func (c *Client) TriggerHotkey(combo string) (*TriggerResponse, error) {
	var resp TriggerResponse
	if err := c.call("TriggerHotkey", TriggerRequest{Combo: combo}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Hotkeys lists bindings.
func (c *Client) Hotkeys() (*HotkeysResponse, error) {
	var resp HotkeysResponse
	if err := c.call("Hotkeys", Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetInteraction marks the start or end of a slider or application drag.
func (c *Client) SetInteraction(req InteractionRequest) error {
	var resp Empty
	return c.call("SetInteraction", req, &resp)
}

// History lists recent reconciliation passes.
func (c *Client) History(limit int) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.call("History", HistoryRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Events lists recent drift and hot-plug events.
func (c *Client) Events(limit int) (*EventsResponse, error) {
	var resp EventsResponse
	if err := c.call("Events", HistoryRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.call("LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
