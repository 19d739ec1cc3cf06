package pulse

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mux/internal/services"
)

const (
	// DefaultBinary is the audio server control executable.
	DefaultBinary = "pactl"
	// DefaultTimeout bounds a single external call.
	DefaultTimeout = 3 * time.Second

	component = "pulse"
)

// FailureHook observes every failed external call.
type FailureHook func(op string, err error)

// Client issues commands against the audio server.
type Client struct {
	binary    string
	exec      Executor
	timeout   time.Duration
	onFailure FailureHook
}

// Option customises a Client.
type Option func(*Client)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithExecutor injects a command executor, typically a fake server in tests.
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithFailureHook registers a callback for failed calls.
func WithFailureHook(hook FailureHook) Option {
	return func(c *Client) { c.onFailure = hook }
}

// NewClient constructs a Client for the given binary.
func NewClient(binary string, opts ...Option) *Client {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = DefaultBinary
	}
	c := &Client{binary: binary, exec: commandExecutor{}, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Binary returns the configured executable name.
func (c *Client) Binary() string { return c.binary }

func (c *Client) run(ctx context.Context, op string, args ...string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.exec.Run(callCtx, c.binary, args)
	if err == nil {
		return string(out), nil
	}

	var wrapped error
	switch {
	case errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		wrapped = services.Wrap(services.ErrTimeout, component, op, fmt.Sprintf("no reply within %s", c.timeout), err)
	case ctx.Err() != nil:
		wrapped = services.Wrap(services.ErrTransient, component, op, "cancelled", ctx.Err())
	default:
		message := strings.Join(args, " ")
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && strings.TrimSpace(cmdErr.Stderr) != "" {
			message = strings.TrimSpace(cmdErr.Stderr)
		}
		wrapped = services.Wrap(services.ErrExternalTool, component, op, message, err)
	}
	if c.onFailure != nil {
		c.onFailure(op, wrapped)
	}
	return string(out), wrapped
}

// ServerInfo reports the server name, version, and defaults. It doubles as a
// reachability probe.
func (c *Client) ServerInfo(ctx context.Context) (ServerInfo, error) {
	out, err := c.run(ctx, "info", "info")
	if err != nil {
		return ServerInfo{}, err
	}
	return ParseServerInfo(out), nil
}

// ListSinksShort returns the flat sink listing.
func (c *Client) ListSinksShort(ctx context.Context) ([]ShortEntry, error) {
	out, err := c.run(ctx, "list_sinks", "list", "short", "sinks")
	if err != nil {
		return nil, err
	}
	return ParseShortList(out), nil
}

// ListSourcesShort returns the flat source listing.
func (c *Client) ListSourcesShort(ctx context.Context) ([]ShortEntry, error) {
	out, err := c.run(ctx, "list_sources", "list", "short", "sources")
	if err != nil {
		return nil, err
	}
	return ParseShortList(out), nil
}

// ListSinks returns sinks with their descriptions.
func (c *Client) ListSinks(ctx context.Context) ([]Device, error) {
	out, err := c.run(ctx, "list_sinks_verbose", "list", "sinks")
	if err != nil {
		return nil, err
	}
	return ParseDevices(out, "Sink #"), nil
}

// ListSources returns sources with their descriptions.
func (c *Client) ListSources(ctx context.Context) ([]Device, error) {
	out, err := c.run(ctx, "list_sources_verbose", "list", "sources")
	if err != nil {
		return nil, err
	}
	return ParseDevices(out, "Source #"), nil
}

// ListSinkInputs returns every routed stream.
func (c *Client) ListSinkInputs(ctx context.Context) ([]SinkInput, error) {
	out, err := c.run(ctx, "list_sink_inputs", "list", "sink-inputs")
	if err != nil {
		return nil, err
	}
	return ParseSinkInputs(out), nil
}

// ListModules returns loaded modules.
func (c *Client) ListModules(ctx context.Context) ([]Module, error) {
	out, err := c.run(ctx, "list_modules", "list", "short", "modules")
	if err != nil {
		return nil, err
	}
	return ParseModules(out), nil
}

// LoadNullSink creates a virtual sink and returns its module id.
func (c *Client) LoadNullSink(ctx context.Context, name string, props DeviceProps) (string, error) {
	args := []string{"load-module", "module-null-sink", "sink_name=" + name}
	if p := formatProps(props); p != "" {
		args = append(args, "sink_properties="+p)
	}
	return c.loadModule(ctx, "load_null_sink", args)
}

// LoadRemapSource exposes master as a new source and returns its module id.
func (c *Client) LoadRemapSource(ctx context.Context, master, name string, props DeviceProps) (string, error) {
	args := []string{"load-module", "module-remap-source", "master=" + master, "source_name=" + name}
	if p := formatProps(props); p != "" {
		args = append(args, "source_properties="+p)
	}
	return c.loadModule(ctx, "load_remap_source", args)
}

// LoadLoopback creates a loopback link and returns its module id.
func (c *Client) LoadLoopback(ctx context.Context, spec LoopbackSpec) (string, error) {
	args := []string{
		"load-module", "module-loopback",
		"source=" + spec.Source,
		"sink=" + spec.Sink,
		"latency_msec=" + strconv.Itoa(spec.LatencyMS),
		"adjust_time=0",
		"sink_input_properties=media.name=" + spec.MediaName,
	}
	return c.loadModule(ctx, "load_loopback", args)
}

func (c *Client) loadModule(ctx context.Context, op string, args []string) (string, error) {
	out, err := c.run(ctx, op, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// UnloadModule removes a module by id.
func (c *Client) UnloadModule(ctx context.Context, id string) error {
	_, err := c.run(ctx, "unload_module", "unload-module", id)
	return err
}

// SetSinkVolume sets a sink volume percentage.
func (c *Client) SetSinkVolume(ctx context.Context, sink string, percent int) error {
	_, err := c.run(ctx, "set_sink_volume", "set-sink-volume", sink, formatPercent(percent))
	return err
}

// SetSinkMute mutes or unmutes a sink.
func (c *Client) SetSinkMute(ctx context.Context, sink string, muted bool) error {
	_, err := c.run(ctx, "set_sink_mute", "set-sink-mute", sink, formatBool(muted))
	return err
}

// GetSinkVolume reads a sink volume percentage.
func (c *Client) GetSinkVolume(ctx context.Context, sink string) (int, error) {
	return c.getVolume(ctx, "get_sink_volume", "get-sink-volume", sink)
}

// GetSinkMute reads a sink mute state.
func (c *Client) GetSinkMute(ctx context.Context, sink string) (bool, error) {
	return c.getMute(ctx, "get_sink_mute", "get-sink-mute", sink)
}

// SetSourceVolume sets a source volume percentage.
func (c *Client) SetSourceVolume(ctx context.Context, source string, percent int) error {
	_, err := c.run(ctx, "set_source_volume", "set-source-volume", source, formatPercent(percent))
	return err
}

// SetSourceMute mutes or unmutes a source.
func (c *Client) SetSourceMute(ctx context.Context, source string, muted bool) error {
	_, err := c.run(ctx, "set_source_mute", "set-source-mute", source, formatBool(muted))
	return err
}

// GetSourceVolume reads a source volume percentage.
func (c *Client) GetSourceVolume(ctx context.Context, source string) (int, error) {
	return c.getVolume(ctx, "get_source_volume", "get-source-volume", source)
}

// GetSourceMute reads a source mute state.
func (c *Client) GetSourceMute(ctx context.Context, source string) (bool, error) {
	return c.getMute(ctx, "get_source_mute", "get-source-mute", source)
}

// SetSinkInputVolume sets a routed stream volume percentage.
func (c *Client) SetSinkInputVolume(ctx context.Context, id string, percent int) error {
	_, err := c.run(ctx, "set_sink_input_volume", "set-sink-input-volume", id, formatPercent(percent))
	return err
}

// SetSinkInputMute mutes or unmutes a routed stream.
func (c *Client) SetSinkInputMute(ctx context.Context, id string, muted bool) error {
	_, err := c.run(ctx, "set_sink_input_mute", "set-sink-input-mute", id, formatBool(muted))
	return err
}

// GetSinkInputVolume reads a routed stream volume percentage.
func (c *Client) GetSinkInputVolume(ctx context.Context, id string) (int, error) {
	return c.getVolume(ctx, "get_sink_input_volume", "get-sink-input-volume", id)
}

// GetSinkInputMute reads a routed stream mute state.
func (c *Client) GetSinkInputMute(ctx context.Context, id string) (bool, error) {
	return c.getMute(ctx, "get_sink_input_mute", "get-sink-input-mute", id)
}

// SetDefaultSink makes sink the target for newly started streams.
func (c *Client) SetDefaultSink(ctx context.Context, sink string) error {
	_, err := c.run(ctx, "set_default_sink", "set-default-sink", sink)
	return err
}

// SetDefaultSource makes source the default capture device.
func (c *Client) SetDefaultSource(ctx context.Context, source string) error {
	_, err := c.run(ctx, "set_default_source", "set-default-source", source)
	return err
}

// MoveSinkInput reattaches a routed stream to another sink.
func (c *Client) MoveSinkInput(ctx context.Context, id, sink string) error {
	_, err := c.run(ctx, "move_sink_input", "move-sink-input", id, sink)
	return err
}

func (c *Client) getVolume(ctx context.Context, op string, args ...string) (int, error) {
	out, err := c.run(ctx, op, args...)
	if err != nil {
		return 0, err
	}
	v, ok := ParseVolume(out)
	if !ok {
		return 0, services.Wrap(services.ErrNotFound, component, op, "no volume in reply", nil)
	}
	return v, nil
}

func (c *Client) getMute(ctx context.Context, op string, args ...string) (bool, error) {
	out, err := c.run(ctx, op, args...)
	if err != nil {
		return false, err
	}
	muted, ok := ParseMute(out)
	if !ok {
		return false, services.Wrap(services.ErrNotFound, component, op, "no mute state in reply", nil)
	}
	return muted, nil
}

// formatProps renders a quoted property list understood by module arguments:
// "device.description='Game' node.nick='Game' ...".
func formatProps(props DeviceProps) string {
	desc := strings.TrimSpace(props.Description)
	if desc == "" {
		return ""
	}
	desc = strings.ReplaceAll(desc, "'", "")
	parts := []string{
		"device.description='" + desc + "'",
		"node.nick='" + desc + "'",
		"media.name='" + desc + "'",
		"device.product.name='" + desc + "'",
	}
	if icon := strings.TrimSpace(props.IconName); icon != "" {
		parts = append(parts, "device.icon_name='"+icon+"'")
	}
	return `"` + strings.Join(parts, " ") + `"`
}

func formatPercent(v int) string {
	return strconv.Itoa(v) + "%"
}

func formatBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
