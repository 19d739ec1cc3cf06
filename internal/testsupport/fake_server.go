package testsupport

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"mux/internal/pulse"
)

// Command is one recorded invocation against the fake server.
type Command struct {
	Seq  int
	Args []string
}

// String renders the command as it would appear on a shell.
func (c Command) String() string { return strings.Join(c.Args, " ") }

type fakeNode struct {
	id          int
	name        string
	description string
	module      int
	volume      int
	muted       bool
}

type fakeModule struct {
	id   int
	name string
	args string
	// owned device or stream
	sink   string
	source string
}

type fakeInput struct {
	id        int
	owner     int
	sink      string
	mediaName string
	appName   string
	iconName  string
	latency   int
	source    string
	volume    int
	muted     bool
}

// FakeServer is an in-memory audio server that understands the pactl argv
// used by the daemon and answers in pactl's text formats. It implements
// pulse.Executor.
type FakeServer struct {
	mu sync.Mutex

	nextNode   int
	nextModule int
	nextInput  int
	seq        int

	sinks   []*fakeNode
	sources []*fakeNode
	modules []*fakeModule
	inputs  []*fakeInput

	defaultSink   string
	defaultSource string

	commands []Command
	failures map[string]int
}

// NewFakeServer returns an empty server.
func NewFakeServer() *FakeServer {
	return &FakeServer{
		nextNode:   1,
		nextModule: 500,
		nextInput:  40,
		failures:   map[string]int{},
	}
}

// AddHardwareSink registers a physical output.
func (f *FakeServer) AddHardwareSink(name, description string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addSinkLocked(name, description, 0)
}

// AddHardwareSource registers a physical input.
func (f *FakeServer) AddHardwareSource(name, description string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, &fakeNode{id: f.allocNode(), name: name, description: description, volume: 100})
}

// AddApp attaches a third-party stream to sink and returns its input id.
func (f *FakeServer) AddApp(appName, mediaName, sink string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	in := &fakeInput{id: f.nextInput, sink: sink, mediaName: mediaName, appName: appName, volume: 100}
	f.nextInput++
	f.inputs = append(f.inputs, in)
	return strconv.Itoa(in.id)
}

// FailNext makes the next n commands whose first argument is verb fail.
func (f *FakeServer) FailNext(verb string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[verb] += n
}

// Commands returns every recorded command in order.
func (f *FakeServer) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.commands...)
}

// ResetCommands clears the command log.
func (f *FakeServer) ResetCommands() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = nil
}

// CommandsWithPrefix returns commands whose rendering starts with prefix.
func (f *FakeServer) CommandsWithPrefix(prefix string) []Command {
	var out []Command
	for _, c := range f.Commands() {
		if strings.HasPrefix(c.String(), prefix) {
			out = append(out, c)
		}
	}
	return out
}

// OwnedLinks returns the media names of loopback streams starting with "Link_", sorted.
func (f *FakeServer) OwnedLinks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, in := range f.inputs {
		if strings.HasPrefix(in.mediaName, "Link_") {
			names = append(names, in.mediaName)
		}
	}
	sort.Strings(names)
	return names
}

// LinkInfo describes a loopback stream by media name.
type LinkInfo struct {
	ID        string
	Source    string
	Sink      string
	LatencyMS int
	Volume    int
	Muted     bool
}

// Link returns the loopback stream carrying mediaName.
func (f *FakeServer) Link(mediaName string) (LinkInfo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, in := range f.inputs {
		if in.mediaName == mediaName {
			return LinkInfo{
				ID:        strconv.Itoa(in.id),
				Source:    in.source,
				Sink:      in.sink,
				LatencyMS: in.latency,
				Volume:    in.volume,
				Muted:     in.muted,
			}, true
		}
	}
	return LinkInfo{}, false
}

// SetLinkVolume changes a stream volume as another program would.
func (f *FakeServer) SetLinkVolume(mediaName string, volume int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, in := range f.inputs {
		if in.mediaName == mediaName {
			in.volume = volume
		}
	}
}

// SetLinkMuted changes a stream mute as another program would.
func (f *FakeServer) SetLinkMuted(mediaName string, muted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, in := range f.inputs {
		if in.mediaName == mediaName {
			in.muted = muted
		}
	}
}

// AppSink returns the sink an input id is attached to.
func (f *FakeServer) AppSink(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if in := f.inputByID(id); in != nil {
		return in.sink
	}
	return ""
}

// HasSink reports whether a sink exists.
func (f *FakeServer) HasSink(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinkByName(name) != nil
}

// HasSource reports whether a source exists.
func (f *FakeServer) HasSource(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sourceByName(name) != nil
}

// SinkMuted reports a sink's mute state.
func (f *FakeServer) SinkMuted(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s := f.sinkByName(name); s != nil {
		return s.muted
	}
	return false
}

// Defaults returns the default sink and source.
func (f *FakeServer) Defaults() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.defaultSink, f.defaultSource
}

// ModuleCount returns the number of loaded modules with the given name.
func (f *FakeServer) ModuleCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.modules {
		if m.name == name {
			n++
		}
	}
	return n
}

// Run implements pulse.Executor.
func (f *FakeServer) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	f.commands = append(f.commands, Command{Seq: f.seq, Args: append([]string(nil), args...)})

	if len(args) == 0 {
		return nil, failure("no command specified")
	}
	if n := f.failures[args[0]]; n > 0 {
		f.failures[args[0]] = n - 1
		return nil, failure("Connection failure: Connection refused")
	}

	switch args[0] {
	case "info":
		return []byte(fmt.Sprintf("Server String: /run/user/1000/pulse/native\nServer Name: PulseAudio (on PipeWire 1.0.5)\nServer Version: 15.0.0\nDefault Sink: %s\nDefault Source: %s\n", f.defaultSink, f.defaultSource)), nil
	case "list":
		return f.list(args[1:])
	case "load-module":
		return f.loadModule(args[1:])
	case "unload-module":
		return f.unloadModule(args[1:])
	case "set-sink-volume", "set-source-volume", "set-sink-input-volume":
		return f.setVolume(args)
	case "set-sink-mute", "set-source-mute", "set-sink-input-mute":
		return f.setMute(args)
	case "get-sink-volume", "get-source-volume", "get-sink-input-volume":
		return f.getVolume(args)
	case "get-sink-mute", "get-source-mute", "get-sink-input-mute":
		return f.getMute(args)
	case "set-default-sink":
		if len(args) < 2 || f.sinkByName(args[1]) == nil {
			return nil, noEntity()
		}
		f.defaultSink = args[1]
		return nil, nil
	case "set-default-source":
		if len(args) < 2 || f.sourceByName(args[1]) == nil {
			return nil, noEntity()
		}
		f.defaultSource = args[1]
		return nil, nil
	case "move-sink-input":
		if len(args) < 3 {
			return nil, failure("Invalid arguments")
		}
		in := f.inputByID(args[1])
		if in == nil || f.sinkByName(args[2]) == nil {
			return nil, noEntity()
		}
		in.sink = args[2]
		return nil, nil
	}
	return nil, failure("No valid command specified.")
}

func (f *FakeServer) list(args []string) ([]byte, error) {
	short := len(args) > 0 && args[0] == "short"
	if short {
		args = args[1:]
	}
	if len(args) == 0 {
		return nil, failure("Specify what to list")
	}
	var b strings.Builder
	switch args[0] {
	case "sinks":
		for _, s := range f.sinks {
			if short {
				fmt.Fprintf(&b, "%d\t%s\tmodule-null-sink.c\tfloat32le 2ch 48000Hz\tSUSPENDED\n", s.id, s.name)
				continue
			}
			fmt.Fprintf(&b, "Sink #%d\n\tState: SUSPENDED\n\tName: %s\n\tDescription: %s\n\tDriver: PipeWire\n\tMute: %s\n\tVolume: %s\n\tProperties:\n\t\tdevice.description = %q\n\n",
				s.id, s.name, s.description, yesNo(s.muted), volumeLine(s.volume), s.description)
		}
	case "sources":
		for _, s := range f.allSources() {
			if short {
				fmt.Fprintf(&b, "%d\t%s\tPipeWire\tfloat32le 2ch 48000Hz\tSUSPENDED\n", s.id, s.name)
				continue
			}
			fmt.Fprintf(&b, "Source #%d\n\tState: SUSPENDED\n\tName: %s\n\tDescription: %s\n\tDriver: PipeWire\n\n", s.id, s.name, s.description)
		}
	case "modules":
		for _, m := range f.modules {
			fmt.Fprintf(&b, "%d\t%s\t%s\n", m.id, m.name, m.args)
		}
	case "sink-inputs":
		for _, in := range f.inputs {
			sinkID := "n/a"
			if s := f.sinkByName(in.sink); s != nil {
				sinkID = strconv.Itoa(s.id)
			}
			owner := "n/a"
			if in.owner != 0 {
				owner = strconv.Itoa(in.owner)
			}
			if short {
				fmt.Fprintf(&b, "%d\t%s\t%s\tPipeWire\tfloat32le 2ch 48000Hz\n", in.id, sinkID, owner)
				continue
			}
			fmt.Fprintf(&b, "Sink Input #%d\n\tDriver: PipeWire\n\tOwner Module: %s\n\tClient: n/a\n\tSink: %s\n\tMute: %s\n\tVolume: %s\n\tProperties:\n\t\tmedia.name = %q\n",
				in.id, owner, sinkID, yesNo(in.muted), volumeLine(in.volume), in.mediaName)
			if in.appName != "" {
				fmt.Fprintf(&b, "\t\tapplication.name = %q\n", in.appName)
			}
			if in.iconName != "" {
				fmt.Fprintf(&b, "\t\tapplication.icon_name = %q\n", in.iconName)
			}
			b.WriteString("\n")
		}
	default:
		return nil, failure("Specify what to list")
	}
	return []byte(b.String()), nil
}

func (f *FakeServer) loadModule(args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, failure("You have to specify a module name and arguments.")
	}
	name := args[0]
	joined := strings.Join(args[1:], " ")
	params := moduleArgs(args[1:])
	mod := &fakeModule{id: f.nextModule, name: name, args: joined}

	switch name {
	case "module-null-sink":
		sinkName := params["sink_name"]
		if sinkName == "" || f.sinkByName(sinkName) != nil {
			return nil, failure("Failure: Module initialization failed")
		}
		desc := propertyValue(params["sink_properties"], "device.description")
		if desc == "" {
			desc = sinkName
		}
		f.addSinkLocked(sinkName, desc, mod.id)
		mod.sink = sinkName
	case "module-remap-source":
		master := params["master"]
		sourceName := params["source_name"]
		if f.sourceByName(master) == nil || sourceName == "" || f.sourceByName(sourceName) != nil {
			return nil, failure("Failure: Module initialization failed")
		}
		desc := propertyValue(params["source_properties"], "device.description")
		if desc == "" {
			desc = sourceName
		}
		f.sources = append(f.sources, &fakeNode{id: f.allocNode(), name: sourceName, description: desc, module: mod.id, volume: 100})
		mod.source = sourceName
	case "module-loopback":
		source := params["source"]
		sink := params["sink"]
		if f.sourceByName(source) == nil || f.sinkByName(sink) == nil {
			return nil, failure("Failure: Module initialization failed")
		}
		latency, _ := strconv.Atoi(params["latency_msec"])
		media := strings.TrimPrefix(params["sink_input_properties"], "media.name=")
		in := &fakeInput{
			id:        f.nextInput,
			owner:     mod.id,
			sink:      sink,
			source:    source,
			mediaName: media,
			latency:   latency,
			volume:    100,
		}
		f.nextInput++
		f.inputs = append(f.inputs, in)
	default:
		return nil, failure("Failure: Module initialization failed")
	}

	f.nextModule++
	f.modules = append(f.modules, mod)
	return []byte(strconv.Itoa(mod.id) + "\n"), nil
}

func (f *FakeServer) unloadModule(args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, failure("You have to specify a module index or name")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, noEntity()
	}
	idx := -1
	for i, m := range f.modules {
		if m.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, failure("Failure: No such entity")
	}
	mod := f.modules[idx]
	f.modules = append(f.modules[:idx], f.modules[idx+1:]...)

	f.inputs = filterInputs(f.inputs, func(in *fakeInput) bool { return in.owner != id })
	if mod.sink != "" {
		f.removeSinkLocked(mod.sink)
	}
	if mod.source != "" {
		f.removeSourceLocked(mod.source)
	}
	return nil, nil
}

func (f *FakeServer) setVolume(args []string) ([]byte, error) {
	if len(args) < 3 {
		return nil, failure("Invalid arguments")
	}
	value, err := strconv.Atoi(strings.TrimSuffix(args[2], "%"))
	if err != nil {
		return nil, failure("Failed to parse volume.")
	}
	switch args[0] {
	case "set-sink-volume":
		if s := f.sinkByName(args[1]); s != nil {
			s.volume = value
			return nil, nil
		}
	case "set-source-volume":
		if s := f.sourceByName(args[1]); s != nil {
			s.volume = value
			return nil, nil
		}
	case "set-sink-input-volume":
		if in := f.inputByID(args[1]); in != nil {
			in.volume = value
			return nil, nil
		}
	}
	return nil, noEntity()
}

func (f *FakeServer) setMute(args []string) ([]byte, error) {
	if len(args) < 3 {
		return nil, failure("Invalid arguments")
	}
	apply := func(current bool) (bool, error) {
		switch args[2] {
		case "1", "yes", "true":
			return true, nil
		case "0", "no", "false":
			return false, nil
		case "toggle":
			return !current, nil
		}
		return false, failure("Invalid mute specification")
	}
	switch args[0] {
	case "set-sink-mute":
		if s := f.sinkByName(args[1]); s != nil {
			v, err := apply(s.muted)
			s.muted = v
			return nil, err
		}
	case "set-source-mute":
		if s := f.sourceByName(args[1]); s != nil {
			v, err := apply(s.muted)
			s.muted = v
			return nil, err
		}
	case "set-sink-input-mute":
		if in := f.inputByID(args[1]); in != nil {
			v, err := apply(in.muted)
			in.muted = v
			return nil, err
		}
	}
	return nil, noEntity()
}

func (f *FakeServer) getVolume(args []string) ([]byte, error) {
	if len(args) < 2 {
		return nil, failure("Invalid arguments")
	}
	var value int
	found := false
	switch args[0] {
	case "get-sink-volume":
		if s := f.sinkByName(args[1]); s != nil {
			value, found = s.volume, true
		}
	case "get-source-volume":
		if s := f.sourceByName(args[1]); s != nil {
			value, found = s.volume, true
		}
	case "get-sink-input-volume":
		if in := f.inputByID(args[1]); in != nil {
			value, found = in.volume, true
		}
	}
	if !found {
		return nil, noEntity()
	}
	return []byte("Volume: " + volumeLine(value) + "\n        balance 0.00\n"), nil
}

func (f *FakeServer) getMute(args []string) ([]byte, error) {
	if len(args) < 2 {
		return nil, failure("Invalid arguments")
	}
	var muted bool
	found := false
	switch args[0] {
	case "get-sink-mute":
		if s := f.sinkByName(args[1]); s != nil {
			muted, found = s.muted, true
		}
	case "get-source-mute":
		if s := f.sourceByName(args[1]); s != nil {
			muted, found = s.muted, true
		}
	case "get-sink-input-mute":
		if in := f.inputByID(args[1]); in != nil {
			muted, found = in.muted, true
		}
	}
	if !found {
		return nil, noEntity()
	}
	return []byte("Mute: " + yesNo(muted) + "\n"), nil
}

func (f *FakeServer) allocNode() int {
	id := f.nextNode
	f.nextNode++
	return id
}

func (f *FakeServer) addSinkLocked(name, description string, module int) {
	f.sinks = append(f.sinks, &fakeNode{id: f.allocNode(), name: name, description: description, module: module, volume: 100})
}

func (f *FakeServer) removeSinkLocked(name string) {
	kept := f.sinks[:0]
	for _, s := range f.sinks {
		if s.name != name {
			kept = append(kept, s)
		}
	}
	f.sinks = kept

	// Loopbacks die with their sink or monitor; apps fall back to the first sink.
	monitor := name + ".monitor"
	var dead []int
	for _, in := range f.inputs {
		if in.owner != 0 && (in.sink == name || in.source == monitor) {
			dead = append(dead, in.owner)
		}
	}
	for _, id := range dead {
		f.dropModule(id)
	}
	for _, in := range f.inputs {
		if in.sink == name {
			in.sink = ""
			if len(f.sinks) > 0 {
				in.sink = f.sinks[0].name
			}
		}
	}
	var remaps []string
	for _, m := range f.modules {
		if m.name == "module-remap-source" && strings.Contains(m.args, "master="+monitor) {
			remaps = append(remaps, m.source)
		}
	}
	for _, src := range remaps {
		f.removeSourceLocked(src)
	}
}

func (f *FakeServer) removeSourceLocked(name string) {
	kept := f.sources[:0]
	var owner int
	for _, s := range f.sources {
		if s.name == name {
			owner = s.module
			continue
		}
		kept = append(kept, s)
	}
	f.sources = kept
	if owner != 0 {
		f.dropModule(owner)
	}
	var dead []int
	for _, in := range f.inputs {
		if in.owner != 0 && in.source == name {
			dead = append(dead, in.owner)
		}
	}
	for _, id := range dead {
		f.dropModule(id)
	}
}

func (f *FakeServer) dropModule(id int) {
	kept := f.modules[:0]
	for _, m := range f.modules {
		if m.id != id {
			kept = append(kept, m)
		}
	}
	f.modules = kept
	f.inputs = filterInputs(f.inputs, func(in *fakeInput) bool { return in.owner != id })
}

func (f *FakeServer) allSources() []*fakeNode {
	out := make([]*fakeNode, 0, len(f.sources)+len(f.sinks))
	for _, s := range f.sinks {
		out = append(out, &fakeNode{id: s.id + 1000, name: s.name + ".monitor", description: "Monitor of " + s.description, volume: 100})
	}
	return append(out, f.sources...)
}

func (f *FakeServer) sinkByName(name string) *fakeNode {
	for _, s := range f.sinks {
		if s.name == name || strconv.Itoa(s.id) == name {
			return s
		}
	}
	return nil
}

func (f *FakeServer) sourceByName(name string) *fakeNode {
	for _, s := range f.allSources() {
		if s.name == name || strconv.Itoa(s.id) == name {
			for _, real := range f.sources {
				if real.name == s.name {
					return real
				}
			}
			return s
		}
	}
	return nil
}

func (f *FakeServer) inputByID(id string) *fakeInput {
	for _, in := range f.inputs {
		if strconv.Itoa(in.id) == id {
			return in
		}
	}
	return nil
}

func filterInputs(inputs []*fakeInput, keep func(*fakeInput) bool) []*fakeInput {
	out := inputs[:0]
	for _, in := range inputs {
		if keep(in) {
			out = append(out, in)
		}
	}
	return out
}

// moduleArgs splits module arguments, honouring double-quoted values.
func moduleArgs(args []string) map[string]string {
	params := map[string]string{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			continue
		}
		params[key] = strings.Trim(value, `"`)
	}
	return params
}

func propertyValue(props, key string) string {
	idx := strings.Index(props, key+"='")
	if idx < 0 {
		return ""
	}
	rest := props[idx+len(key)+2:]
	end := strings.Index(rest, "'")
	if end < 0 {
		return ""
	}
	return rest[:end]
}

func volumeLine(percent int) string {
	raw := percent * 65536 / 100
	return fmt.Sprintf("front-left: %d / %3d%% / 0.00 dB,   front-right: %d / %3d%% / 0.00 dB", raw, percent, raw, percent)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func failure(msg string) error {
	return &pulse.CommandError{ExitCode: 1, Stderr: msg, Err: fmt.Errorf("exit status 1")}
}

func noEntity() error {
	return failure("Failure: No such entity")
}

var _ pulse.Executor = (*FakeServer)(nil)
