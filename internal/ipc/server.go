package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mux/internal/daemon"
	"mux/internal/logging"
	"mux/internal/logs"
	"mux/internal/mixer"
	"mux/internal/routing"
	"mux/internal/services"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path. A stale
// socket file is replaced.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: serverCtx}
	if err := rpcServer.RegisterName(serviceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "CLI commands may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file. Connections still open
// finish their current call.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func parseChannelTrack(channel, track string) (mixer.Channel, mixer.Track, error) {
	ch, err := mixer.ParseChannel(channel)
	if err != nil {
		return "", "", services.Wrap(services.ErrValidation, "ipc", "parse", err.Error(), nil)
	}
	tr, err := mixer.ParseTrack(track)
	if err != nil {
		return "", "", services.Wrap(services.ErrValidation, "ipc", "parse", err.Error(), nil)
	}
	return ch, tr, nil
}

func (s *service) Start(_ Empty, resp *StartResponse) error {
	s.logger.Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.logger.Info("daemon started via IPC", logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

// Stop asks the hosting process to shut down; the reply is sent first.
func (s *service) Stop(_ Empty, resp *StopResponse) error {
	s.logger.Info("daemon shutdown requested via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	s.daemon.RequestShutdown()
	resp.Stopped = true
	return nil
}

func (s *service) Status(_ Empty, resp *StatusResponse) error {
	st := s.daemon.Status(s.ctx)
	*resp = StatusResponse{
		Running:          st.Running,
		PID:              st.PID,
		LockPath:         st.LockFilePath,
		SocketPath:       st.SocketPath,
		JournalPath:      st.JournalPath,
		LogPath:          st.LogPath,
		StatePath:        st.Engine.StatePath,
		HotplugMonitored: st.HotplugMonitored,
		Intent:           st.Engine.Intent,
		Channels:         st.Engine.Channels,
		Hotkeys:          st.Engine.Hotkeys,
		LastPass:         st.Engine.LastPass,
		LinksResolved:    st.Engine.Links,
		Dependencies:     st.Dependencies,
	}
	return nil
}

func (s *service) Volume(req VolumeRequest, resp *OutcomeResponse) error {
	ch, tr, err := parseChannelTrack(req.Channel, req.Track)
	if err != nil {
		return err
	}
	eng := s.daemon.Engine()
	if req.Relative {
		resp.Outcome, err = eng.AdjustVolume(s.ctx, ch, tr, req.Value)
	} else {
		resp.Outcome, err = eng.SetVolume(s.ctx, ch, tr, req.Value)
	}
	return err
}

func (s *service) ToggleMute(req MuteRequest, resp *OutcomeResponse) error {
	ch, tr, err := parseChannelTrack(req.Channel, req.Track)
	if err != nil {
		return err
	}
	resp.Outcome, err = s.daemon.Engine().ToggleMute(s.ctx, ch, tr)
	return err
}

func (s *service) MoveApplication(req MoveRequest, resp *OutcomeResponse) error {
	ch, err := mixer.ParseChannel(req.Channel)
	if err != nil {
		return services.Wrap(services.ErrValidation, "ipc", "move", err.Error(), nil)
	}
	resp.Outcome, err = s.daemon.Engine().MoveApplication(s.ctx, req.InputID, ch)
	return err
}

func (s *service) StreamerMode(req ModeRequest, resp *PassResponse) error {
	var (
		res routing.Result
		err error
	)
	if req.Toggle {
		res, err = s.daemon.Engine().ToggleStreamerMode(s.ctx)
	} else {
		res, err = s.daemon.Engine().SetStreamerMode(s.ctx, req.Enabled)
	}
	resp.Result = res
	return err
}

func (s *service) SelectDevices(req DevicesRequest, resp *PassResponse) error {
	res, err := s.daemon.Engine().SelectDevices(s.ctx, req.Output, req.Input)
	resp.Result = res
	return err
}

func (s *service) Reconcile(req ReconcileRequest, resp *PassResponse) error {
	res, err := s.daemon.Engine().Reconcile(s.ctx, req.Reason)
	resp.Result = res
	return err
}

func (s *service) HardwareDevices(_ Empty, resp *HardwareResponse) error {
	devs, err := s.daemon.Engine().HardwareDevices(s.ctx)
	if err != nil {
		return err
	}
	resp.Outputs, resp.Inputs = devs.Outputs, devs.Inputs
	return nil
}

func (s *service) BindHotkey(req BindRequest, resp *BindResponse) error {
	b, err := s.daemon.Engine().BindHotkey(mixer.Channel(req.Channel), mixer.Action(req.Action), req.Combo)
	if err != nil {
		return err
	}
	resp.Binding = b
	return nil
}

func (s *service) TriggerHotkey(req TriggerRequest, resp *TriggerResponse) error {
	n, err := s.daemon.Engine().TriggerHotkey(s.ctx, req.Combo)
	resp.Fired = n
	return err
}

func (s *service) Hotkeys(_ Empty, resp *HotkeysResponse) error {
	resp.Hotkeys = s.daemon.Engine().Hotkeys()
	return nil
}

func (s *service) SetInteraction(req InteractionRequest, _ *Empty) error {
	if req.App {
		s.daemon.Engine().SetAppDrag(req.Active)
		return nil
	}
	ch, tr, err := parseChannelTrack(req.Channel, req.Track)
	if err != nil {
		return err
	}
	s.daemon.Engine().SetInteraction(ch, tr, req.Active)
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	passes, err := s.daemon.Engine().History(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Passes = passes
	return nil
}

func (s *service) Events(req HistoryRequest, resp *EventsResponse) error {
	events, err := s.daemon.Engine().Events(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Events = events
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, s.daemon.LogPath(), logs.TailOptions{
		Offset:    req.Offset,
		Limit:     req.Limit,
		Follow:    req.Follow,
		Wait:      wait,
		Component: req.Component,
	})
	resp.Offset = result.Offset
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	return nil
}
