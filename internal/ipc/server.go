package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sort"
	"sync"
	"time"

	"log/slog"

	"icebox/internal/budget"
	"icebox/internal/daemon"
	"icebox/internal/library"
	"icebox/internal/logging"
	"icebox/internal/logs"
	"icebox/internal/tasks"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Icebox", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
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
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String("impact", "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
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

// Close stops the server and removes the socket file.
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
			logging.String("impact", "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually before restarting the daemon"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status, err := s.daemon.Status(s.ctx)
	if err != nil {
		return err
	}
	resp.Running = status.Running
	resp.PID = status.PID
	resp.LockPath = status.LockPath
	resp.LibraryDBPath = status.LibraryDBPath
	resp.TasksDBPath = status.TasksDBPath
	resp.LibraryID = status.LibraryID
	resp.LibraryName = status.LibraryName
	resp.StorageMode = status.StorageMode
	resp.CacheBudgetBytes = status.CacheBudgetBytes
	resp.AssetCount = status.Usage.AssetCount
	resp.LocalBytes = status.Usage.LocalBytes
	resp.LocalCount = status.Usage.LocalCount
	resp.CloudOnlyCount = status.Usage.CloudOnlyCount
	resp.Downloading = append(resp.Downloading, status.Downloading...)
	sort.Slice(resp.Downloading, func(i, j int) bool { return resp.Downloading[i] < resp.Downloading[j] })
	resp.ApplyingPolicy = status.ApplyingPolicy
	resp.WorkersRunning = status.Workflow.Running
	resp.LastError = status.Workflow.LastError
	resp.Queue = QueueHealthResponse{
		Total:     status.Workflow.Queue.Total,
		Queued:    status.Workflow.Queue.Queued,
		Running:   status.Workflow.Queue.Running,
		Succeeded: status.Workflow.Queue.Succeeded,
		Failed:    status.Workflow.Queue.Failed,
	}
	if len(status.Dependencies) > 0 {
		resp.Dependencies = make([]DependencyStatus, 0, len(status.Dependencies))
		for _, dep := range status.Dependencies {
			resp.Dependencies = append(resp.Dependencies, DependencyStatus{
				Name:        dep.Name,
				Command:     dep.Command,
				Description: dep.Description,
				Optional:    dep.Optional,
				Available:   dep.Available,
				Detail:      dep.Detail,
			})
		}
	}
	if len(status.Workflow.Stats) > 0 {
		resp.QueueStats = make(map[string]map[string]int, len(status.Workflow.Stats))
		for kind, counts := range status.Workflow.Stats {
			byStatus := make(map[string]int, len(counts))
			for st, n := range counts {
				byStatus[string(st)] = n
			}
			resp.QueueStats[string(kind)] = byStatus
		}
	}
	return nil
}

func (s *service) Import(req ImportRequest, resp *ImportResponse) error {
	if len(req.Sources) == 0 {
		return errors.New("import requires at least one source path")
	}
	s.log().Debug("import requested", logging.Int("source_count", len(req.Sources)))
	results, err := s.daemon.Import(s.ctx, req.Sources)
	if err != nil {
		return err
	}
	resp.Results = make([]ImportResult, 0, len(results))
	for _, result := range results {
		entry := ImportResult{Source: result.Source}
		if result.Asset != nil {
			entry.AssetID = result.Asset.ID
		}
		if result.Task != nil {
			entry.TaskID = result.Task.ID
		}
		if result.Err != nil {
			entry.Error = result.Err.Error()
		}
		resp.Results = append(resp.Results, entry)
	}
	return nil
}

func (s *service) Reconcile(_ ReconcileRequest, resp *ReconcileResponse) error {
	s.log().Debug("reconcile requested")
	report, err := s.daemon.Reconcile(s.ctx)
	if err != nil {
		return err
	}
	resp.Scanned = report.Scanned
	resp.Existing = report.Existing
	resp.Imported = report.Imported
	resp.Failed = report.Failed
	s.log().Info("reconcile finished",
		logging.String(logging.FieldEventType, "reconcile"),
		logging.Int("scanned", report.Scanned),
		logging.Int("imported", report.Imported))
	return nil
}

func (s *service) PolicyApply(_ PolicyApplyRequest, resp *PolicyResponse) error {
	s.log().Debug("policy apply requested")
	report, err := s.daemon.ApplyPolicy(s.ctx)
	if err != nil {
		return err
	}
	fillPolicyResponse(resp, report)
	return nil
}

func (s *service) PolicySet(req PolicySetRequest, resp *PolicyResponse) error {
	mode := library.StorageMode(req.Mode)
	if mode != library.ModeKeepAllLocal && mode != library.ModeOptimizeStorage {
		return fmt.Errorf("unknown storage mode %q", req.Mode)
	}
	s.log().Debug("policy change requested",
		logging.String("storage_mode", req.Mode),
		logging.Int64("budget_bytes", req.BudgetBytes))
	report, err := s.daemon.SetStoragePolicy(s.ctx, req.Mode, req.BudgetBytes)
	if err != nil {
		return err
	}
	fillPolicyResponse(resp, report)
	return nil
}

func (s *service) Assets(req AssetListRequest, resp *AssetListResponse) error {
	assets, err := s.daemon.Assets(s.ctx)
	if err != nil {
		return err
	}
	resp.Assets = make([]Asset, 0, len(assets))
	for _, asset := range assets {
		if asset == nil {
			continue
		}
		dto := FromAsset(asset)
		if req.WithPresence {
			state, err := s.daemon.AssetState(s.ctx, asset.ID)
			if err != nil {
				return err
			}
			dto.Presence = string(state)
		}
		resp.Assets = append(resp.Assets, dto)
	}
	return nil
}

func (s *service) Fetch(req FetchRequest, resp *FetchResponse) error {
	if req.AssetID <= 0 {
		return fmt.Errorf("invalid asset id %d", req.AssetID)
	}
	s.log().Debug("fetch requested", logging.Int64(logging.FieldAssetID, req.AssetID))
	state, err := s.daemon.Fetch(s.ctx, req.AssetID)
	if err != nil {
		return err
	}
	resp.State = string(state)
	return nil
}

func (s *service) AssetState(req AssetStateRequest, resp *AssetStateResponse) error {
	if req.AssetID <= 0 {
		return fmt.Errorf("invalid asset id %d", req.AssetID)
	}
	state, err := s.daemon.AssetState(s.ctx, req.AssetID)
	if err != nil {
		return err
	}
	resp.State = string(state)
	return nil
}

func (s *service) Pin(req PinRequest, resp *PinResponse) error {
	if req.AssetID <= 0 {
		return fmt.Errorf("invalid asset id %d", req.AssetID)
	}
	if err := s.daemon.SetPinned(s.ctx, req.AssetID, req.Pinned); err != nil {
		return err
	}
	resp.Pinned = req.Pinned
	s.log().Info("pin changed",
		logging.String(logging.FieldEventType, "pin_change"),
		logging.Int64(logging.FieldAssetID, req.AssetID),
		logging.Bool("pinned", req.Pinned))
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	statuses := make([]tasks.Status, 0, len(req.Statuses))
	for _, status := range req.Statuses {
		parsed, ok := tasks.ParseStatus(status)
		if !ok {
			continue
		}
		statuses = append(statuses, parsed)
	}
	items, err := s.daemon.ListTasks(s.ctx, statuses...)
	if err != nil {
		return err
	}
	resp.Tasks = make([]Task, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		resp.Tasks = append(resp.Tasks, FromTask(item))
	}
	return nil
}

func (s *service) QueueRetry(req QueueRetryRequest, resp *QueueRetryResponse) error {
	s.log().Debug("queue retry requested", logging.Int("task_count", len(req.IDs)))
	updated, err := s.daemon.RetryTasks(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("tasks retried",
		logging.String(logging.FieldEventType, "queue_retry"),
		logging.Int64("updated_count", updated))
	return nil
}

func (s *service) QueueClear(req QueueClearRequest, resp *QueueClearResponse) error {
	s.log().Debug("queue clear requested", logging.String("scope", req.Scope))
	var (
		removed int64
		err     error
	)
	switch req.Scope {
	case "", "all":
		removed, err = s.daemon.ClearTasks(s.ctx)
	case "succeeded":
		removed, err = s.daemon.ClearSucceededTasks(s.ctx)
	case "failed":
		removed, err = s.daemon.ClearFailedTasks(s.ctx)
	default:
		return fmt.Errorf("unknown clear scope %q", req.Scope)
	}
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("queue cleared",
		logging.String(logging.FieldEventType, "queue_clear"),
		logging.String("scope", req.Scope),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) QueueHealth(_ QueueHealthRequest, resp *QueueHealthResponse) error {
	health, err := s.daemon.TasksHealth(s.ctx)
	if err != nil {
		return err
	}
	resp.Total = health.Total
	resp.Queued = health.Queued
	resp.Running = health.Running
	resp.Succeeded = health.Succeeded
	resp.Failed = health.Failed
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

func fillPolicyResponse(resp *PolicyResponse, report budget.Report) {
	resp.Mode = string(report.Mode)
	resp.Coalesced = report.Coalesced
	resp.Hydrated = report.Hydrated
	resp.Examined = report.Examined
	resp.Evicted = report.Evicted
	resp.EvictedBytes = report.EvictedBytes
	resp.Skipped = report.Skipped
	resp.FinalLocalBytes = report.FinalLocalBytes
}
