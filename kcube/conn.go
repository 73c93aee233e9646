package kcube

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-apt/apt"
	"github.com/arloliu/go-apt/internal/task"
	"github.com/arloliu/go-apt/logger"
	"github.com/arloliu/go-apt/serialport"
)

// pollTimeout is the serial read timeout of the reader task: short
// enough to notice shutdown promptly, long enough to keep polling cheap.
const pollTimeout = 50 * time.Millisecond

// stopUpdatesGrace bounds the best-effort HW_STOP_UPDATEMSGS write
// during Close.
const stopUpdatesGrace = 250 * time.Millisecond

// Connection drives one K-Cube controller over one serial port.
//
// It owns the port exclusively: a single reader task feeds the decoder
// and dispatches decoded messages, a single sender task serializes all
// writes, and an interval task keeps the controller's status stream
// alive. Use [Connection.Stage] for motion and query operations.
type Connection struct {
	pctx      context.Context
	ctx       context.Context
	ctxCancel context.CancelFunc
	cfg       *ConnectionConfig
	logger    logger.Logger

	opState atomicOpState

	portMu sync.RWMutex
	port   serialport.Port

	taskMgr *task.Manager
	engine  *motionEngine
	stage   *Stage

	// Session components, rebuilt on every Open.
	disp    *dispatcher
	decoder *apt.Decoder

	info   atomic.Pointer[apt.HWInfo]
	ioDead atomic.Bool

	// sendBuf is the sender task's reusable encode buffer.
	sendBuf []byte

	metrics ConnectionMetrics
}

// NewConnection creates a new Connection with the given context and
// configuration. The context bounds the whole lifetime of the
// connection, including reopen cycles.
func NewConnection(ctx context.Context, cfg *ConnectionConfig) (*Connection, error) {
	if cfg == nil {
		return nil, ErrConnConfigNil
	}

	c := &Connection{
		pctx:    ctx,
		cfg:     cfg,
		logger:  cfg.GetLogger(),
		taskMgr: task.NewManager(ctx, cfg.GetLogger()),
		engine:  newMotionEngine(cfg.GetConverter()),
	}
	c.stage = &Stage{conn: c}
	c.opState.set(closedState)
	c.createContext()

	return c, nil
}

// Stage returns the motion and query API bound to this connection.
func (c *Connection) Stage() *Stage {
	return c.stage
}

// GetLogger returns the logger associated with the connection.
func (c *Connection) GetLogger() logger.Logger {
	return c.logger
}

// GetMetrics returns the metrics associated with the connection.
func (c *Connection) GetMetrics() *ConnectionMetrics {
	return &c.metrics
}

// IsOpened reports whether the connection completed its open sequence
// and has not failed or closed since.
func (c *Connection) IsOpened() bool {
	return c.opState.isOpened() && !c.ioDead.Load()
}

// Open opens the serial port, starts the reader, sender and keepalive
// tasks, and runs the device init sequence: identity check, channel
// enable, telemetry activation, and an initial status report that seeds
// the motion state.
//
// If waitReady is true, Open blocks until the init sequence finishes or
// the open timeout expires. If false, the init sequence runs in the
// background and the connection reports opened once it completes.
//
// Open on an already-open connection fails.
func (c *Connection) Open(waitReady bool) error {
	if !c.opState.toOpening() {
		return fmt.Errorf("kcube: connection already open (state %s)", c.opState.String())
	}

	c.ioDead.Store(false)
	c.createContext()
	c.engine.reset()
	c.disp = newDispatcher(c.ctx, c.cfg, &c.metrics)
	c.decoder = apt.NewDecoder()

	if err := c.openPort(); err != nil {
		c.cleanupFailedOpen()
		return err
	}

	if err := c.startTasks(); err != nil {
		c.cleanupFailedOpen()
		return fmt.Errorf("kcube: start tasks: %w", err)
	}

	if waitReady {
		initCtx, cancel := context.WithTimeout(c.ctx, c.cfg.OpenTimeout())
		defer cancel()

		if err := c.initSequence(initCtx); err != nil {
			c.cleanupFailedOpen()
			return err
		}

		if !c.opState.toOpened() {
			return fmt.Errorf("kcube: failed to set connection to opened state: %s", c.opState.String())
		}

		return nil
	}

	err := c.taskMgr.Start("kcubeInit", func() bool {
		initCtx, cancel := context.WithTimeout(c.ctx, c.cfg.OpenTimeout())
		defer cancel()

		if err := c.initSequence(initCtx); err != nil {
			c.logger.Error("init sequence failed", "error", err)
			c.fatal(err)

			return false
		}

		if !c.opState.toOpened() {
			c.logger.Warn("failed to set connection to opened state", "opState", c.opState.String())
		}

		return false
	})
	if err != nil {
		c.cleanupFailedOpen()
		return fmt.Errorf("kcube: start init task: %w", err)
	}

	return nil
}

// Close shuts the connection down: fails every pending command with
// ErrCancelled, stops all tasks, and closes the port. Closing a closed
// connection is a no-op.
func (c *Connection) Close() error {
	c.logger.Debug("start to close connection", "opState", c.opState.String())

	return c.closeConn(c.cfg.CloseTimeout())
}

func (c *Connection) createContext() {
	c.ctx, c.ctxCancel = context.WithCancel(c.pctx)
}

func (c *Connection) openPort() error {
	port := c.cfg.Port()
	if port == nil {
		var err error
		port, err = serialport.Open(c.cfg.PortName(), serialport.WithBaudRate(c.cfg.BaudRate()))
		if err != nil {
			return err
		}
	}

	if err := port.SetReadTimeout(pollTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("kcube: set read timeout: %w", err)
	}

	// Drop whatever the controller streamed into the OS buffer before we
	// attached; the decoder would only resynchronize over it.
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return fmt.Errorf("kcube: reset input buffer: %w", err)
	}

	c.setPort(port)

	return nil
}

func (c *Connection) startTasks() error {
	if err := c.taskMgr.StartReceiver("kcubeReader", c.readerIteration, nil); err != nil {
		return err
	}

	if err := task.StartSender(c.taskMgr, "kcubeSender", c.senderIteration, nil, c.disp.sendChan); err != nil {
		return err
	}

	_, err := c.taskMgr.StartInterval("kcubeStatusAck", c.keepaliveIteration, c.cfg.StatusInterval(), false)

	return err
}

// cleanupFailedOpen rolls a half-open connection back to closed.
func (c *Connection) cleanupFailedOpen() {
	if err := c.closeConn(c.cfg.CloseTimeout()); err != nil {
		c.logger.Warn("cleanup after failed open", "error", err)
	}
}

// closeConn performs the full closing sequence: best-effort status
// stream shutdown, pending cancellation, context cancel, port close,
// and a bounded wait for task termination.
func (c *Connection) closeConn(timeout time.Duration) error {
	if !c.opState.toClosing() {
		if c.opState.isClosed() {
			return nil
		}

		c.logger.Warn("failed to set connection to closing state", "opState", c.opState.String())

		return fmt.Errorf("kcube: failed to set connection to closing state: %s", c.opState.String())
	}

	// Ask the controller to stop streaming before the sender dies. Best
	// effort: a dead port just runs out the grace period.
	if c.disp != nil && !c.ioDead.Load() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopUpdatesGrace)
		_ = c.disp.sendTracked(stopCtx, apt.NewStopUpdateMsgs(c.cfg.Destination()))
		stopCancel()
	}

	if c.disp != nil {
		c.disp.shutdown(ErrCancelled)
	}
	c.engine.markClosed()

	closeCtx, closeCtxCancel := context.WithTimeout(context.Background(), timeout)
	defer closeCtxCancel()

	if c.ctxCancel != nil {
		c.ctxCancel()
	}

	c.closePort()

	c.taskMgr.Stop()

	// Wait for task termination with timeout.
	go func() {
		c.taskMgr.Wait()
		closeCtxCancel()
	}()

	<-closeCtx.Done()

	var closeErr error
	if !errors.Is(closeCtx.Err(), context.Canceled) {
		c.logger.Error("close timeout", "error", closeCtx.Err(), "timeout", timeout)
		closeErr = fmt.Errorf("kcube: close timeout: %w", closeCtx.Err())
	}

	if !c.opState.toClosed() {
		c.logger.Warn("failed to set connection to closed state", "opState", c.opState.String())

		return fmt.Errorf("kcube: failed to set connection to closed state: %s", c.opState.String())
	}

	c.logger.Debug("connection closed", "port", c.cfg.PortName())

	return closeErr
}

// fatal marks the session dead after an unrecoverable I/O failure:
// every pending fails with ErrConnClosed and the session context ends.
// The port and tasks are torn down by the Close call that must follow.
func (c *Connection) fatal(err error) {
	if !c.ioDead.CompareAndSwap(false, true) {
		return
	}

	c.logger.Error("connection failed", "error", err)

	if c.disp != nil {
		c.disp.shutdown(ErrConnClosed)
	}
	c.engine.markClosed()
	c.ctxCancel()
}

// --- Port resource management ---

func (c *Connection) setPort(port serialport.Port) {
	c.portMu.Lock()
	defer c.portMu.Unlock()

	c.port = port
}

func (c *Connection) getPort() serialport.Port {
	c.portMu.RLock()
	defer c.portMu.RUnlock()

	return c.port
}

func (c *Connection) closePort() {
	c.portMu.Lock()
	port := c.port
	c.port = nil
	c.portMu.Unlock()

	if port == nil {
		return
	}

	if err := port.Close(); err != nil && !errors.Is(err, serialport.ErrPortClosed) {
		c.logger.Error("failed to close serial port", "error", err)
	}
}

// --- Tasks ---

// readerIteration reads one chunk from the port, feeds the decoder and
// dispatches every complete message in arrival order.
func (c *Connection) readerIteration(buf []byte) bool {
	port := c.getPort()
	if port == nil {
		return false
	}

	n, err := port.Read(buf)
	if err != nil {
		if c.ctx.Err() != nil {
			return false
		}

		c.fatal(fmt.Errorf("kcube: read: %w", err))

		return false
	}

	if n == 0 {
		// Poll timeout; nothing arrived.
		return true
	}

	_, _ = c.decoder.Write(buf[:n])

	for {
		msg, ok := c.decoder.Next()
		if !ok {
			break
		}

		c.handleMessage(msg)
	}

	return true
}

// senderIteration writes one frame to the port. All writes go through
// here, so frames are never interleaved.
func (c *Connection) senderIteration(req *sendRequest) bool {
	if req == nil {
		return true
	}

	port := c.getPort()
	if port == nil {
		c.signalSent(req, ErrConnClosed)
		return false
	}

	c.sendBuf = req.frame.AppendTo(c.sendBuf[:0])

	if _, err := port.Write(c.sendBuf); err != nil {
		werr := fmt.Errorf("kcube: write: %w", err)
		c.signalSent(req, werr)
		if c.ctx.Err() == nil {
			c.fatal(werr)
		}

		return false
	}

	c.metrics.incFrameSend()
	c.logger.Debug("frame sent", "msg", req.frame.ID.String())
	c.signalSent(req, nil)

	return true
}

func (c *Connection) signalSent(req *sendRequest, err error) {
	if req.sentChan != nil {
		req.sentChan <- err
	}
}

// keepaliveIteration sends the status acknowledgment the controller
// requires to keep streaming update messages.
func (c *Connection) keepaliveIteration() bool {
	if err := c.disp.send(apt.NewAckDCStatusUpdate(c.cfg.Destination())); err != nil {
		return false
	}

	return true
}

// --- Message handling ---

// handleMessage routes one decoded message. State goes to the motion
// engine before reply matching so a caller woken by its reply observes
// the already-updated state.
func (c *Connection) handleMessage(msg apt.Message) {
	if m, ok := msg.(*apt.MalformedFrame); ok {
		c.metrics.addMalformed(m.Discarded)
		c.logger.Warn("resynchronized after malformed input", "discarded", m.Discarded, "reason", m.Reason)

		return
	}

	c.metrics.incFrameRecv()

	switch m := msg.(type) {
	case *apt.DCStatusUpdate:
		c.metrics.incStatusUpdate()
		if fe := c.engine.onStatus(m.Status); fe != nil {
			c.onFault(fe)
		}
		// Also answers MOT_REQ_DCSTATUSUPDATE; unmatched updates are the
		// normal periodic stream.
		c.disp.match(msg)

	case *apt.Homed:
		c.engine.onHomed()
		c.matchReply(msg)

	case *apt.MoveCompleted:
		if fe := c.engine.onMoveEnded(m.Status); fe != nil {
			c.onFault(fe)
		}
		c.matchReply(msg)

	case *apt.MoveStopped:
		if fe := c.engine.onMoveEnded(m.Status); fe != nil {
			c.onFault(fe)
		}
		c.matchReply(msg)

	case *apt.PosCounter:
		c.engine.onPosCounter(m.Position)
		c.matchReply(msg)

	case *apt.ChanEnableState:
		c.engine.onEnableState(m.Enabled)
		c.matchReply(msg)

	case *apt.HWInfo:
		c.info.Store(m)
		c.matchReply(msg)

	case *apt.VelParams:
		c.matchReply(msg)

	case *apt.HWResponse:
		fe := newResponseFault(m.Code, "")
		c.engine.enterFault(fe.Record)
		c.onFault(fe)

	case *apt.HWRichResponse:
		fe := newResponseFault(m.Code, m.Notes)
		c.engine.enterFault(fe.Record)
		c.onFault(fe)

	case *apt.Disconnect:
		c.fatal(errors.New("kcube: device requested disconnect"))

	default:
		c.logger.Debug("unhandled message", "msg", msg.MsgID().String())
	}
}

// matchReply hands msg to the dispatcher and logs replies nothing was
// waiting for, such as a completion arriving after its command timed
// out.
func (c *Connection) matchReply(msg apt.Message) {
	if !c.disp.match(msg) {
		c.logger.Debug("unmatched reply", "msg", msg.MsgID().String())
	}
}

// onFault records a fault event: outstanding commands cannot complete
// once the controller is faulted, so all of them fail with the fault.
func (c *Connection) onFault(fe *FaultError) {
	c.metrics.incFault()
	c.logger.Error("device fault",
		"category", fe.Record.Category.String(),
		"code", fe.Record.Code,
		"bits", fe.Record.Bits.String(),
		"notes", fe.Record.Notes)
	c.disp.failAll(fe)
}

// --- Init sequence ---

// initSequence brings the controller into a known state, the probe
// order the vendor's own software uses: identify the hardware, energize
// the channel and verify it took, enable completion and status
// telemetry, then seed the state machine with one explicit report.
func (c *Connection) initSequence(ctx context.Context) error {
	dest := c.cfg.Destination()
	ch := c.channelByte()

	msg, _, err := c.disp.issue(ctx, apt.NewReqHWInfo(dest), c.cfg.ReplyTimeout())
	if err != nil {
		return fmt.Errorf("kcube: hardware info query failed: %w", err)
	}

	info, ok := msg.(*apt.HWInfo)
	if !ok {
		return fmt.Errorf("kcube: unexpected reply %s to hardware info query", msg.MsgID().String())
	}

	if want := c.cfg.ExpectedModel(); want != "" && info.Model != want {
		return fmt.Errorf("%w: connected to %q, expected %q", ErrModelMismatch, info.Model, want)
	}

	c.logger.Info("controller identified",
		"model", info.Model,
		"serial", info.SerialNumber,
		"firmware", info.FirmwareVersion)

	if err := c.disp.sendTracked(ctx, apt.NewSetChanEnableState(dest, ch, true)); err != nil {
		return fmt.Errorf("kcube: enable channel: %w", err)
	}

	msg, _, err = c.disp.issue(ctx, apt.NewReqChanEnableState(dest, ch), c.cfg.ReplyTimeout())
	if err != nil {
		return fmt.Errorf("kcube: enable state query failed: %w", err)
	}

	if st, ok := msg.(*apt.ChanEnableState); !ok || !st.Enabled {
		return errors.New("kcube: channel enable verification failed")
	}

	if err := c.disp.sendTracked(ctx, apt.NewResumeEndOfMoveMsgs(dest)); err != nil {
		return fmt.Errorf("kcube: resume end of move messages: %w", err)
	}

	if err := c.disp.sendTracked(ctx, apt.NewStartUpdateMsgs(dest)); err != nil {
		return fmt.Errorf("kcube: start update messages: %w", err)
	}

	// The reply seeds the motion engine on the reader task before issue
	// returns.
	if _, _, err := c.disp.issue(ctx, apt.NewReqDCStatusUpdate(dest, ch), c.cfg.ReplyTimeout()); err != nil {
		return fmt.Errorf("kcube: status query failed: %w", err)
	}

	return nil
}

// --- Gates ---

// sessionValid reports whether status queries may be served: the
// connection is opening or opened and has not died.
func (c *Connection) sessionValid() bool {
	if c.ioDead.Load() {
		return false
	}

	st := c.opState.get()

	return st == openedState || st == openingState
}

// requireOpened gates command-issuing operations.
func (c *Connection) requireOpened() error {
	if !c.IsOpened() {
		return ErrConnClosed
	}

	return nil
}

func (c *Connection) channelByte() byte {
	return byte(c.cfg.Channel()) //nolint:gosec // channel is validated to [1, MaxChannel]
}
