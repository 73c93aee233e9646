package kcube

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-apt/apt"
	"github.com/arloliu/go-apt/internal/pool"
	"github.com/arloliu/go-apt/internal/queue"
	"github.com/arloliu/go-apt/logger"
)

// cmdClass partitions commands into independent single-outstanding
// slots, following the controller's discipline: one immediate
// request/reply exchange, one long-running motion command, one stop.
type cmdClass int

const (
	classRequest cmdClass = iota
	classMotion
	// classStop is separate from classMotion so a stop can be issued
	// while a move is still in flight.
	classStop

	numCmdClasses
)

// expectedReply maps each reply-expecting command to its reply ID and
// class. Commands absent from this table are fire-and-forget.
var expectedReply = map[apt.MsgID]struct {
	reply apt.MsgID
	class cmdClass
}{
	apt.MsgHWReqInfo:             {apt.MsgHWGetInfo, classRequest},
	apt.MsgModReqChanEnableState: {apt.MsgModGetChanEnableState, classRequest},
	apt.MsgMotReqPosCounter:      {apt.MsgMotGetPosCounter, classRequest},
	apt.MsgMotReqVelParams:       {apt.MsgMotGetVelParams, classRequest},
	apt.MsgMotReqDCStatusUpdate:  {apt.MsgMotGetDCStatusUpdate, classRequest},

	apt.MsgMotMoveHome:     {apt.MsgMotMoveHomed, classMotion},
	apt.MsgMotMoveRelative: {apt.MsgMotMoveCompleted, classMotion},
	apt.MsgMotMoveAbsolute: {apt.MsgMotMoveCompleted, classMotion},

	apt.MsgMotMoveStop: {apt.MsgMotMoveStopped, classStop},
}

// sendRequest hands one frame to the sender task. sentChan, when
// non-nil, receives the write result exactly once.
type sendRequest struct {
	frame    *apt.Frame
	sentChan chan error
}

// pendingResult carries the outcome of one pending command.
type pendingResult struct {
	msg apt.Message
	err error
}

// pending is one issued command awaiting its reply. It is resolved
// exactly once: by reply match, deadline expiry, caller context end,
// a stop or fault event, or connection shutdown.
type pending struct {
	seq      uint64
	frame    *apt.Frame
	class    cmdClass
	reply    apt.MsgID
	timeout  time.Duration
	sentChan chan error
	result   chan pendingResult
	resolved atomic.Bool
}

// dispatcher owns command flow: the in-flight policy, reply matching,
// deadlines, and the hand-off of frames to the single sender task.
//
// One dispatcher per session; a closed dispatcher stays closed.
type dispatcher struct {
	ctx     context.Context
	cfg     *ConnectionConfig
	logger  logger.Logger
	metrics *ConnectionMetrics

	sendChan chan *sendRequest

	mu       sync.Mutex
	closed   bool
	seq      uint64
	inflight [numCmdClasses]*pending
	queues   [numCmdClasses]queue.Queue[*pending]

	// pendings registers every live pending by sequence number, the one
	// place that knows them all regardless of slot or queue position.
	pendings *xsync.MapOf[uint64, *pending]
}

func newDispatcher(ctx context.Context, cfg *ConnectionConfig, metrics *ConnectionMetrics) *dispatcher {
	d := &dispatcher{
		ctx:      ctx,
		cfg:      cfg,
		logger:   cfg.GetLogger(),
		metrics:  metrics,
		sendChan: make(chan *sendRequest, int(numCmdClasses)*cfg.CommandQueueSize()+4),
		pendings: xsync.NewMapOf[uint64, *pending](),
	}
	for i := range d.queues {
		d.queues[i] = queue.NewSliceQueue[*pending](cfg.CommandQueueSize())
	}

	return d
}

// issue registers a reply expectation, hands the frame to the sender and
// blocks until the reply arrives, the deadline expires, the caller's
// context ends, or the session dies. The sent return value reports
// whether the frame made it onto the wire, so motion callers can roll
// back a phase transition whose command never reached the device.
func (d *dispatcher) issue(ctx context.Context, frame *apt.Frame, timeout time.Duration) (apt.Message, bool, error) {
	exp, ok := expectedReply[frame.ID]
	if !ok {
		return nil, false, fmt.Errorf("kcube: message %s expects no reply", frame.ID)
	}

	p := &pending{
		frame:    frame,
		class:    exp.class,
		reply:    exp.reply,
		timeout:  timeout,
		sentChan: make(chan error, 1),
		result:   make(chan pendingResult, 1),
	}

	direct, err := d.register(p)
	if err != nil {
		return nil, false, err
	}

	if direct {
		if err := d.queueSend(ctx, &sendRequest{frame: p.frame, sentChan: p.sentChan}); err != nil {
			if d.resolve(p, pendingResult{err: err}) {
				d.finish(p)
			}

			return nil, false, err
		}
	}

	// Phase one: wait for the frame to hit the wire. Queued commands sit
	// here until promotion sends them.
	select {
	case werr := <-p.sentChan:
		if werr != nil {
			if d.resolve(p, pendingResult{err: werr}) {
				d.finish(p)
			}

			return nil, false, werr
		}
	case res := <-p.result:
		// Failed by fault, stop or shutdown before the write completed.
		return res.msg, false, res.err
	case <-ctx.Done():
		if d.resolve(p, pendingResult{err: ctx.Err()}) {
			d.finish(p)
			return nil, false, ctx.Err()
		}
		res := <-p.result

		return res.msg, false, res.err
	}

	// Phase two: the frame is on the wire, arm the reply deadline.
	timer := pool.AcquireTimer(p.timeout)
	defer pool.ReleaseTimer(timer)

	select {
	case res := <-p.result:
		return res.msg, true, res.err
	case <-timer.C:
		if d.resolve(p, pendingResult{err: ErrTimeout}) {
			d.metrics.incCommandTimeout()
			d.finish(p)

			return nil, true, ErrTimeout
		}
		res := <-p.result

		return res.msg, true, res.err
	case <-ctx.Done():
		if d.resolve(p, pendingResult{err: ctx.Err()}) {
			d.finish(p)
			return nil, true, ctx.Err()
		}
		res := <-p.result

		return res.msg, true, res.err
	}
}

// sendTracked serializes a fire-and-forget frame through the sender and
// waits for the write result.
func (d *dispatcher) sendTracked(ctx context.Context, frame *apt.Frame) error {
	req := &sendRequest{frame: frame, sentChan: make(chan error, 1)}
	if err := d.queueSend(ctx, req); err != nil {
		return err
	}

	select {
	case err := <-req.sentChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.ctx.Done():
		return ErrConnClosed
	}
}

// send serializes a fire-and-forget frame without waiting for the write.
func (d *dispatcher) send(frame *apt.Frame) error {
	return d.queueSend(d.ctx, &sendRequest{frame: frame})
}

// register places p in its class slot or queue per the in-flight policy.
// Returns true when p became the in-flight command and must be sent now.
func (d *dispatcher) register(p *pending) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false, ErrConnClosed
	}

	d.seq++
	p.seq = d.seq

	if d.inflight[p.class] == nil {
		d.inflight[p.class] = p
		d.pendings.Store(p.seq, p)
		d.metrics.incCommandInflight()

		return true, nil
	}

	if d.cfg.StrictInFlight() {
		return false, ErrBusy
	}
	if d.queues[p.class].Length() >= d.cfg.CommandQueueSize() {
		return false, ErrBusy
	}

	d.queues[p.class].Enqueue(p)
	d.pendings.Store(p.seq, p)
	d.metrics.incCommandInflight()

	return false, nil
}

// queueSend hands a frame to the sender task.
func (d *dispatcher) queueSend(ctx context.Context, req *sendRequest) error {
	select {
	case d.sendChan <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.ctx.Done():
		return ErrConnClosed
	}
}

// resolve completes p exactly once; the winner delivers the result and
// unregisters the pending. Returns false when p was already resolved.
func (d *dispatcher) resolve(p *pending, res pendingResult) bool {
	if !p.resolved.CompareAndSwap(false, true) {
		return false
	}

	d.pendings.Delete(p.seq)
	d.metrics.decCommandInflight()
	p.result <- res

	return true
}

// finish clears p from its class slot and promotes the next queued
// command. Entries resolved while still queued are skipped lazily; a
// promotion that cannot reach the sender fails its command instead of
// wedging the slot.
func (d *dispatcher) finish(p *pending) {
	var next *pending

	d.mu.Lock()
	if d.inflight[p.class] == p {
		d.inflight[p.class] = nil
		if !d.closed {
			for {
				q, ok := d.queues[p.class].Dequeue()
				if !ok {
					break
				}
				if q.resolved.Load() {
					continue
				}
				d.inflight[p.class] = q
				next = q

				break
			}
		}
	}
	d.mu.Unlock()

	if next == nil {
		return
	}

	if err := d.queueSend(d.ctx, &sendRequest{frame: next.frame, sentChan: next.sentChan}); err != nil {
		d.logger.Debug("failed to promote queued command", "msg", next.frame.ID, "error", err)
		if d.resolve(next, pendingResult{err: ErrConnClosed}) {
			d.finish(next)
		}
	}
}

// match resolves the in-flight command expecting msg's ID. Returns true
// when a pending consumed the message. A stopped event additionally
// fails the in-flight motion command, whose completion will never
// arrive.
func (d *dispatcher) match(msg apt.Message) bool {
	id := msg.MsgID()

	if id == apt.MsgMotMoveStopped {
		d.failClass(classMotion, ErrStopped)
	}

	d.mu.Lock()
	var hit *pending
	for _, p := range d.inflight {
		if p != nil && !p.resolved.Load() && p.reply == id {
			hit = p
			break
		}
	}
	d.mu.Unlock()

	if hit == nil {
		return false
	}

	if d.resolve(hit, pendingResult{msg: msg}) {
		d.finish(hit)
		return true
	}

	return false
}

// failClass resolves the in-flight and queued commands of one class
// with err.
func (d *dispatcher) failClass(class cmdClass, err error) {
	var victims []*pending

	d.mu.Lock()
	if p := d.inflight[class]; p != nil {
		victims = append(victims, p)
	}
	for {
		q, ok := d.queues[class].Dequeue()
		if !ok {
			break
		}
		victims = append(victims, q)
	}
	d.mu.Unlock()

	for _, p := range victims {
		if d.resolve(p, pendingResult{err: err}) {
			d.finish(p)
		}
	}
}

// failAll resolves every live pending with err. The dispatcher keeps
// accepting commands: a device fault invalidates outstanding work, but
// the session survives for ClearFault and recovery.
func (d *dispatcher) failAll(err error) {
	d.mu.Lock()
	for i := range d.inflight {
		d.inflight[i] = nil
	}
	for i := range d.queues {
		d.queues[i].Reset()
	}
	d.mu.Unlock()

	d.pendings.Range(func(_ uint64, p *pending) bool {
		d.resolve(p, pendingResult{err: err})
		return true
	})
}

// shutdown fails every live pending and rejects all further commands.
// A closed dispatcher stays closed; a fresh session builds a fresh one.
func (d *dispatcher) shutdown(err error) {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.failAll(err)
}
