// Package session drives one bidirectional Cursor AgentService session: it
// sequences outbound appends, demultiplexes the inbound frame stream into
// events, answers server blob reads and writes, accounts heartbeats, and
// recovers assistant output that the server persisted to blobs instead of
// streaming. One session serves exactly one inbound OpenAI request.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/cursor-proxy/CursorProxyAPI/internal/agent"
	"github.com/cursor-proxy/CursorProxyAPI/internal/bridge"
	"github.com/cursor-proxy/CursorProxyAPI/internal/wire"
)

// States of the session lifecycle.
const (
	StateOpening int32 = iota
	StateStreaming
	StateAwaitingTool
	StateClosing
	StateClosed
)

// ErrSessionClosed rejects outbound sends after the session closed.
var ErrSessionClosed = errors.New("session: closed")

// Transport abstracts the two HTTP calls of a session so tests can fake
// the server side.
type Transport interface {
	// OpenStream issues the RunSSE call and returns the streaming
	// response body (the inbound channel).
	OpenStream(ctx context.Context, requestID string, body []byte) (io.ReadCloser, error)

	// Append issues one unary BidiAppend call (the outbound channel).
	Append(ctx context.Context, requestID string, body []byte) error
}

// IdlePolicy holds the heartbeat starvation thresholds, split by whether
// the session has produced a progress event yet.
type IdlePolicy struct {
	IdleNoProgress        time.Duration
	IdleAfterProgress     time.Duration
	MaxBeatsNoProgress    int
	MaxBeatsAfterProgress int
}

// DefaultIdlePolicy mirrors the production thresholds.
func DefaultIdlePolicy() IdlePolicy {
	return IdlePolicy{
		IdleNoProgress:        180 * time.Second,
		IdleAfterProgress:     120 * time.Second,
		MaxBeatsNoProgress:    1000,
		MaxBeatsAfterProgress: 1000,
	}
}

type idleTracker struct {
	lastProgress time.Time
	beats        int
	anyProgress  bool
}

func (t *idleTracker) progress(now time.Time) {
	t.lastProgress = now
	t.beats = 0
	t.anyProgress = true
}

// heartbeat records one heartbeat frame and reports whether the session
// should force-close as if the turn ended.
func (t *idleTracker) heartbeat(now time.Time, policy IdlePolicy) bool {
	t.beats++
	idle := policy.IdleNoProgress
	maxBeats := policy.MaxBeatsNoProgress
	if t.anyProgress {
		idle = policy.IdleAfterProgress
		maxBeats = policy.MaxBeatsAfterProgress
	}
	return now.Sub(t.lastProgress) >= idle || t.beats >= maxBeats
}

// Options configures one session.
type Options struct {
	Transport Transport
	Run       agent.RunOptions

	// Deadline is the wall-clock limit for the whole session; zero means
	// the 120s default.
	Deadline time.Duration

	Idle IdlePolicy

	// Timing enables per-session timing logs.
	Timing bool
}

// Session is one live Cursor agent session. The inbound reader goroutine
// and outbound senders share the append counter, blob store, and pending
// exec map behind small mutexes; no lock is held across a suspension
// point other than the outbound ordering mutex, which serializes
// BidiAppend calls by design of the append sequence.
type Session struct {
	id         string
	requestID  string
	transport  Transport
	deadline   time.Duration
	idlePolicy IdlePolicy
	timing     bool
	run        agent.RunOptions

	// sendMu serializes outbound appends so append_seqno observes a
	// strict, gap-free total order on the wire.
	sendMu sync.Mutex
	seqno  int64

	mu              sync.Mutex
	pending         map[string]*agent.ExecRequest
	assistantBlobs  []string
	sawStreamedText bool
	tracker         idleTracker

	state atomic.Int32
	blobs *BlobStore

	events chan Event
	errs   chan error
	// done closes on shutdown so emit never blocks on a consumer that
	// walked away.
	done     chan struct{}
	doneOnce sync.Once
	cancel   context.CancelFunc
	started  time.Time
}

// New creates a session. The session id seeds the synthetic tool_call ids
// handed to OpenAI clients; the request id identifies both HTTP calls.
func New(opts Options) *Session {
	if opts.Deadline <= 0 {
		opts.Deadline = 120 * time.Second
	}
	if opts.Idle == (IdlePolicy{}) {
		opts.Idle = DefaultIdlePolicy()
	}
	return &Session{
		id:         strings.ReplaceAll(uuid.New().String(), "-", "")[:12],
		requestID:  uuid.New().String(),
		transport:  opts.Transport,
		deadline:   opts.Deadline,
		idlePolicy: opts.Idle,
		timing:     opts.Timing,
		run:        opts.Run,
		pending:    make(map[string]*agent.ExecRequest),
		blobs:      NewBlobStore(),
		events:     make(chan Event, 64),
		errs:       make(chan error, 1),
		done:       make(chan struct{}),
	}
}

// ID returns the short session id embedded in tool_call ids.
func (s *Session) ID() string {
	return s.id
}

// RequestID returns the wire request id shared by both HTTP calls.
func (s *Session) RequestID() string {
	return s.requestID
}

// State returns the current lifecycle state.
func (s *Session) State() int32 {
	return s.state.Load()
}

// Seqno returns the next append sequence number (for tests and timing logs).
func (s *Session) Seqno() int64 {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.seqno
}

// Run opens the inbound stream and sends the initial run request, then
// demultiplexes frames until the turn ends. Events and errors are
// delivered on the returned channels; the event channel closes when the
// session reaches the closed state.
func (s *Session) Run(ctx context.Context) (<-chan Event, <-chan error) {
	runCtx, cancel := context.WithTimeout(ctx, s.deadline)
	s.cancel = cancel
	s.started = time.Now()
	s.mu.Lock()
	s.tracker.lastProgress = s.started
	s.mu.Unlock()

	go s.loop(runCtx)
	return s.events, s.errs
}

// Close aborts the inbound reader and drops all pending exec requests.
// Subsequent outbound sends fail with ErrSessionClosed.
func (s *Session) Close() {
	s.shutdown()
}

func (s *Session) shutdown() {
	s.doneOnce.Do(func() { close(s.done) })
	if s.state.Swap(StateClosed) == StateClosed {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	dropped := len(s.pending)
	s.pending = make(map[string]*agent.ExecRequest)
	s.mu.Unlock()
	if dropped > 0 {
		log.Debugf("session %s closed with %d pending exec requests dropped", s.id, dropped)
	}
	if s.timing {
		log.Infof("session %s finished in %s after %d appends", s.id, time.Since(s.started).Round(time.Millisecond), s.Seqno())
	}
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.events)
	defer s.shutdown()

	stream, err := s.transport.OpenStream(ctx, s.requestID, wire.EncodeFrame(agent.EncodeBidiRequestID(s.requestID)))
	if err != nil {
		s.fail(fmt.Errorf("failed to open agent stream: %w", err))
		return
	}
	defer func() {
		_ = stream.Close()
	}()

	// The first append must carry the run request before anything else
	// goes out.
	if err = s.append(ctx, agent.EncodeRunRequest(s.run)); err != nil {
		s.fail(fmt.Errorf("failed to send run request: %w", err))
		return
	}
	s.state.Store(StateStreaming)

	reader := wire.NewFrameReader(stream)
	for {
		frame, errNext := reader.Next()
		if errNext != nil {
			if errNext == io.EOF {
				// Stream ended without a turn end; treat as a closed turn.
				s.finishTurn(true)
				return
			}
			if ctx.Err() != nil {
				s.fail(fmt.Errorf("session deadline exceeded: %w", ctx.Err()))
				return
			}
			s.fail(errNext)
			return
		}
		if frame.IsTrailer() {
			if errTrailer := wire.ParseTrailer(frame.Payload); errTrailer != nil {
				// A non-zero trailer status closes the session without a
				// turn end.
				s.fail(errTrailer)
				return
			}
			continue
		}
		msg, errParse := agent.ParseServerMessage(frame.Payload)
		if errParse != nil {
			s.fail(errParse)
			return
		}
		if done := s.dispatch(ctx, msg); done {
			return
		}
	}
}

// dispatch handles one inbound message; it returns true once the turn is
// over and the loop should stop.
func (s *Session) dispatch(ctx context.Context, msg *agent.ServerMessage) bool {
	switch {
	case msg.Interaction != nil:
		return s.handleInteraction(msg.Interaction)
	case msg.Exec != nil:
		s.handleExec(msg.Exec)
	case msg.Kv != nil:
		s.handleKv(ctx, msg.Kv)
	case msg.Checkpoint != nil:
		s.markProgress()
		s.emit(CheckpointEvent{})
	case msg.AbortID != nil:
		s.markProgress()
		s.emit(AbortEvent{ExecID: *msg.AbortID})
	case msg.Query != nil:
		s.markProgress()
		log.Debugf("session %s received interaction query (%d bytes)", s.id, len(msg.Query))
	}
	return false
}

func (s *Session) handleInteraction(update *agent.InteractionUpdate) bool {
	if update.TextDelta != nil {
		s.markProgress()
		s.markStreamedText(*update.TextDelta)
		s.emit(TextEvent{Text: *update.TextDelta})
	}
	if update.TokenDelta != nil {
		s.markProgress()
		s.markStreamedText(*update.TokenDelta)
		s.emit(TextEvent{Text: *update.TokenDelta})
	}
	if call := update.ToolCallStarted; call != nil {
		s.markProgress()
		s.emit(ToolCallBeginEvent{CallID: call.CallID, Name: call.Name, Args: call.Args})
	}
	if partial := update.PartialToolCall; partial != nil {
		s.markProgress()
		s.emit(ToolCallDeltaEvent{CallID: partial.CallID, ArgsDelta: partial.ArgsTextDelta})
	}
	if call := update.ToolCallCompleted; call != nil {
		s.markProgress()
		s.emit(ToolCallEndEvent{CallID: call.CallID, Name: call.Name, Args: call.Args})
	}
	if update.Heartbeat {
		s.mu.Lock()
		starved := s.tracker.heartbeat(time.Now(), s.idlePolicy)
		beats := s.tracker.beats
		s.mu.Unlock()
		if starved {
			log.Warnf("session %s heartbeat starvation after %d beats, forcing turn end", s.id, beats)
			s.finishTurn(true)
			return true
		}
	}
	if update.TurnEnded {
		s.finishTurn(false)
		return true
	}
	return false
}

func (s *Session) handleExec(req *agent.ExecRequest) {
	s.markProgress()
	if req.Type == "" {
		log.Warnf("session %s received unknown exec request variant (id=%d), ignoring", s.id, req.ID)
		return
	}
	callID := bridge.MakeToolCallID(s.id, req)
	s.mu.Lock()
	s.pending[callID] = req
	s.mu.Unlock()
	s.state.Store(StateAwaitingTool)

	name, args := bridge.MapExec(req)
	s.emit(ExecEvent{ToolCallID: callID, Name: name, Arguments: args})
}

func (s *Session) handleKv(ctx context.Context, req *agent.KvRequest) {
	s.markProgress()
	switch {
	case req.Get != nil:
		data, _ := s.blobs.Get(req.Get.BlobID)
		if err := s.append(ctx, agent.EncodeGetBlobResult(req.ID, data)); err != nil {
			log.Warnf("session %s failed to answer get_blob: %v", s.id, err)
		}
	case req.Set != nil:
		s.blobs.Set(req.Set.BlobID, req.Set.BlobData)
		if texts := ExtractAssistantTexts(req.Set.BlobData); len(texts) > 0 {
			s.mu.Lock()
			s.assistantBlobs = append(s.assistantBlobs, texts...)
			s.mu.Unlock()
		}
		if err := s.append(ctx, agent.EncodeSetBlobResult(req.ID)); err != nil {
			log.Warnf("session %s failed to acknowledge set_blob: %v", s.id, err)
		}
	}
}

// SendToolResult routes an OpenAI tool result back to its pending exec
// request and sends the (result, stream_close) append pair contiguously.
func (s *Session) SendToolResult(ctx context.Context, toolCallID, content string) error {
	if s.state.Load() == StateClosed {
		return ErrSessionClosed
	}
	s.mu.Lock()
	req, ok := s.pending[toolCallID]
	if ok {
		delete(s.pending, toolCallID)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s has no pending exec for %s", s.id, toolCallID)
	}

	result, streamClose, err := bridge.BuildResultMessages(req, content)
	if err != nil {
		return err
	}
	if err = s.appendPair(ctx, result, streamClose); err != nil {
		return err
	}
	s.state.CompareAndSwap(StateAwaitingTool, StateStreaming)
	return nil
}

// append reserves the next sequence number and sends one client message.
func (s *Session) append(ctx context.Context, clientMessage []byte) error {
	return s.appendPair(ctx, clientMessage)
}

// appendPair sends the given client messages back to back under the
// outbound ordering mutex, so a (result, stream_close) pair for one exec
// id is contiguous on the wire.
func (s *Session) appendPair(ctx context.Context, clientMessages ...[]byte) error {
	if s.state.Load() == StateClosed {
		return ErrSessionClosed
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	for _, msg := range clientMessages {
		body := wire.EncodeFrame(agent.EncodeBidiAppend(s.requestID, s.seqno, msg))
		if err := s.transport.Append(ctx, s.requestID, body); err != nil {
			return fmt.Errorf("append %d failed: %w", s.seqno, err)
		}
		s.seqno++
	}
	return nil
}

// finishTurn runs assistant recovery, emits the turn end, and closes.
func (s *Session) finishTurn(forced bool) {
	s.state.Store(StateClosing)

	s.mu.Lock()
	recovered := []string(nil)
	if !s.sawStreamedText && len(s.assistantBlobs) > 0 {
		recovered = append(recovered, s.assistantBlobs...)
	}
	s.mu.Unlock()
	for _, text := range recovered {
		s.emit(TextEvent{Text: text, Synthetic: true})
	}
	if len(recovered) > 0 {
		log.Infof("session %s recovered %d assistant blob(s) for a silent turn", s.id, len(recovered))
	}

	s.emit(TurnEndEvent{Forced: forced})
	s.shutdown()
}

func (s *Session) fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

// emit delivers one event to the consumer. Once the session is closed
// events are dropped, so an abandoned consumer cannot park the reader
// goroutine on a full channel.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) markProgress() {
	s.mu.Lock()
	s.tracker.progress(time.Now())
	s.mu.Unlock()
}

func (s *Session) markStreamedText(text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	s.sawStreamedText = true
	s.mu.Unlock()
}
