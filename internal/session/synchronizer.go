package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inkwell-labs/inkwell/backend/internal/documents"
)

const (
	defaultDebounceDelay    = 2 * time.Second
	defaultPollInterval     = 3 * time.Second
	defaultPresenceInterval = 5 * time.Second
	defaultSnapshotEvery    = 10
	defaultEventBuffer      = 32
)

var (
	// ErrReadOnly indicates the session's role does not permit edits.
	ErrReadOnly = errors.New("session: read-only access")
	// ErrNothingToSave indicates a flush request with a clean buffer.
	ErrNothingToSave = errors.New("session: nothing to save")
	// ErrClosed indicates the session has been shut down.
	ErrClosed = errors.New("session: closed")
)

// EventType classifies the notifications a session emits.
type EventType string

const (
	// EventRemoteUpdate reports newer content adopted from the gateway.
	EventRemoteUpdate EventType = "remote_update"
	// EventSaved reports a completed auto-save or flush.
	EventSaved EventType = "saved"
	// EventConflict reports a save rejected because the base revision
	// was stale. The event carries the current remote snapshot.
	EventConflict EventType = "conflict"
	// EventSaveError reports a save that failed for any other reason.
	EventSaveError EventType = "save_error"
	// EventPresence reports a refreshed set of fresh participants.
	EventPresence EventType = "presence"
)

// Event is a notification delivered on the session's event channel.
type Event struct {
	Type     EventType
	Revision int64
	Content  string
	Presence []Presence
	Err      error
}

// View is a point-in-time copy of everything the session knows about
// its document.
type View struct {
	Document      DocumentInfo
	Content       string
	Revision      int64
	Dirty         bool
	Collaborators []Collaborator
	Presence      []Presence
	Threads       []CommentThread
	Versions      []Version
}

// Config assembles a synchronizer. Gateway, DocumentID, UserID and
// Codec are required; zero timing fields take the defaults.
type Config struct {
	Gateway    Gateway
	DocumentID string
	UserID     string
	Role       documents.Role
	Codec      ContentCodec
	Color      string

	DebounceDelay    time.Duration
	PollInterval     time.Duration
	PresenceInterval time.Duration
	SnapshotEvery    int

	Logger *zap.Logger
}

type commandKind int

const (
	cmdEdit commandKind = iota
	cmdSaveNow
	cmdSetCursor
	cmdView
)

type command struct {
	kind    commandKind
	content string
	cursor  int64
	errCh   chan error
	viewCh  chan View
}

// Synchronizer keeps one user's editing session for one document in
// step with the gateway. A single run-loop goroutine owns the buffer,
// the timers and the counters; the exported methods post messages into
// it and never touch session state directly.
type Synchronizer struct {
	cfg      Config
	logger   *zap.Logger
	events   chan Event
	commands chan command

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New validates the configuration and prepares a synchronizer. Call
// Start to load the document and begin the run loop.
func New(cfg Config) (*Synchronizer, error) {
	if cfg.Gateway == nil {
		return nil, errors.New("session: gateway is required")
	}
	if cfg.Codec == nil {
		return nil, errors.New("session: content codec is required")
	}
	if cfg.DocumentID == "" || cfg.UserID == "" {
		return nil, errors.New("session: document id and user id are required")
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = defaultDebounceDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PresenceInterval <= 0 {
		cfg.PresenceInterval = defaultPresenceInterval
	}
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = defaultSnapshotEvery
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Synchronizer{
		cfg:      cfg,
		logger:   cfg.Logger,
		events:   make(chan Event, defaultEventBuffer),
		commands: make(chan command),
		done:     make(chan struct{}),
	}, nil
}

// Start loads the document, announces presence and launches the run
// loop. The context bounds the whole session; cancelling it is
// equivalent to Close.
func (s *Synchronizer) Start(ctx context.Context) error {
	doc, err := s.cfg.Gateway.FetchDocument(ctx, s.cfg.DocumentID)
	if err != nil {
		return fmt.Errorf("session: load document: %w", err)
	}
	if doc.Kind != string(s.cfg.Codec.Kind()) {
		return fmt.Errorf("%w: document kind %q", ErrInvalidContent, doc.Kind)
	}
	snapshot, err := s.cfg.Gateway.FetchContent(ctx, s.cfg.DocumentID)
	if err != nil {
		return fmt.Errorf("session: load content: %w", err)
	}
	if err := s.cfg.Gateway.UpsertPresence(ctx, s.cfg.DocumentID, 0, s.cfg.Color); err != nil {
		s.logger.Warn("session.presence_announce_failed", zap.Error(err))
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	st := &loopState{
		document: doc,
		content:  snapshot.Content,
		revision: snapshot.Revision,
	}
	go s.run(loopCtx, st)
	return nil
}

// Events returns the channel on which the session publishes
// notifications. Slow consumers lose events rather than stalling the
// session.
func (s *Synchronizer) Events() <-chan Event {
	return s.events
}

// Edit replaces the local buffer with new content and arms the
// debounce timer. The content must satisfy the session's codec.
func (s *Synchronizer) Edit(content string) error {
	if !s.cfg.Role.CanWrite() {
		return fmt.Errorf("%w: role %s", ErrReadOnly, s.cfg.Role)
	}
	if err := s.cfg.Codec.Validate(content); err != nil {
		return err
	}
	return s.post(command{kind: cmdEdit, content: content})
}

// SaveNow flushes the buffer immediately, bypassing the debounce.
// Returns ErrNothingToSave when there are no unsaved edits.
func (s *Synchronizer) SaveNow() error {
	if !s.cfg.Role.CanWrite() {
		return fmt.Errorf("%w: role %s", ErrReadOnly, s.cfg.Role)
	}
	errCh := make(chan error, 1)
	if err := s.post(command{kind: cmdSaveNow, errCh: errCh}); err != nil {
		return err
	}
	select {
	case err := <-errCh:
		return err
	case <-s.done:
		return ErrClosed
	}
}

// SetCursor reports a cursor move, refreshing presence right away.
func (s *Synchronizer) SetCursor(position int64) error {
	return s.post(command{kind: cmdSetCursor, cursor: position})
}

// View returns a copy of the session's current state.
func (s *Synchronizer) View() (View, error) {
	viewCh := make(chan View, 1)
	if err := s.post(command{kind: cmdView, viewCh: viewCh}); err != nil {
		return View{}, err
	}
	select {
	case view := <-viewCh:
		return view, nil
	case <-s.done:
		return View{}, ErrClosed
	}
}

// Close stops the session: a final save when the buffer is dirty, one
// best-effort presence delete, then the event channel closes. Safe to
// call more than once.
func (s *Synchronizer) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel == nil {
			close(s.done)
			close(s.events)
			s.closeErr = nil
			return
		}
		s.cancel()
		<-s.done
	})
	return s.closeErr
}

func (s *Synchronizer) post(cmd command) error {
	select {
	case s.commands <- cmd:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// loopState is owned exclusively by the run loop goroutine.
type loopState struct {
	document DocumentInfo
	content  string
	revision int64
	dirty    bool
	cursor   int64

	savesSinceVersion int

	collaborators []Collaborator
	presence      []Presence
	threads       []CommentThread
	versions      []Version
}

func (s *Synchronizer) run(ctx context.Context, st *loopState) {
	debounce := time.NewTimer(s.cfg.DebounceDelay)
	if !debounce.Stop() {
		<-debounce.C
	}
	presenceTicker := time.NewTicker(s.cfg.PresenceInterval)
	pollTicker := time.NewTicker(s.cfg.PollInterval)
	defer func() {
		debounce.Stop()
		presenceTicker.Stop()
		pollTicker.Stop()
		s.shutdown(st)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.commands:
			s.handle(ctx, st, cmd, debounce)
		case <-debounce.C:
			if st.dirty {
				s.save(ctx, st)
			}
		case <-presenceTicker.C:
			s.refreshPresence(ctx, st)
		case <-pollTicker.C:
			s.poll(ctx, st)
		}
	}
}

func (s *Synchronizer) handle(ctx context.Context, st *loopState, cmd command, debounce *time.Timer) {
	switch cmd.kind {
	case cmdEdit:
		st.content = cmd.content
		st.dirty = true
		if !debounce.Stop() {
			select {
			case <-debounce.C:
			default:
			}
		}
		debounce.Reset(s.cfg.DebounceDelay)
	case cmdSaveNow:
		if !st.dirty {
			cmd.errCh <- ErrNothingToSave
			return
		}
		if !debounce.Stop() {
			select {
			case <-debounce.C:
			default:
			}
		}
		cmd.errCh <- s.save(ctx, st)
	case cmdSetCursor:
		st.cursor = cmd.cursor
		s.refreshPresence(ctx, st)
	case cmdView:
		cmd.viewCh <- View{
			Document:      st.document,
			Content:       st.content,
			Revision:      st.revision,
			Dirty:         st.dirty,
			Collaborators: append([]Collaborator(nil), st.collaborators...),
			Presence:      append([]Presence(nil), st.presence...),
			Threads:       append([]CommentThread(nil), st.threads...),
			Versions:      append([]Version(nil), st.versions...),
		}
	}
}

// save flushes the buffer against the revision it was loaded on. A
// stale rejection keeps the buffer dirty and surfaces the remote
// snapshot so the caller can reconcile.
func (s *Synchronizer) save(ctx context.Context, st *loopState) error {
	content := st.content
	snapshot, err := s.cfg.Gateway.SaveContent(ctx, s.cfg.DocumentID, content, st.revision)
	if errors.Is(err, documents.ErrStaleRevision) {
		s.logger.Warn("session.save_conflict",
			zap.String("document_id", s.cfg.DocumentID),
			zap.Int64("base_revision", st.revision),
			zap.Int64("remote_revision", snapshot.Revision))
		s.publish(Event{Type: EventConflict, Revision: snapshot.Revision, Content: snapshot.Content, Err: err})
		return err
	}
	if err != nil {
		s.logger.Warn("session.save_failed", zap.String("document_id", s.cfg.DocumentID), zap.Error(err))
		s.publish(Event{Type: EventSaveError, Err: err})
		return err
	}

	st.revision = snapshot.Revision
	st.dirty = false
	st.savesSinceVersion++
	if st.savesSinceVersion >= s.cfg.SnapshotEvery {
		st.savesSinceVersion = 0
		if _, err := s.cfg.Gateway.CreateVersion(ctx, s.cfg.DocumentID, content); err != nil {
			s.logger.Warn("session.version_failed", zap.String("document_id", s.cfg.DocumentID), zap.Error(err))
		}
	}
	s.publish(Event{Type: EventSaved, Revision: st.revision})
	return nil
}

func (s *Synchronizer) refreshPresence(ctx context.Context, st *loopState) {
	if err := s.cfg.Gateway.UpsertPresence(ctx, s.cfg.DocumentID, st.cursor, s.cfg.Color); err != nil {
		s.logger.Debug("session.presence_refresh_failed", zap.Error(err))
	}
}

// poll refreshes the remote view. Metadata, collaborators, comments,
// presence and versions are overwritten unconditionally; the content
// buffer is only replaced while clean, so pending local edits never
// disappear under the editor.
func (s *Synchronizer) poll(ctx context.Context, st *loopState) {
	if doc, err := s.cfg.Gateway.FetchDocument(ctx, s.cfg.DocumentID); err == nil {
		st.document = doc
	} else {
		s.logger.Debug("session.poll_document_failed", zap.Error(err))
	}

	if snapshot, err := s.cfg.Gateway.FetchContent(ctx, s.cfg.DocumentID); err == nil {
		if !st.dirty && snapshot.Revision > st.revision {
			st.content = snapshot.Content
			st.revision = snapshot.Revision
			s.publish(Event{Type: EventRemoteUpdate, Revision: snapshot.Revision, Content: snapshot.Content})
		}
	} else {
		s.logger.Debug("session.poll_content_failed", zap.Error(err))
	}

	if collaborators, err := s.cfg.Gateway.ListCollaborators(ctx, s.cfg.DocumentID); err == nil {
		st.collaborators = collaborators
	}
	if threads, err := s.cfg.Gateway.ListCommentThreads(ctx, s.cfg.DocumentID); err == nil {
		st.threads = threads
	}
	if versions, err := s.cfg.Gateway.ListVersions(ctx, s.cfg.DocumentID); err == nil {
		st.versions = versions
	}
	if presence, err := s.cfg.Gateway.ListPresence(ctx, s.cfg.DocumentID); err == nil {
		st.presence = presence
		s.publish(Event{Type: EventPresence, Presence: append([]Presence(nil), presence...)})
	}
}

// shutdown runs once, off the cancelled loop context.
func (s *Synchronizer) shutdown(st *loopState) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if st.dirty && s.cfg.Role.CanWrite() {
		if err := s.save(ctx, st); err != nil {
			s.closeErr = fmt.Errorf("session: final save: %w", err)
		}
	}
	if err := s.cfg.Gateway.DeletePresence(ctx, s.cfg.DocumentID); err != nil {
		s.logger.Debug("session.presence_delete_failed", zap.Error(err))
	}
	close(s.done)
	close(s.events)
}

// publish never blocks; a full event channel drops the notification.
func (s *Synchronizer) publish(event Event) {
	select {
	case s.events <- event:
	default:
		s.logger.Debug("session.event_dropped", zap.String("type", string(event.Type)))
	}
}
