package sync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	gosync "sync"

	"golang.org/x/time/rate"

	"github.com/easel-ai/easel/internal/cache"
	"github.com/easel-ai/easel/internal/canvas"
	"github.com/easel-ai/easel/internal/graph"
	"github.com/easel-ai/easel/internal/remote"
)

// Config tunes the coordinator's queue and background push throttling.
type Config struct {
	// QueueSize bounds the reconciliation backlog.
	QueueSize int

	// PushRate limits background pushes to the durable store, in
	// operations per second. Zero disables throttling.
	PushRate float64

	// PushBurst is the limiter's burst size; defaults to 1 when PushRate
	// is set.
	PushBurst int
}

// Coordinator reconciles the version graph, the canvas projection cache
// and the durable store.
//
// Two paths exist: the immediate path runs the remote push inline with
// the caller and falls back to the queue on failure; the queued path is
// drained by a single consumer, so reconciliation is FIFO per process.
// Local state is authoritative while a session is live — remote
// failures are logged and swallowed, never rolled back.
type Coordinator struct {
	graph   *graph.Store
	remote  remote.Client
	cache   *cache.TwoTier
	queue   *Queue
	limiter *rate.Limiter
	logger  *slog.Logger

	mu     gosync.Mutex
	states map[string]State // conversationID + "/" + versionID
}

type pushVersionPayload struct {
	Version *graph.Version
	Prompt  string // evolution history entry, empty to skip
}

type selectPayload struct {
	VersionID string
}

// NewCoordinator wires the coordinator and starts its queue consumer.
func NewCoordinator(store *graph.Store, client remote.Client, tiers *cache.TwoTier, cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	var limiter *rate.Limiter
	if cfg.PushRate > 0 {
		burst := cfg.PushBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.PushRate), burst)
	}

	c := &Coordinator{
		graph:   store,
		remote:  client,
		cache:   tiers,
		limiter: limiter,
		logger:  logger,
		states:  make(map[string]State),
	}
	c.queue = NewQueue(cfg.QueueSize, c.process, logger)
	return c
}

// Close drains the reconciliation queue and stops the consumer.
func (c *Coordinator) Close() {
	c.queue.Close()
}

// HandleGenerationResult folds a producer result into the conversation's
// session: remote-first session creation, payload-shape normalization,
// duplicate suppression, projection refresh and an asynchronous push.
// The returned projection reflects the local state after the fold.
func (c *Coordinator) HandleGenerationResult(ctx context.Context, res GenerationResult) (canvas.DisplayRecord, error) {
	if err := c.ensureSession(ctx, res); err != nil {
		return canvas.DisplayRecord{}, err
	}

	imageURL := res.ImageURL()
	if imageURL == "" {
		// Malformed payload: no recognizable image reference. Not an
		// error — the version is recorded as pending.
		c.logger.Debug("no image reference in result, recording pending version",
			"conversation_id", res.ConversationID, "fingerprint", res.Fingerprint())
	}

	status := graph.StatusGenerating
	if imageURL != "" {
		status = graph.StatusCompleted
	}

	v, reused, err := c.graph.AddVersion(res.ConversationID, graph.VersionFields{
		Prompt:         res.Prompt,
		NegativePrompt: res.NegativePrompt,
		Style:          res.Style,
		Size:           res.Size,
		ImageURL:       imageURL,
		Status:         status,
	})
	if err != nil {
		return canvas.DisplayRecord{}, err
	}

	if !reused {
		if err := c.graph.AppendEvolution(res.ConversationID, res.Prompt); err != nil {
			c.logger.Warn("failed to append evolution history",
				"conversation_id", res.ConversationID, "error", err)
		}
	}

	rec := c.refreshProjection(ctx, res.ConversationID)

	if !reused {
		c.setState(res.ConversationID, v.ID, StateSyncPending)
		if !c.queue.Enqueue(Task{
			ConversationID: res.ConversationID,
			Type:           TaskCanvasToSession,
			Payload:        pushVersionPayload{Version: v, Prompt: res.Prompt},
		}) {
			c.setState(res.ConversationID, v.ID, StateLocalOnly)
		}
	}

	return rec, nil
}

// SelectVersionInCanvas selects a version locally, refreshes the
// projection and pushes the selection remotely on the immediate path.
// A remote miss triggers one corrective push-then-retry; any further
// failure degrades to a queued retry.
func (c *Coordinator) SelectVersionInCanvas(ctx context.Context, conversationID, versionID string) (canvas.DisplayRecord, error) {
	if _, err := c.graph.SelectVersion(conversationID, versionID); err != nil {
		return canvas.DisplayRecord{}, err
	}

	rec := c.refreshProjection(ctx, conversationID)

	if err := c.pushSelection(ctx, conversationID, versionID); err != nil {
		c.logger.Warn("immediate selection push failed, queueing retry",
			"conversation_id", conversationID, "version_id", versionID, "error", err)
		c.queue.Enqueue(Task{
			ConversationID: conversationID,
			Type:           TaskVersionSelect,
			Payload:        selectPayload{VersionID: versionID},
		})
	}

	return rec, nil
}

// DeleteVersionInCanvas deletes a version locally and remotely. The
// remote failure mode is logged and left to a later full resync.
func (c *Coordinator) DeleteVersionInCanvas(ctx context.Context, conversationID, versionID string) (canvas.DisplayRecord, error) {
	if _, err := c.graph.DeleteVersion(conversationID, versionID); err != nil {
		return canvas.DisplayRecord{}, err
	}
	c.clearState(conversationID, versionID)

	rec := c.refreshProjection(ctx, conversationID)

	if _, err := c.remote.DeleteVersion(ctx, conversationID, versionID); err != nil &&
		!errors.Is(err, remote.ErrNotFound) {
		c.logger.Warn("remote version delete failed",
			"conversation_id", conversationID, "version_id", versionID, "error", err)
	}

	return rec, nil
}

// LoadConversation returns the conversation's projection. A live local
// session is authoritative; otherwise the durable store is loaded and
// installed. The load must not clobber a local session that gained
// versions concurrently (e.g. a result arriving during the load).
//
// This is the one operation that surfaces remote failures: without it a
// conversation's history cannot be populated at all.
func (c *Coordinator) LoadConversation(ctx context.Context, conversationID string) (canvas.DisplayRecord, error) {
	if sess, err := c.graph.Session(conversationID); err == nil && len(sess.Versions) > 0 {
		return canvas.Project(sess), nil
	}

	sess, err := c.remote.SessionByConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			// Fall back to a live local session even if it is empty.
			if local, lerr := c.graph.Session(conversationID); lerr == nil {
				return canvas.Project(local), nil
			}
			return canvas.DisplayRecord{}, graph.ErrSessionNotFound
		}
		return canvas.DisplayRecord{}, err
	}

	if err := c.graph.Restore(sess); err != nil {
		// Race guard hit: the local session was rebuilt during the load
		// and already has versions. Local wins.
		c.logger.Debug("load raced with live session, keeping local state",
			"conversation_id", conversationID)
	} else {
		for _, v := range sess.Versions {
			c.setState(conversationID, v.ID, StateSynced)
		}
	}

	return c.refreshProjection(ctx, conversationID), nil
}

// ResetConversation removes the conversation everywhere: local graph,
// both cache tiers and the durable store.
func (c *Coordinator) ResetConversation(ctx context.Context, conversationID string) {
	c.graph.Reset(conversationID)

	c.mu.Lock()
	for key := range c.states {
		if conversationKeyPrefix(key) == conversationID {
			delete(c.states, key)
		}
	}
	c.mu.Unlock()

	removed := c.cache.InvalidateByTags(ctx, []string{cache.ConversationTag(conversationID)})
	c.cache.Delete(ctx, cache.PreviewKey(conversationID))

	if err := c.remote.DeleteSession(ctx, conversationID); err != nil &&
		!errors.Is(err, remote.ErrNotFound) {
		c.logger.Warn("remote session delete failed",
			"conversation_id", conversationID, "error", err)
	}

	c.logger.Debug("reset conversation", "conversation_id", conversationID,
		"cache_entries_removed", removed)
}

// VersionState reports the reconciliation state of a version, defaulting
// to StateLocalOnly for unknown versions.
func (c *Coordinator) VersionState(conversationID, versionID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[stateKey(conversationID, versionID)]; ok {
		return s
	}
	return StateLocalOnly
}

// RequestResync queues a background pull of the durable session into
// the local graph.
func (c *Coordinator) RequestResync(conversationID string) bool {
	return c.queue.Enqueue(Task{
		ConversationID: conversationID,
		Type:           TaskSessionToCanvas,
	})
}

// process handles one queued task. It runs on the queue's single
// consumer goroutine, so tasks never interleave.
func (c *Coordinator) process(ctx context.Context, task Task) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
	}

	switch task.Type {
	case TaskCanvasToSession:
		p, ok := task.Payload.(pushVersionPayload)
		if !ok {
			c.logger.Warn("malformed push task payload", "task_id", task.ID)
			return
		}
		c.pushVersion(ctx, task.ConversationID, p)

	case TaskVersionSelect:
		p, ok := task.Payload.(selectPayload)
		if !ok {
			c.logger.Warn("malformed select task payload", "task_id", task.ID)
			return
		}
		if err := c.pushSelection(ctx, task.ConversationID, p.VersionID); err != nil {
			c.logger.Warn("queued selection push failed",
				"conversation_id", task.ConversationID,
				"version_id", p.VersionID, "error", err)
		}

	case TaskSessionToCanvas:
		c.pullSession(ctx, task.ConversationID)

	default:
		c.logger.Warn("unknown sync task type", "type", string(task.Type))
	}
}

// ensureSession guarantees a local session exists, consulting the
// durable store first so a reload never orphans persisted history.
func (c *Coordinator) ensureSession(ctx context.Context, res GenerationResult) error {
	if c.graph.Has(res.ConversationID) {
		return nil
	}

	remoteSess, err := c.remote.SessionByConversation(ctx, res.ConversationID)
	switch {
	case err == nil:
		if rerr := c.graph.Restore(remoteSess); rerr != nil {
			// Race guard: a concurrent result already rebuilt the session.
			return nil
		}
		for _, v := range remoteSess.Versions {
			c.setState(res.ConversationID, v.ID, StateSynced)
		}
		return nil

	case errors.Is(err, remote.ErrNotFound):
		// Remote has none either; create on both sides.

	default:
		// Transport failure: proceed locally, a later resync reconciles.
		c.logger.Warn("durable store unavailable during session creation",
			"conversation_id", res.ConversationID, "error", err)
	}

	sess, cerr := c.graph.CreateSession(res.ConversationID, res.ContentType, res.Prompt)
	if cerr != nil {
		if errors.Is(cerr, graph.ErrSessionExists) {
			return nil
		}
		return cerr
	}

	if err == nil || errors.Is(err, remote.ErrNotFound) {
		if perr := c.remote.CreateSession(ctx, sess); perr != nil &&
			!errors.Is(perr, remote.ErrAlreadyExists) {
			c.logger.Warn("remote session creation failed",
				"conversation_id", res.ConversationID, "error", perr)
		}
	}
	return nil
}

// pushVersion persists one version. Versions already known remotely are
// updated in place; a missing remote session is created from the full
// local state.
func (c *Coordinator) pushVersion(ctx context.Context, conversationID string, p pushVersionPayload) {
	v := p.Version

	exists, err := c.remote.HasVersion(ctx, conversationID, v.ID)
	if err != nil {
		c.failPush(conversationID, v.ID, err)
		return
	}

	if exists {
		err = c.remote.UpdateVersion(ctx, conversationID, v.ID, graph.VersionUpdate{
			ImageURL: &v.ImageURL,
			Status:   &v.Status,
		})
	} else {
		err = c.remote.AddVersion(ctx, conversationID, v)
		if err != nil && !errors.Is(err, remote.ErrNotFound) {
			// The remote session itself may be missing; recreate it from
			// the full local state, which carries this version too.
			if sess, serr := c.graph.Session(conversationID); serr == nil {
				if cerr := c.remote.CreateSession(ctx, sess); cerr == nil ||
					errors.Is(cerr, remote.ErrAlreadyExists) {
					err = nil
				}
			}
		}
	}
	if err != nil {
		c.failPush(conversationID, v.ID, err)
		return
	}

	if p.Prompt != "" {
		if aerr := c.remote.AppendEvolution(ctx, conversationID, p.Prompt); aerr != nil {
			c.logger.Warn("remote evolution append failed",
				"conversation_id", conversationID, "error", aerr)
		}
	}

	c.setState(conversationID, v.ID, StateSynced)
	c.logger.Debug("pushed version", "conversation_id", conversationID, "version_id", v.ID)
}

// pushSelection pushes a selection change with membership verification:
// if the version is absent remotely it is pushed once and the selection
// retried once.
func (c *Coordinator) pushSelection(ctx context.Context, conversationID, versionID string) error {
	exists, err := c.remote.HasVersion(ctx, conversationID, versionID)
	if err != nil {
		return err
	}

	if !exists {
		sess, serr := c.graph.Session(conversationID)
		if serr != nil {
			return serr
		}
		v := sess.Version(versionID)
		if v == nil {
			return graph.ErrVersionNotFound
		}
		if aerr := c.remote.AddVersion(ctx, conversationID, v); aerr != nil {
			c.failPush(conversationID, versionID, aerr)
			return aerr
		}
	}

	if serr := c.remote.SelectVersion(ctx, conversationID, versionID); serr != nil {
		c.failPush(conversationID, versionID, serr)
		return serr
	}

	c.setState(conversationID, versionID, StateSynced)
	return nil
}

// pullSession installs the durable session locally, respecting the
// live-session race guard.
func (c *Coordinator) pullSession(ctx context.Context, conversationID string) {
	sess, err := c.remote.SessionByConversation(ctx, conversationID)
	if err != nil {
		if !errors.Is(err, remote.ErrNotFound) {
			c.logger.Warn("background session pull failed",
				"conversation_id", conversationID, "error", err)
		}
		return
	}

	if err := c.graph.Restore(sess); err != nil {
		c.logger.Debug("background pull raced with live session, keeping local state",
			"conversation_id", conversationID)
		return
	}

	for _, v := range sess.Versions {
		c.setState(conversationID, v.ID, StateSynced)
	}
	c.refreshProjection(ctx, conversationID)
}

// refreshProjection recomputes the display record and writes it to the
// cache. Cache failures never propagate.
func (c *Coordinator) refreshProjection(ctx context.Context, conversationID string) canvas.DisplayRecord {
	sess, err := c.graph.Session(conversationID)
	if err != nil {
		return canvas.DisplayRecord{}
	}

	rec := canvas.Project(sess)

	data, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn("failed to marshal projection",
			"conversation_id", conversationID, "error", err)
		return rec
	}

	canvasID := canvas.CanvasID(conversationID, "image", "")
	tags := []string{cache.ConversationTag(conversationID)}
	c.cache.Set(ctx, cache.CanvasKey(canvasID), data, cache.SetOptions{Tags: tags})
	c.cache.Set(ctx, cache.PreviewKey(conversationID), data, cache.SetOptions{Tags: tags, L1Only: true})

	return rec
}

func (c *Coordinator) failPush(conversationID, versionID string, err error) {
	c.setState(conversationID, versionID, StateSyncFailed)
	c.logger.Warn("push to durable store failed",
		"conversation_id", conversationID, "version_id", versionID, "error", err)
}

func (c *Coordinator) setState(conversationID, versionID string, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[stateKey(conversationID, versionID)] = s
}

func (c *Coordinator) clearState(conversationID, versionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, stateKey(conversationID, versionID))
}

func stateKey(conversationID, versionID string) string {
	return conversationID + "/" + versionID
}

func conversationKeyPrefix(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i]
		}
	}
	return key
}
