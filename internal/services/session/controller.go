// -----------------------------------------------------------------------
// Session Controller - sequences operations against a session's artifacts
// -----------------------------------------------------------------------

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/common"
	"github.com/ternarybob/docpipe/internal/interfaces"
	"github.com/ternarybob/docpipe/internal/models"
	"github.com/ternarybob/docpipe/internal/services/artifacts"
	"github.com/ternarybob/docpipe/internal/services/transform"
)

// Controller owns session state. At most one upload or operation runs per
// session; a second caller gets ErrBusy instead of waiting.
type Controller struct {
	sessions     interfaces.SessionStorage
	store        *artifacts.Store
	materializer *artifacts.Materializer
	registry     *transform.Registry
	events       interfaces.EventService
	idleTimeout  time.Duration
	logger       arbor.ILogger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewController creates a session controller
func NewController(
	sessions interfaces.SessionStorage,
	store *artifacts.Store,
	materializer *artifacts.Materializer,
	registry *transform.Registry,
	events interfaces.EventService,
	idleTimeout time.Duration,
	logger arbor.ILogger,
) *Controller {
	return &Controller{
		sessions:     sessions,
		store:        store,
		materializer: materializer,
		registry:     registry,
		events:       events,
		idleTimeout:  idleTimeout,
		logger:       logger,
		locks:        make(map[string]*sync.Mutex),
	}
}

func (c *Controller) lockFor(id string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[id]
	if !ok {
		l = &sync.Mutex{}
		c.locks[id] = l
	}
	return l
}

func (c *Controller) forget(id string) {
	c.mu.Lock()
	delete(c.locks, id)
	c.mu.Unlock()
}

// acquire takes the session lock without blocking. Unknown sessions never
// get a lock entry.
func (c *Controller) acquire(ctx context.Context, id string) (func(), error) {
	if _, err := c.sessions.GetSession(ctx, id); err != nil {
		return nil, err
	}
	l := c.lockFor(id)
	if !l.TryLock() {
		return nil, fmt.Errorf("session %s: %w", id, models.ErrBusy)
	}
	return l.Unlock, nil
}

// Create starts an empty session
func (c *Controller) Create(ctx context.Context) (*models.Session, error) {
	now := time.Now()
	s := &models.Session{
		ID:           common.NewSessionID(),
		State:        models.SessionIdle,
		Artifacts:    []string{},
		History:      []models.OperationRecord{},
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if err := c.sessions.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIO, err)
	}
	c.logger.Info().Str("session_id", s.ID).Msg("Session created")
	return s, nil
}

func (c *Controller) Get(ctx context.Context, id string) (*models.Session, error) {
	return c.sessions.GetSession(ctx, id)
}

// Artifacts lists the artifacts owned by the session
func (c *Controller) Artifacts(ctx context.Context, id string) ([]*models.Artifact, error) {
	if _, err := c.sessions.GetSession(ctx, id); err != nil {
		return nil, err
	}
	return c.store.ListBySession(ctx, id)
}

// Upload stores r as a new artifact. The format is trusted from the filename
// extension. The first upload becomes the session's original; later ones
// only replace it when makeCurrent is set.
func (c *Controller) Upload(ctx context.Context, sessionID, filename string, r io.Reader, makeCurrent bool) (*models.Artifact, error) {
	format, ext, err := models.FormatFromFilename(filename)
	if err != nil {
		return nil, err
	}

	unlock, err := c.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(filename)
	artifact, err := c.store.Store(ctx, artifacts.StoreOptions{
		SessionID: sessionID,
		Name:      strings.TrimSuffix(base, filepath.Ext(base)),
		Format:    format,
		Extension: ext,
		Producer:  models.ProducerUpload,
	}, r)
	if err != nil {
		return nil, err
	}

	s.Artifacts = append(s.Artifacts, artifact.ID)
	if s.OriginalID == "" || makeCurrent {
		s.OriginalID = artifact.ID
		s.CurrentID = artifact.ID
	}
	s.LastActiveAt = time.Now()
	if err := c.sessions.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIO, err)
	}

	c.publish(ctx, interfaces.EventArtifactCreated, models.OperationEvent{
		SessionID:  sessionID,
		Operation:  models.ProducerUpload,
		ArtifactID: artifact.ID,
	})
	c.logger.Info().
		Str("session_id", sessionID).
		Str("artifact_id", artifact.ID).
		Str("format", string(format)).
		Int64("size", artifact.Size).
		Msg("Artifact uploaded")

	return artifact, nil
}

// Execute runs one operation. Errors are returned only when the request
// cannot be attempted (unknown session or operation, busy session);
// everything that fails once the operation starts comes back as a failed
// result, and the session is always returned to idle.
func (c *Controller) Execute(ctx context.Context, sessionID string, req models.OperationRequest) (*models.OperationResult, error) {
	if _, err := c.registry.Lookup(req.Operation); err != nil {
		return nil, err
	}

	unlock, err := c.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// unchained operations always start from the original
	if !req.Chain {
		s.CurrentID = s.OriginalID
	}
	inputIDs := c.resolveInputs(s, req)

	started := time.Now()
	s.State = models.SessionRunning
	s.LastActiveAt = started
	if err := c.sessions.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIO, err)
	}
	c.publish(ctx, interfaces.EventOperationStarted, models.OperationEvent{
		SessionID: sessionID,
		Operation: req.Operation,
	})

	artifact, text, runErr := c.run(ctx, s, req, inputIDs)

	result := &models.OperationResult{
		Operation: req.Operation,
		Duration:  time.Since(started),
	}
	record := models.OperationRecord{
		Operation:  req.Operation,
		Inputs:     inputIDs,
		Chained:    req.Chain,
		StartedAt:  started,
		DurationMS: result.Duration.Milliseconds(),
	}

	if runErr != nil {
		result.Status = models.StatusFailed
		result.Failure = models.NewFailure(runErr)
		record.Status = models.StatusFailed
		record.Failure = result.Failure
	} else {
		result.Status = models.StatusSucceeded
		result.Artifact = artifact
		result.Text = text
		record.Status = models.StatusSucceeded
		record.OutputID = artifact.ID
		s.Artifacts = append(s.Artifacts, artifact.ID)
		if req.Chain {
			s.CurrentID = artifact.ID
		}
	}

	s.History = append(s.History, record)
	s.State = models.SessionIdle
	s.LastActiveAt = time.Now()
	// the request context may be gone; the session must still go back to idle
	if err := c.sessions.SaveSession(context.WithoutCancel(ctx), s); err != nil {
		c.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to save session after operation")
	}

	event := models.OperationEvent{
		SessionID:  sessionID,
		Operation:  req.Operation,
		Status:     result.Status,
		Failure:    result.Failure,
		DurationMS: record.DurationMS,
	}
	if result.Succeeded() {
		event.ArtifactID = artifact.ID
		c.publish(ctx, interfaces.EventArtifactCreated, event)
		c.publish(ctx, interfaces.EventOperationCompleted, event)
		c.logger.Info().
			Str("session_id", sessionID).
			Str("operation", req.Operation).
			Str("artifact_id", artifact.ID).
			Int64("duration_ms", record.DurationMS).
			Msg("Operation completed")
	} else {
		c.publish(ctx, interfaces.EventOperationFailed, event)
		c.logger.Warn().
			Str("session_id", sessionID).
			Str("operation", req.Operation).
			Str("failure_kind", result.Failure.Kind).
			Str("failure", result.Failure.Message).
			Msg("Operation failed")
	}

	return result, nil
}

// resolveInputs picks explicit artifact IDs, otherwise the current artifact
// (which is the original unless chaining)
func (c *Controller) resolveInputs(s *models.Session, req models.OperationRequest) []string {
	if len(req.ArtifactIDs) > 0 {
		return append([]string(nil), req.ArtifactIDs...)
	}
	if s.CurrentID == "" {
		return []string{}
	}
	return []string{s.CurrentID}
}

// run loads inputs, invokes the handler and persists its output.
// Panics from handlers or engines are converted to errors.
func (c *Controller) run(ctx context.Context, s *models.Session, req models.OperationRequest, inputIDs []string) (artifact *models.Artifact, text *string, err error) {
	defer common.RecoverPanic(c.logger, "operation:"+req.Operation, &err)

	inputs := make([]transform.InputArtifact, 0, len(inputIDs))
	for _, id := range inputIDs {
		if !s.OwnsArtifact(id) {
			return nil, nil, fmt.Errorf("artifact %s is not part of session %s: %w", id, s.ID, models.ErrNotFound)
		}
		a, data, err := c.store.Read(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		inputs = append(inputs, transform.InputArtifact{
			ID:        a.ID,
			Name:      a.Filename(),
			Format:    a.Format,
			Extension: a.Extension,
			Data:      data,
		})
	}

	out, err := c.registry.Run(ctx, req.Operation, inputs, req.Params)
	if err != nil {
		return nil, nil, err
	}
	if out == nil {
		return nil, nil, fmt.Errorf("%w: %s produced no output", models.ErrBackend, req.Operation)
	}

	artifact, err = c.materializer.Persist(ctx, s.ID, req.Operation, inputIDs, out)
	if err != nil {
		return nil, nil, err
	}
	return artifact, out.Text, nil
}

// Reset points the session's current artifact back at the original
func (c *Controller) Reset(ctx context.Context, sessionID string) (*models.Session, error) {
	unlock, err := c.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.CurrentID = s.OriginalID
	s.LastActiveAt = time.Now()
	if err := c.sessions.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIO, err)
	}
	return s, nil
}

// End releases every artifact the session owns and deletes the session
func (c *Controller) End(ctx context.Context, sessionID string) error {
	unlock, err := c.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer func() {
		unlock()
		c.forget(sessionID)
	}()

	if _, err := c.sessions.GetSession(ctx, sessionID); err != nil {
		return err
	}

	released, err := c.store.ReleaseSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := c.sessions.DeleteSession(ctx, sessionID); err != nil {
		return err
	}

	c.publish(ctx, interfaces.EventSessionEnded, models.OperationEvent{SessionID: sessionID})
	c.logger.Info().Str("session_id", sessionID).Int("released", released).Msg("Session ended")
	return nil
}

// SweepExpired ends sessions idle since before now minus the idle timeout.
// Busy sessions are skipped and picked up by a later sweep.
func (c *Controller) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	if c.idleTimeout <= 0 {
		return 0, nil
	}

	idle, err := c.sessions.ListIdleSince(ctx, now.Add(-c.idleTimeout))
	if err != nil {
		return 0, err
	}

	ended := 0
	for _, s := range idle {
		if err := c.End(ctx, s.ID); err != nil {
			if errors.Is(err, models.ErrBusy) || errors.Is(err, models.ErrNotFound) {
				continue
			}
			c.logger.Warn().Err(err).Str("session_id", s.ID).Msg("Failed to end expired session")
			continue
		}
		ended++
	}
	return ended, nil
}

// RecoverInterrupted returns sessions left running by a previous process to idle
func (c *Controller) RecoverInterrupted(ctx context.Context) (int, error) {
	all, err := c.sessions.ListSessions(ctx)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, s := range all {
		if s.State != models.SessionRunning {
			continue
		}
		s.State = models.SessionIdle
		if err := c.sessions.SaveSession(ctx, s); err != nil {
			return recovered, err
		}
		recovered++
	}
	if recovered > 0 {
		c.logger.Warn().Int("sessions", recovered).Msg("Reset sessions interrupted by a restart")
	}
	return recovered, nil
}

func (c *Controller) publish(ctx context.Context, eventType interfaces.EventType, payload models.OperationEvent) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(context.WithoutCancel(ctx), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		c.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}
