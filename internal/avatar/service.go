// Package avatar is the conversational learning companion. A message is
// screened, routed to a specialised agent by intent, screened again on the
// way out and folded into the user's persisted context.
package avatar

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/learnmate-backend/internal/ai/config"
	"github.com/yungbote/learnmate-backend/internal/ai/moderation"
	"github.com/yungbote/learnmate-backend/internal/platform/apierr"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type QuotaChecker interface {
	Allow(userID string) error
}

type MessageOptions struct {
	SessionID string
	MediaURL  string
	MediaType string
	Persona   *Persona
}

type Service struct {
	log        *logger.Logger
	store      *ContextStore
	locks      *LockRegistry
	agents     map[AgentType]Agent
	moderator  Moderator
	quota      QuotaChecker
	maxHistory int
	idle       time.Duration
	now        func() time.Time
}

type Option func(*Service)

func WithQuota(q QuotaChecker) Option { return func(s *Service) { s.quota = q } }

func WithLocks(l *LockRegistry) Option { return func(s *Service) { s.locks = l } }

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(cfg config.Config, log *logger.Logger, store *ContextStore, deps Deps, opts ...Option) *Service {
	log = logger.OrNop(log).With("service", "AvatarService")
	if deps.Log == nil {
		deps.Log = log
	}
	if deps.Timeout <= 0 {
		deps.Timeout = cfg.ModelTimeoutDuration()
	}
	if store == nil {
		store = NewContextStore(log, nil, nil, 0)
	}
	s := &Service{
		log:        log,
		store:      store,
		agents:     newAgents(deps),
		moderator:  deps.Moderator,
		maxHistory: cfg.Avatar.MaxHistory,
		idle:       time.Duration(cfg.Avatar.SessionIdleMinutes) * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locks == nil {
		s.locks = NewLockRegistry(cfg.Avatar.LockCapacity)
	}
	if s.maxHistory <= 0 {
		s.maxHistory = DefaultMaxHistory
	}
	if s.idle <= 0 {
		s.idle = 30 * time.Minute
	}
	return s
}

// HandleMessage processes one user message and returns the avatar's reply.
func (s *Service) HandleMessage(ctx context.Context, userID, text string, opts MessageOptions) (*Reply, error) {
	return s.process(ctx, userID, text, opts, nil)
}

// StreamMessage is HandleMessage with the reply delivered through onDelta.
// Agents that cannot stream emit their whole reply as a single delta.
func (s *Service) StreamMessage(ctx context.Context, userID, text string, opts MessageOptions, onDelta func(string) error) (*Reply, error) {
	if onDelta == nil {
		return nil, apierr.InvalidRequest("stream callback is required", nil)
	}
	return s.process(ctx, userID, text, opts, onDelta)
}

func (s *Service) process(ctx context.Context, userID, text string, opts MessageOptions, onDelta func(string) error) (*Reply, error) {
	userID = strings.TrimSpace(userID)
	text = strings.TrimSpace(text)
	if userID == "" {
		return nil, apierr.InvalidRequest("user_id is required", nil)
	}
	if text == "" && opts.MediaURL == "" {
		return nil, apierr.InvalidRequest("message is required", nil)
	}
	if opts.Persona != nil && !opts.Persona.Valid() {
		return nil, apierr.InvalidRequest("unknown persona", map[string]any{"persona": string(*opts.Persona)})
	}
	if s.quota != nil {
		if err := s.quota.Allow(userID); err != nil {
			return nil, err
		}
	}

	verdict, err := s.screenInput(ctx, userID, text, opts)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	c, err := s.loadOrCreate(ctx, userID, opts.SessionID)
	if err != nil {
		return nil, err
	}
	if opts.Persona != nil {
		c.Persona = *opts.Persona
	}
	if opts.SessionID != "" {
		c.SessionID = opts.SessionID
	}

	now := s.now()
	userMsg := NewMessage(RoleUser, text, now)
	userMsg.MediaURL, userMsg.MediaType = opts.MediaURL, opts.MediaType

	if !verdict.IsSafe {
		s.log.Warn("User message refused", "user_id", userID, "reason", verdict.Reason)
		c.AddMessage(userMsg, s.maxHistory)
		c.LastInteraction = now
		s.persist(ctx, c)
		reply := &Reply{
			ID:        uuid.NewString(),
			Content:   moderation.RefusalMessage,
			Agent:     AgentOrchestrator,
			Persona:   c.Persona,
			Moderated: true,
			Timestamp: now,
			Metadata:  map[string]any{"agent": string(AgentOrchestrator), "reason": verdict.Reason},
		}
		return reply, s.emit(onDelta, reply)
	}

	intent := DetectIntent(text, c)
	req := Request{
		UserID:  userID,
		Text:    text,
		Topic:   ExtractTopic(text, intent.Lead, c.CurrentModule),
		Context: c,
		Persona: c.Persona,
		OnDelta: onDelta,
	}
	reply, err := s.dispatch(ctx, intent, req)
	if err != nil {
		return nil, err
	}
	reply.Timestamp = now

	if s.moderator != nil {
		out := s.moderator.ModerateAIResponse(ctx, reply.Content, map[string]any{
			"content_type": "ai_response",
			"agent":        string(reply.Agent),
		})
		if out != reply.Content {
			reply.Content = out
			reply.Moderated = true
		}
	}

	s.updateContext(c, userMsg, reply, now)
	s.persist(ctx, c)

	if !reply.Streamed || reply.Moderated {
		if err := s.emit(onDelta, reply); err != nil {
			return reply, err
		}
	}
	return reply, nil
}

func (s *Service) screenInput(ctx context.Context, userID, text string, opts MessageOptions) (moderation.Result, error) {
	ok := moderation.Result{IsSafe: true, Confidence: 1}
	if s.moderator == nil {
		return ok, nil
	}
	contentCtx := map[string]any{"content_type": "user_message", "user_id": userID}
	if text != "" {
		r, err := s.moderator.CheckText(ctx, text, contentCtx)
		if err != nil || !r.IsSafe {
			return r, err
		}
	}
	if opts.MediaURL != "" {
		r, err := s.moderator.CheckImage(ctx, opts.MediaURL, contentCtx)
		if err != nil || !r.IsSafe {
			return r, err
		}
	}
	return ok, nil
}

// dispatch runs the intent's agent, falling back to the tutor and finally to
// a fixed apology.
func (s *Service) dispatch(ctx context.Context, intent Intent, req Request) (*Reply, error) {
	agent, ok := s.agents[intent.Agent]
	if !ok {
		agent = s.agents[AgentTutor]
	}
	reply, err := agent.Handle(ctx, req)
	if err == nil {
		reply.Metadata = withMeta(reply.Metadata, "intent", intent.Rule)
		return reply, nil
	}
	if stop := s.terminal(ctx, err); stop != nil {
		return nil, stop
	}
	s.log.Warn("Agent failed", "agent", string(agent.Type()), "user_id", req.UserID, "error", err)

	if agent.Type() != AgentTutor {
		reply, err = s.agents[AgentTutor].Handle(ctx, req)
		if err == nil {
			reply.Metadata = withMeta(reply.Metadata, "fallback_from", string(agent.Type()))
			return reply, nil
		}
		if stop := s.terminal(ctx, err); stop != nil {
			return nil, stop
		}
	}
	s.log.Error("Tutor fallback failed", "user_id", req.UserID, "error", err)
	reply = newReply(AgentTutor, req, TroubleMessage)
	reply.Metadata = map[string]any{"agent": string(AgentTutor), "error": true}
	return reply, nil
}

// terminal returns the error when processing must stop instead of falling back.
func (s *Service) terminal(ctx context.Context, err error) error {
	var aborted *StreamAbortedError
	if errors.As(err, &aborted) {
		return err
	}
	var interrupted *StreamInterruptedError
	if errors.As(err, &interrupted) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return nil
}

func withMeta(m map[string]any, k string, v any) map[string]any {
	if m == nil {
		m = map[string]any{}
	}
	m[k] = v
	return m
}

func (s *Service) emit(onDelta func(string) error, reply *Reply) error {
	if onDelta == nil {
		return nil
	}
	if err := onDelta(reply.Content); err != nil {
		return &StreamAbortedError{Err: err}
	}
	return nil
}

func (s *Service) updateContext(c *Context, userMsg Message, reply *Reply, now time.Time) {
	c.AddMessage(userMsg, s.maxHistory)
	asst := NewMessage(RoleAssistant, reply.Content, now)
	asst.Metadata = map[string]any{"agent": string(reply.Agent)}
	c.AddMessage(asst, s.maxHistory)

	c.UpdateSentiment(ScoreSentiment(userMsg.Content))
	c.BumpEngagement()
	c.RecordAgent(reply.Agent)
	if reply.Topic != "" && reply.Topic != defaultTopic {
		c.AddTopic(reply.Topic)
	}
	c.LastInteraction = now
}

func (s *Service) loadOrCreate(ctx context.Context, userID, sessionID string) (*Context, error) {
	c, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, apierr.DataProcessing("failed to load avatar context", map[string]any{"user_id": userID, "error": err.Error()})
	}
	if c == nil {
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		c = NewContext(userID, sessionID, s.now())
	}
	return c, nil
}

// persist saves c. Failures are logged and never reach the caller.
func (s *Service) persist(ctx context.Context, c *Context) {
	if err := s.store.Save(context.WithoutCancel(ctx), c); err != nil {
		s.log.Error("Failed to persist avatar context", "user_id", c.UserID, "error", err)
	}
}

// mutate applies fn to the user's context under the user's lock and saves it.
func (s *Service) mutate(ctx context.Context, userID string, fn func(c *Context) error) (*Context, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apierr.InvalidRequest("user_id is required", nil)
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	c, err := s.loadOrCreate(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	s.persist(ctx, c)
	return c, nil
}

func (s *Service) load(ctx context.Context, userID string) (*Context, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apierr.InvalidRequest("user_id is required", nil)
	}
	c, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, apierr.DataProcessing("failed to load avatar context", map[string]any{"user_id": userID, "error": err.Error()})
	}
	return c, nil
}

func (s *Service) GetContext(ctx context.Context, userID string) (*Context, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apierr.NotFound("context", map[string]any{"user_id": userID})
	}
	return c, nil
}

// ResetContext removes the user's context from the cache and the document store.
func (s *Service) ResetContext(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return apierr.InvalidRequest("user_id is required", nil)
	}
	unlock := s.locks.Lock(userID)
	defer unlock()
	if err := s.store.Delete(ctx, userID); err != nil {
		return apierr.DataProcessing("failed to reset avatar context", map[string]any{"user_id": userID, "error": err.Error()})
	}
	s.log.Info("Avatar context reset", "user_id", userID)
	return nil
}

func (s *Service) SetPersona(ctx context.Context, userID string, p Persona) (*Context, error) {
	if !p.Valid() {
		return nil, apierr.InvalidRequest("unknown persona", map[string]any{"persona": string(p)})
	}
	return s.mutate(ctx, userID, func(c *Context) error {
		c.Persona = p
		return nil
	})
}

func (s *Service) GetPreferences(ctx context.Context, userID string) (map[string]any, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return map[string]any{}, nil
	}
	return c.Preferences, nil
}

// UpdatePreferences merges prefs into the stored preferences. A nil value
// removes the key. learning_style and learning_pace also update the
// matching context fields.
func (s *Service) UpdatePreferences(ctx context.Context, userID string, prefs map[string]any) (map[string]any, error) {
	c, err := s.mutate(ctx, userID, func(c *Context) error {
		for k, v := range prefs {
			if v == nil {
				delete(c.Preferences, k)
				continue
			}
			c.Preferences[k] = v
			str, _ := v.(string)
			switch k {
			case "learning_style":
				c.LearningStyle = str
			case "learning_pace":
				if str != "" {
					c.LearningPace = str
				}
			case "current_module":
				c.CurrentModule = str
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.Preferences, nil
}

type TaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

func (s *Service) AddTask(ctx context.Context, userID string, in TaskInput) (*Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, apierr.InvalidRequest("task title is required", nil)
	}
	var task Task
	_, err := s.mutate(ctx, userID, func(c *Context) error {
		task = Task{
			ID:          uuid.NewString(),
			Title:       in.Title,
			Description: in.Description,
			Status:      TaskPending,
			DueDate:     in.DueDate,
			CreatedAt:   s.now(),
		}
		c.ActiveTasks = append(c.ActiveTasks, task)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *Service) CompleteTask(ctx context.Context, userID, taskID string) (*Task, error) {
	var task Task
	_, err := s.mutate(ctx, userID, func(c *Context) error {
		for i := range c.ActiveTasks {
			if c.ActiveTasks[i].ID != taskID {
				continue
			}
			if c.ActiveTasks[i].Status != TaskCompleted {
				done := s.now()
				c.ActiveTasks[i].Status = TaskCompleted
				c.ActiveTasks[i].CompletedAt = &done
			}
			task = c.ActiveTasks[i]
			return nil
		}
		return apierr.NotFound("task", map[string]any{"task_id": taskID})
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *Service) RecordCompletedLearning(ctx context.Context, userID string, rec LearningRecord) error {
	rec.Topic = strings.TrimSpace(rec.Topic)
	if rec.Topic == "" {
		return apierr.InvalidRequest("topic is required", nil)
	}
	_, err := s.mutate(ctx, userID, func(c *Context) error {
		if rec.CompletedAt.IsZero() {
			rec.CompletedAt = s.now()
		}
		c.CompletedLearning = append(c.CompletedLearning, rec)
		c.AddTopic(rec.Topic)
		return nil
	})
	return err
}

type Progress struct {
	UserID          string   `json:"user_id"`
	TopicsCount     int      `json:"topics_count"`
	CompletedCount  int      `json:"completed_count"`
	AverageScore    *float64 `json:"average_score,omitempty"`
	ActiveTasks     int      `json:"active_tasks"`
	EngagementScore float64  `json:"engagement_score"`
	SentimentTrend  string   `json:"sentiment_trend"`
	CurrentModule   string   `json:"current_module,omitempty"`
	LearningGoals   []string `json:"learning_goals"`
}

func (s *Service) ProgressSummary(ctx context.Context, userID string) (*Progress, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = NewContext(userID, "", s.now())
	}
	p := &Progress{
		UserID:          userID,
		TopicsCount:     len(c.TopicsDiscussed),
		CompletedCount:  len(c.CompletedLearning),
		ActiveTasks:     len(c.PendingTasks()),
		EngagementScore: c.EngagementScore,
		SentimentTrend:  c.SentimentLabel(),
		CurrentModule:   c.CurrentModule,
		LearningGoals:   c.LearningGoals,
	}
	var sum float64
	var n int
	for _, r := range c.CompletedLearning {
		if r.Score != nil {
			sum += *r.Score
			n++
		}
	}
	if n > 0 {
		avg := sum / float64(n)
		p.AverageScore = &avg
	}
	return p, nil
}

func (s *Service) RecentSentiment(ctx context.Context, userID string) (string, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "neutral", nil
	}
	return c.SentimentLabel(), nil
}

// IsSessionExpired reports whether the user has been idle longer than idle
// (the configured session idle time when idle <= 0). Unknown users count as
// expired.
func (s *Service) IsSessionExpired(ctx context.Context, userID string, idle time.Duration) (bool, error) {
	if idle <= 0 {
		idle = s.idle
	}
	c, err := s.load(ctx, userID)
	if err != nil {
		return false, err
	}
	if c == nil {
		return true, nil
	}
	return c.IsSessionExpired(s.now(), idle), nil
}

// RunJanitor drops idle per-user locks every interval until ctx ends.
func (s *Service) RunJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.locks.Sweep(s.idle); n > 0 {
				s.log.Debug("Swept idle avatar locks", "count", n)
			}
		}
	}
}
