package avatar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/learnmate-backend/internal/ai/llm"
	"github.com/yungbote/learnmate-backend/internal/ai/moderation"
	"github.com/yungbote/learnmate-backend/internal/content/retrieval"
	"github.com/yungbote/learnmate-backend/internal/learning/classroom"
	"github.com/yungbote/learnmate-backend/internal/platform/apierr"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

const (
	historyTurns      = 10
	quizQuestions     = 3
	curatorMaxResults = 3
)

type QuizGenerator interface {
	GenerateQuiz(ctx context.Context, topic string, difficulty classroom.Difficulty, n int) (*classroom.Quiz, error)
}

type ContentSearcher interface {
	SearchAllSources(ctx context.Context, query string, filters *retrieval.Filters, maxResults int, safeSearch bool) map[retrieval.ContentType][]retrieval.Item
}

type Moderator interface {
	CheckText(ctx context.Context, text string, contentCtx map[string]any) (moderation.Result, error)
	CheckImage(ctx context.Context, imageURL string, contentCtx map[string]any) (moderation.Result, error)
	ModerateAIResponse(ctx context.Context, text string, contentCtx map[string]any) string
}

// Deps are the collaborators agents may use. Nil members disable the agents
// that need them.
type Deps struct {
	LLM       llm.Client
	Model     string
	Timeout   time.Duration
	Quiz      QuizGenerator
	Search    ContentSearcher
	Moderator Moderator
	Log       *logger.Logger
}

type Request struct {
	UserID  string
	Text    string
	Topic   string
	Context *Context
	Persona Persona
	// OnDelta is set for streaming requests.
	OnDelta func(delta string) error
}

type Reply struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Agent     AgentType      `json:"agent"`
	Topic     string         `json:"topic,omitempty"`
	Persona   Persona        `json:"persona"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Moderated bool           `json:"moderated"`
	Timestamp time.Time      `json:"timestamp"`
	// Streamed is true when Content already reached the client as deltas.
	Streamed bool `json:"-"`
}

type Agent interface {
	Type() AgentType
	Handle(ctx context.Context, req Request) (*Reply, error)
}

// StreamAbortedError means the client stopped accepting deltas.
type StreamAbortedError struct{ Err error }

func (e *StreamAbortedError) Error() string { return "stream aborted: " + e.Err.Error() }
func (e *StreamAbortedError) Unwrap() error { return e.Err }

// StreamInterruptedError means the model failed after part of the reply was
// already streamed. Nothing is appended to the partial output.
type StreamInterruptedError struct {
	Err  error
	Sent int
}

func (e *StreamInterruptedError) Error() string {
	return fmt.Sprintf("stream interrupted after %d deltas: %v", e.Sent, e.Err)
}

func (e *StreamInterruptedError) Unwrap() error { return e.Err }

// Responder runs bounded chat completions.
type Responder struct {
	llm     llm.Client
	model   string
	timeout time.Duration
	log     *logger.Logger
}

func NewResponder(d Deps) *Responder {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Responder{llm: d.LLM, model: d.Model, timeout: timeout, log: logger.OrNop(d.Log)}
}

func buildMessages(system string, history []Message, userMsg string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.System(system))
	for _, m := range history {
		switch m.Role {
		case RoleUser:
			msgs = append(msgs, llm.User(m.Content))
		case RoleAssistant:
			msgs = append(msgs, llm.Assistant(m.Content))
		}
	}
	return append(msgs, llm.User(userMsg))
}

// GenerateResponse returns the model's reply. Running past the model timeout
// yields TimeoutMessage and no error, unless deltas were already streamed.
func (r *Responder) GenerateResponse(ctx context.Context, history []Message, userMsg, system string) (string, error) {
	return r.run(ctx, history, userMsg, system, nil)
}

// StreamResponse is GenerateResponse with deltas forwarded to onDelta.
func (r *Responder) StreamResponse(ctx context.Context, history []Message, userMsg, system string, onDelta func(string) error) (string, error) {
	return r.run(ctx, history, userMsg, system, onDelta)
}

func (r *Responder) run(ctx context.Context, history []Message, userMsg, system string, onDelta func(string) error) (string, error) {
	if r == nil || r.llm == nil {
		return "", apierr.ModelExecution("", "not_configured", nil)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msgs := buildMessages(system, history, userMsg)
	p := llm.Params{Model: r.model, Temperature: llm.Temperature(0.7)}

	var (
		out      string
		err      error
		abortErr error
		sent     int
	)
	if onDelta == nil {
		out, err = r.llm.Complete(callCtx, msgs, p)
	} else {
		out, err = r.llm.Stream(callCtx, msgs, p, func(d string) error {
			if e := onDelta(d); e != nil {
				abortErr = e
				return e
			}
			sent++
			return nil
		})
	}
	if abortErr != nil {
		return out, &StreamAbortedError{Err: abortErr}
	}
	if err != nil && sent > 0 {
		errorType := "stream_interrupted"
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			errorType = "timeout"
		}
		r.log.Warn("Model stream failed mid-reply", "deltas", sent, "error", err)
		return "", apierr.ModelExecution(r.model, errorType, &StreamInterruptedError{Err: err, Sent: sent})
	}
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			r.log.Warn("Model response timed out", "timeout", r.timeout.String())
			return TimeoutMessage, nil
		}
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", llm.ErrEmptyCompletion
	}
	return out, nil
}

func newReply(agent AgentType, req Request, content string) *Reply {
	return &Reply{
		ID:      uuid.NewString(),
		Content: content,
		Agent:   agent,
		Topic:   req.Topic,
		Persona: req.Persona,
	}
}

type tutorAgent struct{ r *Responder }

func (a *tutorAgent) Type() AgentType { return AgentTutor }

func (a *tutorAgent) Handle(ctx context.Context, req Request) (*Reply, error) {
	return respond(ctx, a.r, AgentTutor, req, systemPrompt(req.Persona, req.Context))
}

type motivationalAgent struct{ r *Responder }

func (a *motivationalAgent) Type() AgentType { return AgentMotivational }

func (a *motivationalAgent) Handle(ctx context.Context, req Request) (*Reply, error) {
	return respond(ctx, a.r, AgentMotivational, req, motivationalPrompt(req.Persona, req.Context))
}

func respond(ctx context.Context, r *Responder, agent AgentType, req Request, system string) (*Reply, error) {
	var history []Message
	if req.Context != nil {
		history = req.Context.RecentHistory(historyTurns)
	}
	var (
		out string
		err error
	)
	if req.OnDelta != nil {
		out, err = r.StreamResponse(ctx, history, req.Text, system, req.OnDelta)
	} else {
		out, err = r.GenerateResponse(ctx, history, req.Text, system)
	}
	if err != nil {
		return nil, err
	}
	reply := newReply(agent, req, out)
	reply.Streamed = req.OnDelta != nil && out != TimeoutMessage
	reply.Metadata = map[string]any{"agent": string(agent)}
	return reply, nil
}

type quizAgent struct{ quiz QuizGenerator }

func (a *quizAgent) Type() AgentType { return AgentQuiz }

func (a *quizAgent) Handle(ctx context.Context, req Request) (*Reply, error) {
	if a.quiz == nil {
		return nil, errors.New("quiz generator not configured")
	}
	difficulty := classroom.Beginner
	if req.Context != nil {
		difficulty = classroom.ParseDifficulty(req.Context.Difficulty())
	}
	q, err := a.quiz.GenerateQuiz(ctx, req.Topic, difficulty, quizQuestions)
	if err != nil {
		return nil, err
	}
	if q == nil || len(q.Questions) == 0 {
		return nil, fmt.Errorf("no quiz questions for %q", req.Topic)
	}
	reply := newReply(AgentQuiz, req, formatQuiz(req.Topic, q.Questions))
	reply.Metadata = map[string]any{
		"agent":     string(AgentQuiz),
		"topic":     req.Topic,
		"questions": q.Questions,
	}
	return reply, nil
}

func formatQuiz(topic string, qs []classroom.QuizQuestion) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Okay, here's a quiz on %s:\n", topic)
	for i, q := range qs {
		fmt.Fprintf(&b, "\nQ%d: %s\n", i+1, q.Text)
		for j, opt := range q.Options {
			fmt.Fprintf(&b, "  %c. %s\n", 'A'+j, opt)
		}
	}
	return b.String()
}

type curatorAgent struct{ search ContentSearcher }

func (a *curatorAgent) Type() AgentType { return AgentContentCurator }

func (a *curatorAgent) Handle(ctx context.Context, req Request) (*Reply, error) {
	if a.search == nil {
		return nil, errors.New("content search not configured")
	}
	results := a.search.SearchAllSources(ctx, req.Topic, nil, curatorMaxResults, true)

	var b strings.Builder
	found := 0
	for _, typ := range retrieval.AllTypes {
		items := results[typ]
		if len(items) == 0 {
			continue
		}
		if found == 0 {
			fmt.Fprintf(&b, "Here are some resources on %s:\n", req.Topic)
		}
		fmt.Fprintf(&b, "\n%s:\n", typeHeading(typ))
		for i, it := range items {
			if i == curatorMaxResults {
				break
			}
			found++
			b.WriteString("- " + it.Title)
			if it.Author != "" {
				b.WriteString(" by " + it.Author)
			}
			if it.URL != "" {
				b.WriteString(" (" + it.URL + ")")
			}
			b.WriteByte('\n')
		}
	}
	content := b.String()
	if found == 0 {
		content = fmt.Sprintf("I couldn't find any resources on %s right now. Try a different search term?", req.Topic)
	}
	reply := newReply(AgentContentCurator, req, content)
	reply.Metadata = map[string]any{
		"agent":   string(AgentContentCurator),
		"query":   req.Topic,
		"results": found,
	}
	return reply, nil
}

func typeHeading(t retrieval.ContentType) string {
	switch t {
	case retrieval.Video:
		return "Videos"
	case retrieval.Book:
		return "Books"
	case retrieval.Course:
		return "Courses"
	case retrieval.Podcast:
		return "Podcasts"
	}
	return string(t)
}

func newAgents(d Deps) map[AgentType]Agent {
	r := NewResponder(d)
	return map[AgentType]Agent{
		AgentTutor:          &tutorAgent{r: r},
		AgentMotivational:   &motivationalAgent{r: r},
		AgentQuiz:           &quizAgent{quiz: d.Quiz},
		AgentContentCurator: &curatorAgent{search: d.Search},
	}
}
