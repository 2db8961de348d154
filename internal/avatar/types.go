package avatar

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Persona string

const (
	PersonaTutor  Persona = "tutor"
	PersonaCoach  Persona = "coach"
	PersonaFriend Persona = "friend"
	PersonaExpert Persona = "expert"
)

func (p Persona) Valid() bool {
	switch p {
	case PersonaTutor, PersonaCoach, PersonaFriend, PersonaExpert:
		return true
	}
	return false
}

type AgentType string

const (
	AgentOrchestrator   AgentType = "orchestrator"
	AgentTutor          AgentType = "tutor"
	AgentQuiz           AgentType = "quiz"
	AgentContentCurator AgentType = "content_curator"
	AgentMotivational   AgentType = "motivational"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

const (
	DefaultMaxHistory = 100
	defaultEngagement = 0.5
	defaultPace       = "medium"

	sentimentWeight  = 0.2
	engagementStep   = 0.05
	patternAlpha     = 0.3
	positiveBoundary = 0.3
	negativeBoundary = -0.3
)

// Message is a conversation turn. Turns are never modified once recorded.
type Message struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Role      Role           `json:"role"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	MediaURL  string         `json:"media_url,omitempty"`
	MediaType string         `json:"media_type,omitempty"`
}

func NewMessage(role Role, content string, at time.Time) Message {
	return Message{ID: uuid.NewString(), Content: content, Role: role, Timestamp: at}
}

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type LearningRecord struct {
	Topic       string    `json:"topic"`
	Module      string    `json:"module,omitempty"`
	Score       *float64  `json:"score,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Context is the per-user conversational state. It is owned by the avatar
// service and only mutated while the user's lock is held.
type Context struct {
	UserID              string             `json:"user_id"`
	SessionID           string             `json:"session_id,omitempty"`
	Persona             Persona            `json:"persona"`
	TopicsDiscussed     []string           `json:"topics_discussed"`
	LearningGoals       []string           `json:"learning_goals"`
	CurrentModule       string             `json:"current_module,omitempty"`
	SentimentScore      float64            `json:"sentiment_score"`
	EngagementScore     float64            `json:"engagement_score"`
	LearningStyle       string             `json:"learning_style,omitempty"`
	LearningPace        string             `json:"learning_pace"`
	Strengths           []string           `json:"strengths"`
	Weaknesses          []string           `json:"weaknesses"`
	InteractionPatterns map[string]float64 `json:"interaction_patterns"`
	ActiveTasks         []Task             `json:"active_tasks"`
	CompletedLearning   []LearningRecord   `json:"completed_learning"`
	Preferences         map[string]any     `json:"preferences"`
	ConversationHistory []Message          `json:"conversation_history"`
	LastInteraction     time.Time          `json:"last_interaction"`
	CreatedAt           time.Time          `json:"created_at"`
}

func NewContext(userID, sessionID string, now time.Time) *Context {
	c := &Context{
		UserID:          userID,
		SessionID:       sessionID,
		Persona:         PersonaTutor,
		EngagementScore: defaultEngagement,
		LearningPace:    defaultPace,
		LastInteraction: now,
		CreatedAt:       now,
	}
	c.normalize()
	return c
}

// normalize fills defaults that a persisted envelope may lack.
func (c *Context) normalize() {
	if !c.Persona.Valid() {
		c.Persona = PersonaTutor
	}
	if c.LearningPace == "" {
		c.LearningPace = defaultPace
	}
	if c.TopicsDiscussed == nil {
		c.TopicsDiscussed = []string{}
	}
	if c.LearningGoals == nil {
		c.LearningGoals = []string{}
	}
	if c.Strengths == nil {
		c.Strengths = []string{}
	}
	if c.Weaknesses == nil {
		c.Weaknesses = []string{}
	}
	if c.InteractionPatterns == nil {
		c.InteractionPatterns = map[string]float64{}
	}
	if c.ActiveTasks == nil {
		c.ActiveTasks = []Task{}
	}
	if c.CompletedLearning == nil {
		c.CompletedLearning = []LearningRecord{}
	}
	if c.Preferences == nil {
		c.Preferences = map[string]any{}
	}
	if c.ConversationHistory == nil {
		c.ConversationHistory = []Message{}
	}
}

// AddMessage appends m and keeps the most recent max turns.
func (c *Context) AddMessage(m Message, max int) {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	c.ConversationHistory = append(c.ConversationHistory, m)
	if over := len(c.ConversationHistory) - max; over > 0 {
		c.ConversationHistory = append([]Message(nil), c.ConversationHistory[over:]...)
	}
}

// RecentHistory returns up to n most recent turns.
func (c *Context) RecentHistory(n int) []Message {
	h := c.ConversationHistory
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	return h
}

func (c *Context) AddTopic(topic string) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return
	}
	for _, t := range c.TopicsDiscussed {
		if strings.EqualFold(t, topic) {
			return
		}
	}
	c.TopicsDiscussed = append(c.TopicsDiscussed, topic)
}

// UpdateSentiment folds a sample in [-1, 1] into the moving average.
func (c *Context) UpdateSentiment(sample float64) {
	c.SentimentScore = sentimentWeight*sample + (1-sentimentWeight)*c.SentimentScore
}

func (c *Context) BumpEngagement() {
	c.EngagementScore = min(1, c.EngagementScore+engagementStep)
}

// RecordAgent moves the chosen agent's share toward 1 and every other
// tracked agent's share toward 0.
func (c *Context) RecordAgent(agent AgentType) {
	if c.InteractionPatterns == nil {
		c.InteractionPatterns = map[string]float64{}
	}
	if _, ok := c.InteractionPatterns[string(agent)]; !ok {
		c.InteractionPatterns[string(agent)] = 0
	}
	for k, v := range c.InteractionPatterns {
		sample := 0.0
		if k == string(agent) {
			sample = 1
		}
		c.InteractionPatterns[k] = patternAlpha*sample + (1-patternAlpha)*v
	}
}

// SentimentLabel buckets the moving average.
func (c *Context) SentimentLabel() string {
	switch {
	case c.SentimentScore > positiveBoundary:
		return "positive"
	case c.SentimentScore < negativeBoundary:
		return "negative"
	default:
		return "neutral"
	}
}

func (c *Context) IsSessionExpired(now time.Time, idle time.Duration) bool {
	return now.Sub(c.LastInteraction) > idle
}

func (c *Context) Difficulty() string {
	if d, ok := c.Preferences["difficulty"].(string); ok {
		return d
	}
	return ""
}

func (c *Context) PendingTasks() []Task {
	var out []Task
	for _, t := range c.ActiveTasks {
		if t.Status == TaskPending {
			out = append(out, t)
		}
	}
	return out
}
