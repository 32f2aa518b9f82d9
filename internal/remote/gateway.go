// Package remote is the HTTP gateway to the remote persistence service.
//
// The gateway is a stateless transport: it owns no topic state and keeps
// only the session (device/user ids) and a learned clock offset. Every
// response envelope carries the server's current time; the gateway folds
// that into a SkewClock so "today" is computed against server time
// rather than the device's possibly-wrong local clock.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/retentionapp/retention/internal/dates"
	"github.com/retentionapp/retention/internal/topic"
)

// DefaultTimeout bounds every remote call. A call that does not resolve
// within it is treated as a transport failure.
const DefaultTimeout = 10 * time.Second

// User is the remote store's record for this installation.
type User struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"deviceId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Gateway is the HTTP client for the remote store.
type Gateway struct {
	baseURL string
	client  *http.Client
	session *Session
	clock   *dates.SkewClock
	logger  *log.Logger
}

// Config customizes a Gateway.
type Config struct {
	// Timeout applied to every request (default: DefaultTimeout).
	Timeout time.Duration

	// Logger for request activity (default: stderr logger).
	Logger *log.Logger
}

// New creates a Gateway for the remote store at baseURL, acting as the
// given session.
func New(baseURL string, session *Session, cfg *Config) *Gateway {
	if cfg == nil {
		cfg = &Config{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Gateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		session: session,
		clock:   &dates.SkewClock{},
		logger:  logger,
	}
}

// Clock returns the server-skew-corrected clock. Usable offline: with no
// learned offset it matches the local clock.
func (g *Gateway) Clock() dates.Clock { return g.clock }

// Today returns the current calendar date by the skew-corrected clock.
func (g *Gateway) Today() dates.Date { return dates.Today(g.clock) }

// Now returns the current instant by the skew-corrected clock.
func (g *Gateway) Now() time.Time { return g.clock.Now() }

// Session returns the gateway's session.
func (g *Gateway) Session() *Session { return g.session }

// envelope is the common wrapper on every remote response.
type envelope struct {
	Error      string        `json:"error,omitempty"`
	ServerTime string        `json:"serverTime,omitempty"`
	User       *User         `json:"user,omitempty"`
	Topic      *topic.Topic  `json:"topic,omitempty"`
	Topics     []topic.Topic `json:"topics,omitempty"`
	Streak     *int          `json:"streak,omitempty"`
	Timestamp  int64         `json:"timestamp,omitempty"`
}

func (g *Gateway) do(ctx context.Context, op, method, path string, body any) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	var env envelope
	if len(data) > 0 {
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, &APIError{Op: op, Status: resp.StatusCode, Message: fmt.Sprintf("malformed response: %v", err)}
		}
	}
	g.absorbServerTime(&env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{Op: op, Status: resp.StatusCode, Message: msg}
	}
	return &env, nil
}

// absorbServerTime updates the skew clock from a response envelope.
func (g *Gateway) absorbServerTime(env *envelope) {
	if env.ServerTime == "" {
		return
	}
	serverNow, err := time.Parse(time.RFC3339, env.ServerTime)
	if err != nil {
		g.logger.Printf("Ignoring unparseable serverTime %q: %v", env.ServerTime, err)
		return
	}
	g.clock.SetOffset(time.Until(serverNow))
}

// Probe checks reachability with a time request. Used as the
// connectivity test before a sync cycle.
func (g *Gateway) Probe(ctx context.Context) error {
	_, err := g.do(ctx, "probe", http.MethodGet, "/api/time", nil)
	return err
}

// ServerTime fetches the remote clock and refreshes the skew offset.
func (g *Gateway) ServerTime(ctx context.Context) (time.Time, error) {
	env, err := g.do(ctx, "time", http.MethodGet, "/api/time", nil)
	if err != nil {
		return time.Time{}, err
	}
	if env.ServerTime == "" {
		return time.Time{}, &APIError{Op: "time", Status: http.StatusOK, Message: "response missing serverTime"}
	}
	t, err := time.Parse(time.RFC3339, env.ServerTime)
	if err != nil {
		return time.Time{}, &APIError{Op: "time", Status: http.StatusOK, Message: fmt.Sprintf("unparseable serverTime: %v", err)}
	}
	return t, nil
}

// Register creates or looks up the user for this device and caches the
// assigned user id in the session.
func (g *Gateway) Register(ctx context.Context) (User, error) {
	env, err := g.do(ctx, "register", http.MethodPost, "/api/users/register",
		map[string]string{"deviceId": g.session.DeviceID})
	if err != nil {
		return User{}, err
	}
	if env.User == nil {
		return User{}, &APIError{Op: "register", Status: http.StatusOK, Message: "response missing user"}
	}
	if g.session.UserID != env.User.ID {
		g.session.UserID = env.User.ID
		if err := g.session.Save(); err != nil {
			g.logger.Printf("Failed to persist session: %v", err)
		}
	}
	return *env.User, nil
}

// ListTopics fetches the full remote topic set for this user.
func (g *Gateway) ListTopics(ctx context.Context) ([]topic.Topic, error) {
	env, err := g.do(ctx, "list topics", http.MethodGet, "/api/topics?userId="+g.session.UserID, nil)
	if err != nil {
		return nil, err
	}
	return env.Topics, nil
}

// CreateTopic creates a topic remotely; the response carries the
// canonical id and server-computed review plan.
func (g *Gateway) CreateTopic(ctx context.Context, f topic.Fields) (topic.Topic, error) {
	body := struct {
		UserID string `json:"userId"`
		topic.Fields
	}{g.session.UserID, f}
	env, err := g.do(ctx, "create topic", http.MethodPost, "/api/topics", body)
	if err != nil {
		return topic.Topic{}, err
	}
	if env.Topic == nil {
		return topic.Topic{}, &APIError{Op: "create topic", Status: http.StatusOK, Message: "response missing topic"}
	}
	return *env.Topic, nil
}

// UpdateTopic applies a partial edit remotely.
func (g *Gateway) UpdateTopic(ctx context.Context, id string, u topic.Update) (topic.Topic, error) {
	env, err := g.do(ctx, "update topic", http.MethodPut, "/api/topics/"+id, u)
	if err != nil {
		return topic.Topic{}, err
	}
	if env.Topic == nil {
		return topic.Topic{}, &APIError{Op: "update topic", Status: http.StatusOK, Message: "response missing topic"}
	}
	return *env.Topic, nil
}

// DeleteTopic removes a topic and its reviews remotely.
func (g *Gateway) DeleteTopic(ctx context.Context, id string) error {
	_, err := g.do(ctx, "delete topic", http.MethodDelete, "/api/topics/"+id, nil)
	return err
}

// CompleteReview advances the topic's review stage remotely and returns
// the updated topic plus the server's streak count.
func (g *Gateway) CompleteReview(ctx context.Context, id string) (topic.Topic, int, error) {
	body := map[string]string{"userId": g.session.UserID}
	env, err := g.do(ctx, "complete review", http.MethodPost, "/api/topics/"+id+"/review", body)
	if err != nil {
		return topic.Topic{}, 0, err
	}
	if env.Topic == nil {
		return topic.Topic{}, 0, &APIError{Op: "complete review", Status: http.StatusOK, Message: "response missing topic"}
	}
	count := 0
	if env.Streak != nil {
		count = *env.Streak
	}
	return *env.Topic, count, nil
}
