package profile

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	DefaultBaseURL          = "http://localhost:8080/api"
	DefaultSuggestPath      = "/suggest"
	DefaultAutocompletePath = "/autocomplete"
	DefaultSessionsPath     = "/history/sessions"
	DefaultMessagesPath     = "/history/sessions/{id}/messages"
	DefaultPageSize         = 20
	DefaultRequestTimeout   = 30 * time.Second
)

// Profile is the configuration to start the chat client.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Version is the current version of the client
	Version string
	// LogLevel is one of debug, info, warn, error
	LogLevel string

	// BaseURL is the root of the travel suggestion backend.
	BaseURL string
	// AuthToken is sent as "Authorization: Bearer <token>" when set.
	AuthToken string

	SuggestPath      string // STAYBOT_SUGGEST_PATH (default: /suggest)
	AutocompletePath string // STAYBOT_AUTOCOMPLETE_PATH (default: /autocomplete)
	SessionsPath     string // STAYBOT_SESSIONS_PATH (default: /history/sessions)
	MessagesPath     string // STAYBOT_MESSAGES_PATH (default: /history/sessions/{id}/messages)

	// PageSize is the history page size used by restore and "more".
	PageSize int
	// TopN is the default result-count hint for suggestions. Zero means unset.
	TopN int
	// UseLLM overrides the backend's LLM usage when non-empty ("true" or "false").
	UseLLM string
	// Filters are merged into every suggestion request.
	Filters map[string]any

	// RequestTimeout bounds every HTTP call.
	RequestTimeout time.Duration
	// RateLimit is the per-endpoint request rate in requests per second.
	RateLimit float64
	// RateBurst is the per-endpoint burst size.
	RateBurst int

	AutocompleteCacheSize int
	AutocompleteCacheTTL  time.Duration
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// UseLLMOverride returns the parsed UseLLM value, or nil when unset.
func (p *Profile) UseLLMOverride() *bool {
	switch strings.ToLower(strings.TrimSpace(p.UseLLM)) {
	case "true", "1", "yes":
		v := true
		return &v
	case "false", "0", "no":
		v := false
		return &v
	default:
		return nil
	}
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.BaseURL == "" {
		p.BaseURL = DefaultBaseURL
	}
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return errors.Wrapf(err, "invalid base url %q", p.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("base url %q must use http or https", p.BaseURL)
	}
	if u.Host == "" {
		return errors.Errorf("base url %q has no host", p.BaseURL)
	}
	p.BaseURL = strings.TrimRight(p.BaseURL, "/")

	if p.SuggestPath == "" {
		p.SuggestPath = DefaultSuggestPath
	}
	if p.AutocompletePath == "" {
		p.AutocompletePath = DefaultAutocompletePath
	}
	if p.SessionsPath == "" {
		p.SessionsPath = DefaultSessionsPath
	}
	if p.MessagesPath == "" {
		p.MessagesPath = DefaultMessagesPath
	}
	if !strings.Contains(p.MessagesPath, "{id}") {
		return errors.Errorf("messages path %q must contain the {id} placeholder", p.MessagesPath)
	}

	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.TopN < 0 {
		return errors.Errorf("top-n must not be negative, got %d", p.TopN)
	}
	if p.RequestTimeout <= 0 {
		p.RequestTimeout = DefaultRequestTimeout
	}

	if err := checkToken(p.AuthToken, time.Now()); err != nil {
		slog.Error("auth token rejected", slog.String("error", err.Error()))
		return err
	}

	return nil
}

// checkToken rejects a JWT bearer token whose exp claim has passed.
// Opaque (non-JWT) tokens are accepted as-is; the server has the final word.
func checkToken(token string, now time.Time) error {
	if token == "" || strings.Count(token, ".") != 2 {
		return nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if now.After(exp.Time) {
		return errors.Errorf("auth token expired at %s", exp.Time.Format(time.RFC3339))
	}
	return nil
}
