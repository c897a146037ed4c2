package hello

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
)

const (
	// Message is returned by every greeting.
	Message = "Cloud Native Application"

	// DefaultHostname is used when HOSTNAME is unset or empty.
	DefaultHostname = "localhost"

	hostnameEnv = "HOSTNAME"
)

// Env looks up an environment variable the way os.LookupEnv does.
type Env func(key string) (string, bool)

// HelloResponse defines the structure of our response. Field order is the
// order of the keys on the wire.
type HelloResponse struct {
	Message  string `json:"message"`
	Hostname string `json:"hostname"`
}

// Hostname resolves the hostname to report from env.
func Hostname(env Env) string {
	if v, ok := env(hostnameEnv); ok && v != "" {
		return v
	}
	return DefaultHostname
}

// NewHelloResponse builds the greeting for the current environment.
func NewHelloResponse(env Env) HelloResponse {
	return HelloResponse{
		Message:  Message,
		Hostname: Hostname(env),
	}
}

// Handler serves the greeting. The environment is read on every request.
type Handler struct {
	env Env
	log logrus.FieldLogger
}

// NewHandler returns a greeting handler backed by env. A nil env means the
// process environment.
func NewHandler(env Env, log logrus.FieldLogger) *Handler {
	if env == nil {
		env = os.LookupEnv
	}
	return &Handler{env: env, log: log.WithField("subsystem", "hello")}
}

// ServeHTTP is an HTTP handler that returns the greeting message.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := NewHelloResponse(h.env)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.WithError(err).Warn("Failed to write greeting")
	}
}

// HelloHandler serves the greeting from the process environment.
func HelloHandler(w http.ResponseWriter, r *http.Request) {
	NewHandler(nil, logrus.StandardLogger()).ServeHTTP(w, r)
}
