package logger

import (
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the recipient under the key "user_id".
// An empty id returns an empty Attr.
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// EventID records the notification event under the key "event_id".
func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

// Endpoint records a push endpoint under the key "endpoint".
// The path is reduced to its last characters.
func Endpoint(endpoint string) slog.Attr {
	return slog.String("endpoint", redactEndpoint(endpoint))
}

// Audience records a push-service origin under the key "audience".
func Audience(origin string) slog.Attr {
	return slog.String("audience", origin)
}

// StatusCode records an HTTP status under the key "status_code".
func StatusCode(code int) slog.Attr {
	return slog.Int("status_code", code)
}

// ErrorCode records a classified failure under the key "error_code".
func ErrorCode(code string) slog.Attr {
	if code == "" {
		return slog.Attr{}
	}
	return slog.String("error_code", code)
}

// Count records a quantity under the given key.
func Count(key string, n int) slog.Attr {
	return slog.Int(key, n)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Topic records a message topic under the key "topic".
func Topic(name string) slog.Attr {
	return slog.String("topic", name)
}

func redactEndpoint(endpoint string) string {
	const keep = 8
	// scheme://host/... is preserved up to the third slash.
	slashes := 0
	for i, r := range endpoint {
		if r == '/' {
			slashes++
			if slashes == 3 {
				rest := endpoint[i:]
				if len(rest) <= keep+1 {
					return endpoint
				}
				return endpoint[:i] + "/..." + rest[len(rest)-keep:]
			}
		}
	}
	return endpoint
}
