package pg

import (
	"fmt"
	"net/url"
)

// WithApplicationName добавляет application_name к DSN, если он не задан.
// Имя видно в pg_stat_activity.
func WithApplicationName(dsn, name string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid DSN format: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	q := u.Query()
	if q.Get("application_name") == "" && name != "" {
		q.Set("application_name", name)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RedactDSN скрывает пароль в DSN для логов.
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "<invalid dsn>"
	}
	return u.Redacted()
}
