package config

import (
	"fmt"
	"net/url"

	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

// Validate checks agent settings for values that would break job execution.
func Validate(s *Settings) error {
	if s == nil {
		return fmt.Errorf("%w: settings are nil", forgeerrors.ErrConfigInvalid)
	}
	if s.WorkDir == "" {
		return fmt.Errorf("%w: work_dir cannot be empty", forgeerrors.ErrConfigInvalid)
	}
	if s.Proxy.Configured() {
		u, err := url.ParseRequestURI(s.Proxy.URL)
		if err != nil {
			return fmt.Errorf("%w: proxy url: %v", forgeerrors.ErrConfigInvalid, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: proxy url %q must be absolute with a scheme and host", forgeerrors.ErrConfigInvalid, s.Proxy.URL)
		}
		if s.Proxy.Password != "" && s.Proxy.Username == "" {
			return fmt.Errorf("%w: proxy password set without username", forgeerrors.ErrConfigInvalid)
		}
	}
	return nil
}
