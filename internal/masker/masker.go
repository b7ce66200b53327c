// Package masker provides secret redaction for FORGE log output and
// reported issues. A Masker combines orchestrator-supplied secret values
// with built-in credential patterns; every line that leaves the agent
// passes through Mask first.
package masker

import (
	"io"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// RedactedValue is the replacement string for sensitive data.
const RedactedValue = "[REDACTED]"

// MinSecretLength is the shortest value accepted for registration.
// Masking one- or two-character values would corrupt arbitrary output.
const MinSecretLength = 3

// builtinPatterns contains compiled regular expressions for detecting
// sensitive values regardless of registration. These match common API key,
// token, and credential formats.
var builtinPatterns = []*regexp.Regexp{ //nolint:gochecknoglobals // Package-level patterns for reuse
	// GitHub tokens (ghp_, gho_, ghu_, ghs_, ghr_)
	regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{20,}`),

	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_.-]{20,}`),

	// Authorization headers with tokens
	regexp.MustCompile(`(?i)authorization\s*[:=]\s*["']?[a-zA-Z0-9_-]{20,}["']?`),

	// Generic secret assignments (secret, password, credential, token with values)
	regexp.MustCompile(`(?i)(secret|password|credential|passwd|pwd|token)\s*[:=]\s*["']?[^\s"']{8,}["']?`),

	// SSH private keys
	regexp.MustCompile(`(?i)-----BEGIN[A-Z\s]+PRIVATE KEY-----`),
}

// Masker redacts registered secret values and built-in credential patterns
// from text. Safe for concurrent use: task threads register output secrets
// while descendant threads mask log lines.
type Masker struct {
	mu     sync.RWMutex
	values []string
}

// New creates a Masker with no registered values. Built-in credential
// patterns apply from the start.
func New() *Masker {
	return &Masker{}
}

// AddValue registers a secret value for redaction. Values shorter than
// MinSecretLength are ignored. The URL-escaped form is registered too so
// that secrets embedded in query strings are still caught.
func (m *Masker) AddValue(value string) {
	if len(value) < MinSecretLength {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.addLocked(value)
	if escaped := url.QueryEscape(value); escaped != value {
		m.addLocked(escaped)
	}

	// Longest-first ordering so overlapping secrets redact fully.
	sort.Slice(m.values, func(i, j int) bool {
		return len(m.values[i]) > len(m.values[j])
	})
}

func (m *Masker) addLocked(value string) {
	for _, existing := range m.values {
		if existing == value {
			return
		}
	}
	m.values = append(m.values, value)
}

// Mask redacts all registered values and built-in pattern matches from text.
func (m *Masker) Mask(text string) string {
	if text == "" {
		return text
	}

	m.mu.RLock()
	for _, v := range m.values {
		text = strings.ReplaceAll(text, v, RedactedValue)
	}
	m.mu.RUnlock()

	for _, pattern := range builtinPatterns {
		text = pattern.ReplaceAllString(text, RedactedValue)
	}
	return text
}

// FilteringWriter wraps an io.Writer and masks secrets in everything
// written through it. Used to wrap log file writers so sensitive data is
// never persisted to disk, even if it slips into a log message.
type FilteringWriter struct {
	m *Masker
	w io.Writer
}

// NewFilteringWriter creates a FilteringWriter backed by the given masker.
func NewFilteringWriter(m *Masker, w io.Writer) *FilteringWriter {
	return &FilteringWriter{m: m, w: w}
}

// Write implements io.Writer, masking secrets before writing.
// It returns the original length so callers don't observe a short write
// when redaction changes the byte count.
func (fw *FilteringWriter) Write(p []byte) (int, error) {
	if _, err := fw.w.Write([]byte(fw.m.Mask(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
