package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter receives every built error while reporting is active.
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// SentryReporter forwards errors to Sentry with credentials scrubbed.
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a Sentry reporter.
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError captures ee once. Cancellations are operator actions, not faults,
// and are never sent.
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() || ee.Category == CategoryCancellation {
		return
	}

	message := scrubMessageForPrivacy(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))
	title := generateErrorTitle(ee)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.Component)
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))

		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = scrubMessageForPrivacy(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}

		level := getErrorLevel(ee.Category)
		scope.SetLevel(level)
		scope.SetFingerprint([]string{title, ee.Component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

func generateErrorTitle(ee *EnhancedError) string {
	var parts []string
	if ee.Component != "" && ee.Component != ComponentUnknown {
		parts = append(parts, titleCase(ee.Component))
	}
	parts = append(parts, titleCase(strings.ReplaceAll(string(ee.Category), "-", " "))+" Error")
	if op, ok := ee.Context["operation"].(string); ok && op != "" {
		words := strings.Fields(strings.ReplaceAll(op, "_", " "))
		for i, w := range words {
			words[i] = titleCase(w)
		}
		parts = append(parts, strings.Join(words, " "))
	}
	return strings.Join(parts, " ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func getErrorLevel(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryNetwork, CategoryTimeout, CategoryConflict:
		return sentry.LevelWarning
	case CategoryTransform, CategoryNotFound:
		return sentry.LevelInfo
	default:
		return sentry.LevelError
	}
}

var (
	reporterMu              sync.RWMutex
	globalTelemetryReporter TelemetryReporter
)

// SetTelemetryReporter installs the global reporter; nil disables reporting.
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	globalTelemetryReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

// GetTelemetryReporter returns the current reporter.
func GetTelemetryReporter() TelemetryReporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return globalTelemetryReporter
}

func reportToTelemetry(ee *EnhancedError) {
	if r := GetTelemetryReporter(); r != nil && r.IsEnabled() {
		r.ReportError(ee)
	}
}

// InitSentry initializes the Sentry client and installs a SentryReporter.
// An empty dsn leaves reporting disabled.
func InitSentry(dsn, release string) error {
	if dsn == "" {
		SetTelemetryReporter(nil)
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			event.ServerName = ""
			return event
		},
	}); err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	SetTelemetryReporter(NewSentryReporter(true))
	return nil
}

// FlushSentry waits up to timeout for queued events to be delivered.
func FlushSentry(timeout time.Duration) {
	if GetTelemetryReporter() != nil {
		sentry.Flush(timeout)
	}
}

var (
	// user:password@tcp(host:3306)/db as used by the MySQL driver
	dsnCredentialRegex = regexp.MustCompile(`[^\s:/@]+:[^\s@]*@(tcp|unix)\(`)
	urlQueryRegex      = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	secretRegexes      = []*regexp.Regexp{
		regexp.MustCompile(`(?i)password[=:]\S+`),
		regexp.MustCompile(`(?i)token[=:]\S+`),
		regexp.MustCompile(`(?i)api[_-]?key[=:]\S+`),
	}
)

func scrubMessageForPrivacy(message string) string {
	scrubbed := dsnCredentialRegex.ReplaceAllString(message, "[CREDENTIALS_REDACTED]@$1(")
	scrubbed = urlQueryRegex.ReplaceAllString(scrubbed, "$1?[REDACTED]")
	for _, re := range secretRegexes {
		scrubbed = re.ReplaceAllString(scrubbed, "[SECRET_REDACTED]")
	}
	return scrubbed
}
