// Package notify defines the narrow UI surfaces the auth flows depend on.
//
// Guards and the bootstrap flow never import a concrete presentation
// mechanism; they receive a Notifier and a Loading indicator at construction.
package notify

import "github.com/bigdata-query/query-front/internal/log"

// Kind is a notice severity
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// Notifier shows a user-visible notice
type Notifier interface {
	Notify(kind Kind, message, description string)
}

// Loading is a blocking loading indicator
type Loading interface {
	Show(text string)
	Hide()
}

// LogNotifier writes notices to the log. Used in tests and as a fallback
// when no browser response is available to carry the notice.
type LogNotifier struct{}

func (LogNotifier) Notify(kind Kind, message, description string) {
	log.LogInfoWithFields("notify", "Notice", map[string]any{
		"kind":        string(kind),
		"message":     message,
		"description": description,
	})
}

// NopLoading discards loading indicator calls
type NopLoading struct{}

func (NopLoading) Show(string) {}
func (NopLoading) Hide()       {}

var _ Notifier = LogNotifier{}
var _ Loading = NopLoading{}
