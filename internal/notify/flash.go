package notify

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/bigdata-query/query-front/internal/cookie"
	"github.com/bigdata-query/query-front/internal/log"
)

// Notice is the JSON payload carried by the flash cookie
type Notice struct {
	Kind        Kind   `json:"kind"`
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
}

// Flash delivers notices through a read-once cookie on the pending response.
// The page layer pops the cookie and renders the toast.
type Flash struct {
	w http.ResponseWriter
}

// NewFlash creates a per-request flash notifier
func NewFlash(w http.ResponseWriter) *Flash {
	return &Flash{w: w}
}

func (f *Flash) Notify(kind Kind, message, description string) {
	data, err := json.Marshal(Notice{Kind: kind, Message: message, Description: description})
	if err != nil {
		log.LogError("Failed to encode notice: %v", err)
		return
	}
	// Cookie values cannot carry raw JSON punctuation
	cookie.SetNotice(f.w, url.QueryEscape(string(data)))
}

// PopNotice reads and decodes the flash cookie from a request, if present
func PopNotice(r *http.Request) (*Notice, bool) {
	raw, err := cookie.Get(r, cookie.NoticeCookie)
	if err != nil {
		return nil, false
	}
	unescaped, err := url.QueryUnescape(raw)
	if err != nil {
		return nil, false
	}
	var notice Notice
	if err := json.Unmarshal([]byte(unescaped), &notice); err != nil {
		return nil, false
	}
	return &notice, true
}

var _ Notifier = (*Flash)(nil)
