// Package notify sends fire-and-forget HTTP notifications for controller
// events. The primary use case is ntfy.sh, but any HTTP webhook works.
package notify

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/LISSConsulting/LISSTech.RalphLoop/internal/loop"
)

// Notifier posts plain-text HTTP notifications for selected controller events.
type Notifier struct {
	url        string
	title      string
	onComplete bool
	onError    bool
	client     *http.Client
	wg         sync.WaitGroup
}

// New creates a Notifier. projectName is used as the X-Title header; if empty,
// "Ralph" is used instead.
func New(notifURL, projectName string, onComplete, onError bool) *Notifier {
	title := "Ralph"
	if projectName != "" {
		title = projectName
	}
	return &Notifier{
		url:        notifURL,
		title:      title,
		onComplete: onComplete,
		onError:    onError,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Hook is a loop.Controller.Hook-compatible function. It fires asynchronous
// POSTs for events that match the configured notification flags.
func (n *Notifier) Hook(entry loop.LogEntry) {
	switch entry.Kind {
	case loop.LogDone:
		if n.onComplete {
			n.send(entry.Message)
		}
	case loop.LogError, loop.LogExhausted, loop.LogAgentFailure:
		if n.onError {
			n.send(entry.Message)
		}
	}
}

// Wait blocks until in-flight posts finish. Each post is bounded by the
// client timeout.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) send(message string) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.post(message)
	}()
}

// post sends a plain-text POST to the configured URL. Errors are silently
// discarded so notification failures never interrupt the loop.
func (n *Notifier) post(message string) {
	req, err := http.NewRequest(http.MethodPost, n.url, strings.NewReader(message))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-Title", n.title)
	resp, err := n.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}
