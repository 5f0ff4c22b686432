package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/edgeee/commentsystem/widget"
)

// heartbeatInterval keeps idle event streams open through proxies.
var heartbeatInterval = 25 * time.Second

// streamEvents sends a server-sent event for every change the coordinator
// handles. The widget reloads its first page on each one.
func (a *API) streamEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		a.Logger.Warn("Could not clear write deadline", "error", err.Error())
	}

	changes, cancel := a.Coordinator.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		a.Logger.Error("Could not flush event stream", "error", err.Error())
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-a.closing:
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		case ch, ok := <-changes:
			if !ok {
				return
			}
			if err := writeEvent(w, ch); err != nil {
				a.Logger.Debug("Event stream closed", "error", err.Error())
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w io.Writer, ch widget.Change) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ch.Kind, data)
	return err
}

func (a *API) getAttachment(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	body, _, ok := a.Attachments.Blob(widget.AttachmentPrefix + name)
	if !ok {
		a.respondError(w, http.StatusNotFound, fmt.Errorf("attachment %q", name), "Attachment not found")
		return
	}
	data, err := io.ReadAll(body)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not read attachment")
		return
	}

	// The uploader chose the stored content type, so it is not trusted. Only
	// sniffed raster images are shown inline; everything else is a download.
	// The sandbox keeps scripts from running on this origin either way.
	contentType := http.DetectContentType(data)
	disposition := "inline"
	if !inlineImage(contentType) {
		contentType = "application/octet-stream"
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": name}))
	w.Header().Set("Content-Security-Policy", "sandbox")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := w.Write(data); err != nil {
		a.Logger.Error("Could not write attachment", "error", err.Error())
	}
}

func inlineImage(contentType string) bool {
	switch contentType {
	case "image/png", "image/jpeg", "image/gif", "image/webp", "image/bmp":
		return true
	}
	return false
}
