package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/edgeee/commentsystem/api/validator"
	"github.com/edgeee/commentsystem/auth"
	"github.com/edgeee/commentsystem/widget"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/cors"
)

// A UserRecorder keeps the mention directory up to date with users seen on
// authenticated requests.
type UserRecorder interface {
	UpsertUser(ctx context.Context, u widget.User) error
}

// A BlobReader serves attachments kept in process. Only the in-memory store
// implements it; S3 attachments are served by S3.
type BlobReader interface {
	Blob(key string) (io.Reader, string, bool)
}

// API provides the REST endpoints for the comment widget.
type API struct {
	Logger      *slog.Logger
	Assembler   *widget.Assembler
	Repository  *widget.Repository
	Coordinator *widget.Coordinator
	Directory   widget.Directory
	Users       UserRecorder
	Auth        *auth.Authority
	Val         *validator.Validator
	// Sanitizer cleans comment bodies before they are rendered. Defaults to
	// the bluemonday UGC policy.
	Sanitizer *bluemonday.Policy
	// Attachments, when set, serves GET /attachments/{name}.
	Attachments BlobReader
	// CORSOrigins lists the sites allowed to embed the widget. Empty allows
	// every origin.
	CORSOrigins []string
	// MaxUploadBytes caps multipart request bodies. Defaults to 10 MiB.
	MaxUploadBytes int64
	// Now defaults to time.Now and drives the "time ago" labels.
	Now func() time.Time

	once      sync.Once
	handler   http.Handler
	closing   chan struct{}
	closeOnce sync.Once
}

const defaultMaxUploadBytes = 10 << 20

func (a *API) setupRoutes() {
	if a.Sanitizer == nil {
		a.Sanitizer = bluemonday.UGCPolicy()
	}
	if a.Val == nil {
		a.Val = validator.New()
	}
	if a.MaxUploadBytes <= 0 {
		a.MaxUploadBytes = defaultMaxUploadBytes
	}
	a.closing = make(chan struct{})

	mux := http.NewServeMux()

	mux.HandleFunc("GET /comments", a.listComments)
	mux.HandleFunc("GET /comments/count", a.countComments)
	mux.HandleFunc("POST /comments", a.createComment)
	mux.HandleFunc("POST /comments/{commentID}/replies", a.createReply)
	mux.HandleFunc("POST /comments/{commentID}/reactions", a.createReaction)
	mux.HandleFunc("POST /comments/{commentID}/replies/{replyID}/reactions", a.createReaction)
	mux.HandleFunc("GET /mentions", a.listMentions)
	mux.HandleFunc("GET /events", a.streamEvents)
	mux.HandleFunc("GET /healthz", a.health)
	if a.Attachments != nil {
		mux.HandleFunc("GET /attachments/{name}", a.getAttachment)
	}

	var h http.Handler = mux
	if a.Auth != nil {
		h = a.Auth.Middleware(a.Logger)(h)
	}
	a.handler = cors.New(cors.Options{
		AllowedOrigins: a.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(h)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(a.setupRoutes)
	a.Logger.Info("Request received", "method", r.Method, "path", r.URL.Path)
	a.handler.ServeHTTP(w, r)
}

// CloseStreams ends every open event stream. Call it when the server shuts
// down; streams never go idle on their own.
func (a *API) CloseStreams() {
	a.once.Do(a.setupRoutes)
	a.closeOnce.Do(func() { close(a.closing) })
}

func (a *API) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("Could not encode JSON body", "error", err.Error())
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, err error, msg string) {
	type response struct {
		Error string `json:"error"`
	}
	if status >= http.StatusInternalServerError {
		a.Logger.Error("Error", "status", status, "error", err.Error())
	} else {
		a.Logger.Warn("Request failed", "status", status, "error", err.Error())
	}
	a.respond(w, status, response{Error: msg})
}

// respondWidgetError maps the widget error taxonomy to HTTP statuses. msg is
// used for failures that are not the client's fault.
func (a *API) respondWidgetError(w http.ResponseWriter, err error, msg string) {
	var (
		authErr   *widget.AuthError
		uploadErr *widget.UploadError
	)
	switch {
	case errors.As(err, &authErr), errors.Is(err, widget.ErrNotSignedIn):
		a.respondError(w, http.StatusUnauthorized, err, "Sign in to continue")
	case errors.Is(err, widget.ErrEmptySubmission):
		a.respondError(w, http.StatusBadRequest, err, "Comment has no text and no attachment")
	case errors.Is(err, widget.ErrInvalidEmoji):
		a.respondError(w, http.StatusBadRequest, err, "Invalid emoji")
	case errors.Is(err, widget.ErrInvalidCursor):
		a.respondError(w, http.StatusBadRequest, err, "Invalid cursor")
	case errors.Is(err, widget.ErrNotFound):
		a.respondError(w, http.StatusNotFound, err, "Comment not found")
	case errors.Is(err, widget.ErrReactionConflict):
		a.respondError(w, http.StatusConflict, err, "Too many concurrent reactions, try again")
	case errors.Is(err, widget.ErrSubmitInProgress):
		a.respondError(w, http.StatusConflict, err, "Submit already in progress")
	case errors.As(err, &uploadErr):
		a.respondError(w, http.StatusBadGateway, err, "Could not upload attachment")
	default:
		a.respondError(w, http.StatusInternalServerError, err, msg)
	}
}

func (a *API) validateBody(w http.ResponseWriter, s any) bool {
	errs := a.Val.ValidateStruct(s)
	type response struct {
		Errors []validator.ValidationError `json:"errors"`
	}

	if len(errs) > 0 {
		a.respond(w, http.StatusBadRequest, &response{
			Errors: errs,
		})
		return false
	}
	return true
}

// signedIn returns the user of an authenticated request and records them in
// the directory. It responds 401 and returns false otherwise.
func (a *API) signedIn(w http.ResponseWriter, r *http.Request) (widget.User, bool) {
	u, err := auth.FromContext(r.Context())
	if err != nil {
		a.respondWidgetError(w, err, "")
		return widget.User{}, false
	}
	if a.Users != nil {
		if err := a.Users.UpsertUser(r.Context(), u); err != nil {
			a.Logger.Error("Could not record user", "user", u.ID, "error", err.Error())
		}
	}
	return u, true
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	a.respond(w, http.StatusOK, response{Status: "ok"})
}
