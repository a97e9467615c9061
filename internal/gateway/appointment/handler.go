// Package appointment turns free text or a photographed note into a
// structured appointment. A model does the heavy lifting; the regex
// fallback keeps the endpoint useful when it cannot. The endpoint never
// hard-fails: callers always get 200 with a best-effort result plus an
// error field describing any degraded path.
package appointment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Adamtbull/friction-ai/internal/admission"
	"github.com/Adamtbull/friction-ai/internal/logger"
	"github.com/Adamtbull/friction-ai/internal/middleware"
	"github.com/Adamtbull/friction-ai/internal/pkg/apierr"
	"github.com/Adamtbull/friction-ai/internal/pkg/httpx"
	jsonpkg "github.com/Adamtbull/friction-ai/internal/pkg/json"
	"github.com/Adamtbull/friction-ai/internal/pkg/memory"
	"github.com/Adamtbull/friction-ai/internal/provider"
)

// maxBodyBytes leaves room for a base64 photo of a paper note.
const maxBodyBytes = 8 << 20

const (
	sourceModel     = "model"
	sourceHeuristic = "heuristic"
)

const extractionPrompt = `Extract the appointment from the following input.
Reply with a single JSON object and nothing else, using exactly these keys:
{"title":"","date":"YYYY-MM-DD","time":"HH:MM","location":"","notes":""}.
Leave a key empty when the input does not state it. Do not invent values.`

// Degraded-path messages surfaced in the response error field. The
// underlying cause goes to the log, not the client.
var (
	errRateLimited = errors.New("rate limited")
	errModel       = errors.New("model unavailable")
	errUnusable    = errors.New("model answer unusable")
)

// Extractor is the slice of the provider dispatcher this handler consumes.
type Extractor interface {
	Send(ctx context.Context, model provider.Model, msgs []provider.Message) (string, error)
	GenerateVision(ctx context.Context, model provider.Model, prompt, imageType, imageB64 string) (string, error)
}

type Handler struct {
	admission *admission.Controller
	extractor Extractor
	now       func() time.Time
}

func NewHandler(ctrl *admission.Controller, extractor Extractor) *Handler {
	return &Handler{admission: ctrl, extractor: extractor, now: time.Now}
}

type extractRequest struct {
	Text      string `json:"text"`
	Image     string `json:"image"`
	ImageType string `json:"imageType"`
}

type extractResponse struct {
	Appointment Appointment `json:"appointment"`
	Source      string      `json:"source"`
	Error       string      `json:"error,omitempty"`
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		httpx.WriteError(w, apierr.Unauthenticated("missing identity"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.WriteError(w, &apierr.Error{
				Status:  http.StatusRequestEntityTooLarge,
				Code:    apierr.CodeValidation,
				Message: "request body too large",
			})
			return
		}
		httpx.WriteError(w, apierr.Validation("unreadable request body"))
		return
	}
	// Photo payloads are the largest bodies this service accepts.
	defer memory.AfterLargeRequest(int64(len(body)))

	var req extractRequest
	if err := jsonpkg.Unmarshal(body, &req); err != nil {
		httpx.WriteError(w, apierr.Validation("malformed request body"))
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" && req.Image == "" {
		httpx.WriteError(w, apierr.Validation("text or image required"))
		return
	}

	appt, extractErr := h.fromModel(r.Context(), ident.UserID, httpx.ClientIP(r), req)
	resp := extractResponse{Appointment: appt, Source: sourceModel}
	if extractErr != nil {
		resp.Appointment = extractHeuristic(req.Text, h.now())
		resp.Source = sourceHeuristic
		resp.Error = extractErr.Error()
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) fromModel(ctx context.Context, userID, ip string, req extractRequest) (Appointment, error) {
	decision := h.admission.Check(ctx, userID, ip)
	if !decision.Allowed {
		return Appointment{}, errRateLimited
	}

	model := provider.VisionDefault()
	var raw string
	var err error
	if req.Image != "" {
		imageType := req.ImageType
		if imageType == "" {
			imageType = "image/jpeg"
		}
		raw, err = h.extractor.GenerateVision(ctx, model, extractionPrompt, imageType, req.Image)
	} else {
		msgs := []provider.Message{{Role: provider.RoleUser, Content: extractionPrompt + "\n\n" + req.Text}}
		raw, err = h.extractor.Send(ctx, model, msgs)
	}
	if err != nil {
		logger.Warn("appointment extraction falling back: %v", err)
		return Appointment{}, errModel
	}

	appt, err := parseModelAnswer(raw)
	if err != nil {
		logger.Warn("appointment extraction falling back: %v", err)
		return Appointment{}, errUnusable
	}
	return appt, nil
}

// parseModelAnswer tolerates the model wrapping its JSON in prose or a
// markdown fence: it parses the outermost {...} block found.
func parseModelAnswer(raw string) (Appointment, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return Appointment{}, errors.New("no JSON object in model answer")
	}
	var appt Appointment
	if err := jsonpkg.UnmarshalString(raw[start:end+1], &appt); err != nil {
		return Appointment{}, err
	}
	if appt.empty() {
		return Appointment{}, errors.New("model found nothing")
	}
	return appt, nil
}
