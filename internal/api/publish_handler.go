package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/google/uuid"

	"github.com/sungwon/newsletter/internal/apperr"
	"github.com/sungwon/newsletter/internal/auth"
	"github.com/sungwon/newsletter/internal/idempotency"
	"github.com/sungwon/newsletter/internal/issue"
	"github.com/sungwon/newsletter/internal/logger"
)

const maxPublishBody = 1 << 20

// Publisher is satisfied by *publish.Orchestrator.
type Publisher interface {
	Publish(ctx context.Context, callerID uuid.UUID, rawKey string, content issue.Content) (*idempotency.SavedResponse, error)
}

type publishRequest struct {
	issue.Content
	IdempotencyKey string `json:"idempotency_key"`
}

// PublishHandler handles POST /admin/newsletters. The body is JSON or an
// HTML form with title, html_content, text_content and idempotency_key.
func PublishHandler(publisher Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		callerID := auth.UserFromContext(r.Context())
		if callerID == uuid.Nil {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		req, err := decodePublishRequest(w, r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		resp, err := publisher.Publish(r.Context(), callerID, req.IdempotencyKey, req.Content)
		switch {
		case err == nil:
		case apperr.Is(err, apperr.KindValidation):
			respondValidationErrors(w, apperr.ViolationsOf(err))
			return
		default:
			log.Error().Err(err).
				Str("user_id", callerID.String()).
				Str("kind", apperr.KindOf(err).String()).
				Msg("publish failed")
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		if err := resp.Render(w); err != nil {
			log.Warn().Err(err).Msg("failed to write publish response")
		}
	}
}

func decodePublishRequest(w http.ResponseWriter, r *http.Request) (publishRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPublishBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var req publishRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return publishRequest{}, errors.New("invalid JSON body")
		}
		return req, nil
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxPublishBody); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return publishRequest{}, errors.New("invalid form body")
		}
		return publishRequest{
			Content: issue.Content{
				Title:       r.PostFormValue("title"),
				HTMLContent: r.PostFormValue("html_content"),
				TextContent: r.PostFormValue("text_content"),
			},
			IdempotencyKey: r.PostFormValue("idempotency_key"),
		}, nil
	default:
		return publishRequest{}, errors.New("unsupported content type")
	}
}
