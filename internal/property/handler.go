package property

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"contract-secretary/internal/auth"
)

const maxJSONBodyBytes = 1 << 20

// Handler is a thin collaborator on the auth boundary: every request
// arrives with a verified bearer token and operates on the caller's own
// rows only.
type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) ListProperties(w http.ResponseWriter, r *http.Request) {
	properties, err := h.repo.List(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list properties")
		return
	}

	writeJSON(w, http.StatusOK, properties)
}

func (h *Handler) CreateProperty(w http.ResponseWriter, r *http.Request) {
	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	p, err := h.repo.Create(r.Context(), auth.UserIDFromContext(r.Context()), input)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create property")
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) UpdateProperty(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid property id")
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	p, err := h.repo.Update(r.Context(), auth.UserIDFromContext(r.Context()), id, input)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "property not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update property")
		sentry.CaptureException(err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) DeleteProperty(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid property id")
		return
	}

	err := h.repo.Delete(r.Context(), auth.UserIDFromContext(r.Context()), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "property not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete property")
		sentry.CaptureException(err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseInput(w http.ResponseWriter, r *http.Request) (PropertyInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input PropertyInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return PropertyInput{}, false
	}

	input.ComplexName = strings.TrimSpace(input.ComplexName)
	input.BuildingName = strings.TrimSpace(input.BuildingName)
	input.UnitNo = strings.TrimSpace(input.UnitNo)
	input.TypeInfo = strings.TrimSpace(input.TypeInfo)
	input.Note = strings.TrimSpace(input.Note)

	if input.ComplexName == "" || !utf8.ValidString(input.ComplexName) || utf8.RuneCountInString(input.ComplexName) > 100 {
		writeError(w, http.StatusBadRequest, "complexName is invalid")
		return PropertyInput{}, false
	}
	if input.BuildingName == "" || utf8.RuneCountInString(input.BuildingName) > 20 {
		writeError(w, http.StatusBadRequest, "buildingName is invalid")
		return PropertyInput{}, false
	}
	if input.UnitNo == "" || utf8.RuneCountInString(input.UnitNo) > 20 {
		writeError(w, http.StatusBadRequest, "unitNo is invalid")
		return PropertyInput{}, false
	}
	if utf8.RuneCountInString(input.TypeInfo) > 50 {
		writeError(w, http.StatusBadRequest, "typeInfo is invalid")
		return PropertyInput{}, false
	}
	if utf8.RuneCountInString(input.Note) > 1000 {
		writeError(w, http.StatusBadRequest, "note is invalid")
		return PropertyInput{}, false
	}

	return input, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
