package handler

import (
	"encoding/json"
	"net/http"

	"quicknotes/internal/domain"
	"quicknotes/internal/middleware"
	"quicknotes/internal/service"
	"quicknotes/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type NoteHandler struct {
	service  *service.NoteService
	validate *validator.Validate
}

func NewNoteHandler(service *service.NoteService) *NoteHandler {
	return &NoteHandler{
		service:  service,
		validate: validator.New(),
	}
}

// ownerFromRequest returns the authenticated user. A caller may name the
// owner explicitly with ?owner=, which must be themselves.
func ownerFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "Unauthorized")
		return "", false
	}
	if owner := r.URL.Query().Get("owner"); owner != "" && owner != userID {
		response.Forbidden(w, service.ErrForbidden.Error())
		return "", false
	}
	return userID, true
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	var req domain.CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	note, err := h.service.Create(r.Context(), userID, &req)
	if err != nil {
		writeServiceError(w, err, "Failed to create note")
		return
	}

	response.Created(w, note)
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	notes, err := h.service.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "Failed to list notes")
		return
	}

	response.Success(w, notes)
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]
	if noteID == "" {
		response.BadRequest(w, "Note ID is required")
		return
	}

	userID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	note, err := h.service.GetByID(r.Context(), userID, noteID)
	if err != nil {
		writeServiceError(w, err, "Failed to get note")
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]
	if noteID == "" {
		response.BadRequest(w, "Note ID is required")
		return
	}

	userID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	var req domain.UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	note, err := h.service.Update(r.Context(), userID, noteID, &req)
	if err != nil {
		writeServiceError(w, err, "Failed to update note")
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]
	if noteID == "" {
		response.BadRequest(w, "Note ID is required")
		return
	}

	userID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, noteID); err != nil {
		writeServiceError(w, err, "Failed to delete note")
		return
	}

	response.Message(w, "Note deleted successfully")
}
