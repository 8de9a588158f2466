package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/trackzero/chorenet/internal/models"
	"github.com/trackzero/chorenet/internal/repository"
	"github.com/trackzero/chorenet/internal/services"
)

type APIHandler struct {
	choreService *services.ChoreService
	tokenRepo    repository.APITokenRepository
}

func NewAPIHandler(choreService *services.ChoreService, tokenRepo repository.APITokenRepository) *APIHandler {
	return &APIHandler{
		choreService: choreService,
		tokenRepo:    tokenRepo,
	}
}

type completionRequest struct {
	PersonID string `json:"person_id"`
}

type choreRequest struct {
	ID                   string        `json:"chore_id"`
	Name                 string        `json:"name"`
	Description          string        `json:"description"`
	AssignedPeople       []string      `json:"assigned_people"`
	OptionalPeople       []string      `json:"optional_people"`
	TimePeriod           models.Period `json:"time_period"`
	RecurrenceType       string        `json:"recurrence_type"`
	Weekday              int           `json:"weekday"`
	DayOfMonth           int           `json:"day_of_month"`
	Date                 *models.Date  `json:"date"`
	Required             *bool         `json:"required"`
	Enabled              *bool         `json:"enabled"`
	CompletionAutomation string        `json:"completion_automation"`
}

func (request choreRequest) input() services.ChoreInput {
	recurrenceType := models.RecurrenceType(request.RecurrenceType)
	if recurrenceType == "" {
		recurrenceType = models.RecurrenceDaily
	}
	return services.ChoreInput{
		ID:             request.ID,
		Name:           request.Name,
		Description:    request.Description,
		AssignedPeople: request.AssignedPeople,
		OptionalPeople: request.OptionalPeople,
		TimePeriod:     request.TimePeriod,
		Recurrence: models.Recurrence{
			Type:       recurrenceType,
			Weekday:    request.Weekday,
			DayOfMonth: request.DayOfMonth,
			Date:       request.Date,
		},
		Required:             request.Required,
		Enabled:              request.Enabled,
		CompletionAutomation: request.CompletionAutomation,
	}
}

type personRequest struct {
	Name                 string                   `json:"name"`
	TimeWindows          map[string]models.Window `json:"time_windows"`
	CompletionAutomation string                   `json:"completion_automation"`
}

func (request personRequest) person(id string) models.Person {
	windows := models.DefaultTimeWindows
	if window, ok := request.TimeWindows[string(models.PeriodMorning)]; ok {
		windows.Morning = window
	}
	if window, ok := request.TimeWindows[string(models.PeriodAfternoon)]; ok {
		windows.Afternoon = window
	}
	if window, ok := request.TimeWindows[string(models.PeriodEvening)]; ok {
		windows.Evening = window
	}
	return models.Person{
		ID:                   id,
		Name:                 request.Name,
		Windows:              windows,
		CompletionAutomation: request.CompletionAutomation,
	}
}

func (handler *APIHandler) CompleteInstance(w http.ResponseWriter, r *http.Request) {
	handler.setCompleted(w, r, true)
}

func (handler *APIHandler) ResetInstance(w http.ResponseWriter, r *http.Request) {
	handler.setCompleted(w, r, false)
}

func (handler *APIHandler) setCompleted(w http.ResponseWriter, r *http.Request, completed bool) {
	var request completionRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	if request.PersonID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "person_id is required"})
		return
	}

	instanceID := chi.URLParam(r, "id")
	var result services.CommandResult
	var err error
	if completed {
		result, err = handler.choreService.CompleteChore(r.Context(), instanceID, request.PersonID)
	} else {
		result, err = handler.choreService.ResetChore(r.Context(), instanceID, request.PersonID)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	eventTypes := make([]models.EventType, 0, len(result.Events))
	for _, event := range result.Events {
		eventTypes = append(eventTypes, event.Type)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"changed":  result.Changed,
		"instance": result.Instance,
		"events":   eventTypes,
	})
}

func (handler *APIHandler) CreateChore(w http.ResponseWriter, r *http.Request) {
	var request choreRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	chore, err := handler.choreService.AddChore(r.Context(), request.input())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, chore)
}

func (handler *APIHandler) DeleteChore(w http.ResponseWriter, r *http.Request) {
	if err := handler.choreService.RemoveChore(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (handler *APIHandler) PutPerson(w http.ResponseWriter, r *http.Request) {
	var request personRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	person, err := handler.choreService.PutPerson(r.Context(), request.person(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, person)
}

func (handler *APIHandler) DeletePerson(w http.ResponseWriter, r *http.Request) {
	if err := handler.choreService.RemovePerson(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (handler *APIHandler) Summary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, handler.choreService.Summary())
}

func (handler *APIHandler) ListPeople(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, handler.choreService.People())
}

func (handler *APIHandler) GetPerson(w http.ResponseWriter, r *http.Request) {
	person, err := handler.choreService.Person(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, person)
}

func (handler *APIHandler) ListChores(w http.ResponseWriter, r *http.Request) {
	chores := handler.choreService.Chores()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := make([]services.ChoreView, 0, len(chores))
		for _, chore := range chores {
			if string(chore.Status) == status {
				filtered = append(filtered, chore)
			}
		}
		chores = filtered
	}
	writeJSON(w, http.StatusOK, chores)
}

func (handler *APIHandler) GetChore(w http.ResponseWriter, r *http.Request) {
	chore, err := handler.choreService.Chore(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chore)
}

func (handler *APIHandler) ListInstances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, handler.choreService.Instances())
}

func (handler *APIHandler) GetInstance(w http.ResponseWriter, r *http.Request) {
	instance, err := handler.choreService.Instance(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, instance)
}

func (handler *APIHandler) CompletionLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if value := r.URL.Query().Get("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	entries, err := handler.choreService.CompletionLog(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []models.CompletionLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (handler *APIHandler) InstanceLog(w http.ResponseWriter, r *http.Request) {
	entries, err := handler.choreService.InstanceLog(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []models.CompletionLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (handler *APIHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := handler.tokenRepo.FindAll(r.Context())
	if err != nil {
		slog.Error("listing tokens", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list tokens"})
		return
	}

	response := make([]map[string]interface{}, 0, len(tokens))
	for _, token := range tokens {
		response = append(response, map[string]interface{}{
			"id":         token.ID,
			"name":       token.Name,
			"scope":      token.Scope,
			"expires_at": token.ExpiresAt,
			"created_at": token.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

func (handler *APIHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var request struct {
		Name      string `json:"name"`
		Scope     string `json:"scope"`
		ExpiresIn string `json:"expires_in"`
	}
	if !decodeJSON(w, r, &request) {
		return
	}
	if request.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if request.Scope == "" {
		request.Scope = models.TokenScopeAPI
	}
	if request.Scope != models.TokenScopeAPI && request.Scope != models.TokenScopeICal {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "scope must be api or ical"})
		return
	}

	rawToken := repository.GenerateToken()
	token := models.APIToken{
		Name:      request.Name,
		TokenHash: repository.HashToken(rawToken),
		Scope:     request.Scope,
	}
	if request.ExpiresIn != "" {
		duration, err := time.ParseDuration(request.ExpiresIn)
		if err != nil || duration <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expires_in must be a positive duration"})
			return
		}
		expiresAt := time.Now().Add(duration)
		token.ExpiresAt = &expiresAt
	}

	created, err := handler.tokenRepo.Create(ctx, token)
	if err != nil {
		slog.Error("creating token", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create token"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":    created.ID,
		"name":  created.Name,
		"scope": created.Scope,
		"token": rawToken,
	})
}

func (handler *APIHandler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := handler.tokenRepo.Delete(ctx, id); err != nil {
		slog.Error("deleting token", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete token"})
		return
	}

	w.WriteHeader(http.StatusOK)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotAssigned):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrUnknownInstance),
		errors.Is(err, services.ErrPersonNotFound),
		errors.Is(err, services.ErrChoreNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidChore),
		errors.Is(err, services.ErrInvalidPerson):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		slog.Error("handling chore request", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
