package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/trackzero/chorenet/internal/models"
	"github.com/trackzero/chorenet/internal/repository"
	"github.com/trackzero/chorenet/internal/services"
)

type ICalHandler struct {
	choreService *services.ChoreService
	tokenRepo    repository.APITokenRepository
	settingsRepo repository.SettingsRepository
	haToken      string
}

func NewICalHandler(
	choreService *services.ChoreService,
	tokenRepo repository.APITokenRepository,
	settingsRepo repository.SettingsRepository,
	haToken string,
) *ICalHandler {
	return &ICalHandler{
		choreService: choreService,
		tokenRepo:    tokenRepo,
		settingsRepo: settingsRepo,
		haToken:      haToken,
	}
}

func (handler *ICalHandler) Feed(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	authorized := handler.haToken != "" && token == handler.haToken
	if !authorized {
		tokenHash := repository.HashToken(token)
		if found, err := handler.tokenRepo.FindByTokenHash(r.Context(), tokenHash); err == nil &&
			found.Scope == models.TokenScopeICal &&
			(found.ExpiresAt == nil || found.ExpiresAt.After(time.Now())) {
			authorized = true
		}
	}
	if !authorized {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	calendarName := "ChoreNet"
	if householdName, err := handler.settingsRepo.Get(r.Context(), "household_name"); err == nil && householdName != "" {
		calendarName = householdName + " Chores"
	}

	calendar := ical.NewCalendar()
	calendar.SetMethod(ical.MethodPublish)
	calendar.SetProductId(fmt.Sprintf("-//%s//ChoreNet//EN", calendarName))
	calendar.SetCalscale("GREGORIAN")
	calendar.SetXWRCalName(calendarName)

	for _, instance := range handler.choreService.Instances() {
		if instance.OpensAt.IsZero() {
			continue
		}
		event := calendar.AddEvent(instance.InstanceID + "@chorenet")
		event.SetSummary(instanceSummary(instance))
		event.SetDescription(instanceDescription(instance))
		event.SetDtStampTime(instance.OpensAt)
		if instance.TimePeriod == models.PeriodAllDay {
			event.SetAllDayStartAt(instance.OpensAt)
			event.SetAllDayEndAt(instance.ClosesAt)
		} else {
			event.SetStartAt(instance.OpensAt)
			event.SetEndAt(instance.ClosesAt)
		}
		event.SetProperty(ical.ComponentPropertyCategories, string(instance.Status))
		if instance.Status == models.ChoreStatusOverdue {
			event.SetPriority(1)
		}
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=chorenet.ics")
	w.Write([]byte(calendar.Serialize()))
}

func instanceSummary(instance services.InstanceView) string {
	if instance.Status == models.ChoreStatusCompleted {
		return "[done] " + instance.ChoreName
	}
	return instance.ChoreName
}

func instanceDescription(instance services.InstanceView) string {
	lines := []string{"Status: " + string(instance.Status)}
	for _, person := range instance.People {
		state := "open"
		if person.Completed {
			state = "done"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", person.PersonID, state))
	}
	return strings.Join(lines, "\n")
}

// Home Assistant sensor endpoint
type HASensorHandler struct {
	choreService *services.ChoreService
	haToken      string
}

func NewHASensorHandler(choreService *services.ChoreService, haToken string) *HASensorHandler {
	return &HASensorHandler{
		choreService: choreService,
		haToken:      haToken,
	}
}

func (handler *HASensorHandler) Sensors(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	token = strings.TrimPrefix(token, "Bearer ")

	if handler.haToken == "" || token != handler.haToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	summary := handler.choreService.Summary()
	sensors := map[string]interface{}{
		"active_chores":        summary.ActiveCount,
		"pending_chores":       summary.PendingCount,
		"overdue_chores":       summary.OverdueCount,
		"all_chores_completed": summary.AllChoresCompleted,
		"has_overdue_chores":   summary.HasOverdueChores,
		"warnings":             summary.Warnings,
	}

	personSensors := make(map[string]interface{})
	for _, person := range handler.choreService.People() {
		personSensors[person.PersonID] = map[string]interface{}{
			"name":                 person.PersonName,
			"active_chores":        person.ActiveCount,
			"overdue_chores":       person.OverdueCount,
			"required_chores":      person.RequiredCount,
			"optional_chores":      person.OptionalCount,
			"has_active_chores":    person.HasActiveChores,
			"all_chores_completed": person.AllChoresCompleted,
		}
	}
	sensors["people"] = personSensors

	choreSensors := make(map[string]interface{})
	for _, chore := range handler.choreService.Chores() {
		choreSensors[chore.ID] = map[string]interface{}{
			"name":          chore.Name,
			"status":        chore.Status,
			"due_date":      chore.DueDate,
			"next_due_date": chore.NextDueDate,
		}
	}
	sensors["chores"] = choreSensors

	writeJSON(w, http.StatusOK, sensors)
}
