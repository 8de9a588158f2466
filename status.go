package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/trackzero/chorenet/internal/models"
	"github.com/trackzero/chorenet/internal/repository"
	"github.com/trackzero/chorenet/internal/services"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))

	statusStyles = map[models.ChoreStatus]lipgloss.Style{
		models.ChoreStatusInactive:  mutedStyle,
		models.ChoreStatusPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("#F5C542")),
		models.ChoreStatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")),
		models.ChoreStatusOverdue:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")),
	}
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last evaluated chore state",
		Long: `Display the state stored by the running service:
- household summary
- people and their open chores
- chore instances and their status`,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	location, err := cfg.Location()
	if err != nil {
		return err
	}
	choreService := services.NewChoreService(
		repository.NewPersonRepository(db),
		repository.NewChoreRepository(db),
		repository.NewInstanceRepository(db),
		repository.NewCompletionLogRepository(db),
		repository.NewOutboxRepository(db),
		repository.NewSettingsRepository(db),
		location,
	)
	if err := choreService.Load(cmd.Context()); err != nil {
		return err
	}

	fmt.Println(renderSummary(choreService.Summary()))
	fmt.Println(renderPeople(choreService.People()))
	fmt.Println(renderInstances(choreService.Instances()))
	return nil
}

func renderSummary(summary services.Summary) string {
	lines := []string{
		titleStyle.Render("ChoreNet"),
		fmt.Sprintf("people %d  chores %d", summary.TotalPeople, summary.TotalChores),
		fmt.Sprintf("active %d  pending %d  overdue %d", summary.ActiveCount, summary.PendingCount, summary.OverdueCount),
		fmt.Sprintf("all chores completed: %t", summary.AllChoresCompleted),
	}
	if !summary.LastEvaluated.IsZero() {
		lines = append(lines, mutedStyle.Render("evaluated "+summary.LastEvaluated.Format("2006-01-02 15:04")))
	}
	for _, warning := range summary.Warnings {
		lines = append(lines, statusStyles[models.ChoreStatusOverdue].Render("! "+warning))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderPeople(people []services.PersonView) string {
	lines := []string{titleStyle.Render("People")}
	if len(people) == 0 {
		lines = append(lines, mutedStyle.Render("(none)"))
	}
	for _, person := range people {
		state := fmt.Sprintf("%d active, %d overdue", person.ActiveCount, person.OverdueCount)
		if person.AllChoresCompleted {
			state = statusStyles[models.ChoreStatusCompleted].Render("done")
		}
		lines = append(lines, fmt.Sprintf("%-16s %s", person.PersonName, state))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderInstances(instances []services.InstanceView) string {
	lines := []string{titleStyle.Render("Chores")}
	if len(instances) == 0 {
		lines = append(lines, mutedStyle.Render("(none)"))
	}
	for _, instance := range instances {
		style, ok := statusStyles[instance.Status]
		if !ok {
			style = mutedStyle
		}
		lines = append(lines, fmt.Sprintf("%s  %-24s %s",
			instance.DueDate, instance.ChoreName, style.Render(string(instance.Status))))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}
