package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Dosada05/tournament-progression/models"
)

// StatusReader отдаёт текущий статус турнира без блокировки координатора.
type StatusReader interface {
	GetStatus(ctx context.Context, tournamentID int) (*models.ProgressionStatus, error)
}

// NewNotificationListener e-mails the tournament admins about events enabled in NotificationSettings.
func NewNotificationListener(statuses StatusReader, notifier AdminNotifier, logger *slog.Logger) EventListener {
	return func(ctx context.Context, event models.ProgressionEvent) error {
		st, err := statuses.GetStatus(ctx, event.TournamentID)
		if err != nil {
			return fmt.Errorf("notification skipped: %w", err)
		}
		settings := st.Config.NotificationSettings
		var enabled bool
		switch event.Type {
		case models.EventError:
			enabled = settings.NotifyOnError
		case models.EventRoundCompleted:
			enabled = settings.NotifyOnRoundComplete
		case models.EventLevelCompleted, models.EventTournamentCompleted:
			enabled = settings.NotifyOnLevelComplete
		}
		if !enabled || len(st.Config.AdminEmails) == 0 {
			return nil
		}

		subject, body := describeEvent(event)
		if err := notifier.NotifyAdmins(ctx, st.Config.AdminEmails, subject, body); err != nil {
			return fmt.Errorf("admin notification for %s failed: %w", event.Type, err)
		}
		logger.Info("admin notification sent",
			slog.Int("tournament_id", event.TournamentID),
			slog.String("event_type", string(event.Type)),
			slog.Int("recipients", len(st.Config.AdminEmails)))
		return nil
	}
}

func describeEvent(event models.ProgressionEvent) (subject, body string) {
	var b strings.Builder
	switch event.Type {
	case models.EventError:
		subject = fmt.Sprintf("Tournament %d: progression error in %s %s", event.TournamentID, event.Level, event.Round)
		fmt.Fprintf(&b, "Code: %v\nMessage: %v\n", event.Payload["code"], event.Payload["message"])
	case models.EventRoundCompleted:
		subject = fmt.Sprintf("Tournament %d: round %s completed", event.TournamentID, event.Round)
		fmt.Fprintf(&b, "Round %s of the %s level is complete.\n", event.Round, event.Level)
	case models.EventLevelCompleted:
		subject = fmt.Sprintf("Tournament %d: %s level completed", event.TournamentID, event.Level)
		fmt.Fprintf(&b, "The %s level is complete. Next level: %v.\n", event.Level, event.Payload["next_level"])
	default:
		subject = fmt.Sprintf("Tournament %d: %s", event.TournamentID, event.Type)
		fmt.Fprintf(&b, "Event %s at %s level, round %s.\n", event.Type, event.Level, event.Round)
	}
	fmt.Fprintf(&b, "Time: %s\n", event.Timestamp.Format("2006-01-02 15:04:05 MST"))
	return subject, b.String()
}
