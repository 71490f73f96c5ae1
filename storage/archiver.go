package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Dosada05/tournament-progression/models"
)

type StatusReader interface {
	GetStatus(ctx context.Context, tournamentID int) (*models.ProgressionStatus, error)
}

// Archiver stores the final progression status of every completed tournament.
type Archiver struct {
	store    ObjectStore
	statuses StatusReader
	logger   *slog.Logger
}

func NewArchiver(store ObjectStore, statuses StatusReader, logger *slog.Logger) *Archiver {
	return &Archiver{store: store, statuses: statuses, logger: logger}
}

func ArchiveKey(tournamentID int) string {
	return fmt.Sprintf("progression/%d/final.json", tournamentID)
}

type archiveDocument struct {
	Status     *models.ProgressionStatus `json:"status"`
	ArchivedBy string                    `json:"archived_by"`
	EventID    string                    `json:"event_id"`
}

// Listener archives on tournament_completed and ignores every other event.
func (a *Archiver) Listener() func(ctx context.Context, event models.ProgressionEvent) error {
	return func(ctx context.Context, event models.ProgressionEvent) error {
		if event.Type != models.EventTournamentCompleted {
			return nil
		}
		_, err := a.Archive(ctx, event.TournamentID, event.ID)
		return err
	}
}

func (a *Archiver) Archive(ctx context.Context, tournamentID int, eventID string) (*PutResult, error) {
	st, err := a.statuses.GetStatus(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("archive of tournament %d skipped: %w", tournamentID, err)
	}
	body, err := json.MarshalIndent(archiveDocument{Status: st, ArchivedBy: "progression", EventID: eventID}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode archive of tournament %d: %w", tournamentID, err)
	}

	res, err := a.store.Put(ctx, ArchiveKey(tournamentID), "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	a.logger.Info("tournament archived",
		slog.Int("tournament_id", tournamentID),
		slog.String("key", res.Key),
		slog.String("location", res.Location))
	return res, nil
}
