package services

import (
	"fmt"
	"strings"

	"github.com/Dosada05/tournament-progression/models"
)

// InitialRound это псевдоним первого раунда уровня, принимаемый в API.
const InitialRound = "initial"

// Фиксированная таблица раундов. Последний раунд уровня является его финалом.
var levelRounds = map[models.Level][]string{
	models.LevelCommunity: {"R1", "R2", "COMMUNITY_SF", "COMMUNITY_F"},
	models.LevelCounty:    {"COUNTY_R1", "COUNTY_SF", "COUNTY_F"},
	models.LevelRegional:  {"REGIONAL_R1", "REGIONAL_SF", "REGIONAL_F"},
	models.LevelNational:  {"NATIONAL_R1", "NATIONAL_SF", "NATIONAL_F"},
}

func RoundsFor(level models.Level) []string {
	return append([]string(nil), levelRounds[level]...)
}

func FirstRound(level models.Level) string {
	rounds := levelRounds[level]
	if len(rounds) == 0 {
		return ""
	}
	return rounds[0]
}

func FinalRound(level models.Level) string {
	rounds := levelRounds[level]
	if len(rounds) == 0 {
		return ""
	}
	return rounds[len(rounds)-1]
}

// RoundIndex returns the position of round within level, or -1.
func RoundIndex(level models.Level, round string) int {
	for i, r := range levelRounds[level] {
		if r == round {
			return i
		}
	}
	return -1
}

// NextRound returns the round after round. ok is false when round is the level final or unknown.
func NextRound(level models.Level, round string) (next string, ok bool) {
	rounds := levelRounds[level]
	i := RoundIndex(level, round)
	if i < 0 || i+1 >= len(rounds) {
		return "", false
	}
	return rounds[i+1], true
}

func PreviousRound(level models.Level, round string) (prev string, ok bool) {
	i := RoundIndex(level, round)
	if i <= 0 {
		return "", false
	}
	return levelRounds[level][i-1], true
}

func IsFinalRound(level models.Level, round string) bool {
	return round != "" && round == FinalRound(level)
}

// IsSemiFinalRound reports whether the winners of round go straight to the level final.
func IsSemiFinalRound(level models.Level, round string) bool {
	next, ok := NextRound(level, round)
	return ok && IsFinalRound(level, next)
}

// ResolveRound maps "initial" (or an empty string) to the first round and validates the rest.
func ResolveRound(level models.Level, round string) (string, error) {
	if !level.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}
	round = strings.TrimSpace(round)
	if round == "" || strings.EqualFold(round, InitialRound) {
		return FirstRound(level), nil
	}
	round = strings.ToUpper(round)
	if RoundIndex(level, round) < 0 {
		return "", fmt.Errorf("%w: %s/%s", ErrInvalidRound, level, round)
	}
	return round, nil
}
