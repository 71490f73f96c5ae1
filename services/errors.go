package services

import "errors"

// Общие ошибки прогрессии, используемые сервисами и маппингом HTTP.
var (
	// Ошибки валидации
	ErrValidationFailed      = errors.New("validation failed")
	ErrInvalidLevel          = errors.New("unknown tournament level")
	ErrInvalidRound          = errors.New("round does not belong to level")
	ErrInsufficientPlayers   = errors.New("at least two eligible and paid candidates are required")
	ErrDuplicateCandidate    = errors.New("duplicate candidate id")
	ErrInvalidFallbackConfig = errors.New("invalid fallback configuration")

	// Ошибки состояния
	ErrProgressionNotFound = errors.New("progression not found for tournament")
	ErrAlreadyInitialized  = errors.New("progression already initialized for tournament")
	ErrInvalidTransition   = errors.New("invalid progression transition")
	ErrTournamentCompleted = errors.New("tournament progression is already complete")
	ErrProgressionStopped  = errors.New("progression was stopped")
	ErrUnknownCommunity    = errors.New("community is not part of this tournament")

	// Ошибки движка пар и запасного алгоритма
	ErrEngineInitFailed           = errors.New("pairing engine failed to initialize tournament")
	ErrRoundGenerationFailed      = errors.New("round generation failed")
	ErrFinalizeFailed             = errors.New("pairing engine failed to finalize winners")
	ErrEngineRequestFailed        = errors.New("pairing engine request failed")
	ErrFallbackDisabled           = errors.New("fallback pairing is disabled")
	ErrManualInterventionRequired = errors.New("manual intervention required")

	// Ошибки мониторинга
	ErrInvalidInterval = errors.New("monitor interval must be positive")
	ErrCheckInProgress = errors.New("completion check already running for tournament")

	// Ошибки матчей
	ErrWinnerRequired = errors.New("completed match requires a winner")
)

// Коды ошибок, которые попадают в ProgressionStatus.Errors.
const (
	CodeEngineInitFailed   = "ENGINE_INIT_FAILED"
	CodeRoundGeneration    = "ROUND_GENERATION_FAILED"
	CodeFinalizeFailed     = "FINALIZE_FAILED"
	CodeManualIntervention = "MANUAL_INTERVENTION_REQUIRED"
	CodePersistenceFailed  = "PERSISTENCE_FAILED"
	CodeLevelInitFailed    = "LEVEL_INIT_FAILED"
)
