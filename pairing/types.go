package pairing

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Dosada05/tournament-progression/models"
)

// Коды ошибок, которые клиент возвращает в Result.ErrorCode.
const (
	ErrCodeTransport       = "TRANSPORT_ERROR"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeHTTPStatus      = "HTTP_STATUS"
	ErrCodeInvalidResponse = "INVALID_RESPONSE"
	ErrCodeCanceled        = "CANCELED"
	ErrCodeEngineFailure   = "ENGINE_FAILURE"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
)

// PlayerSeed is only sent at initial tournament setup; later calls let the engine derive its pool.
type PlayerSeed struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	CommunityID *int   `json:"communityId,omitempty"`
	Points      int    `json:"points"`
}

type InitializeRequest struct {
	TournamentID         int                         `json:"tournamentId"`
	Special              bool                        `json:"special"`
	Level                models.Level                `json:"level,omitempty"`
	SchedulingPreference models.SchedulingPreference `json:"schedulingPreference,omitempty"`
	Players              []PlayerSeed                `json:"players,omitempty"`
}

type RoundRequest struct {
	TournamentID     int          `json:"tournamentId"`
	CommunityID      *int         `json:"communityId,omitempty"`
	CompletedMatches []int        `json:"completedMatches,omitempty"`
	Level            models.Level `json:"-"`
	Special          bool         `json:"-"`
}

type FinalizeRequest struct {
	TournamentID int          `json:"tournamentId"`
	CommunityID  *int         `json:"communityId,omitempty"`
	Level        models.Level `json:"-"`
	Special      bool         `json:"-"`
}

type PositionsRequest struct {
	TournamentID int          `json:"tournamentId"`
	Level        models.Level `json:"level,omitempty"`
}

// RoundCode accepts both "R2" and 2 from the engine.
type RoundCode string

func (r *RoundCode) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*r = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*r = RoundCode(str)
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*r = RoundCode(strconv.FormatFloat(n, 'f', -1, 64))
	return nil
}

// MatchDescriptor is a candidate match as proposed by the engine.
type MatchDescriptor struct {
	MatchNumber         int       `json:"matchNumber"`
	Round               RoundCode `json:"round,omitempty"`
	MatchType           string    `json:"matchType,omitempty"`
	Player1ID           int       `json:"player1Id"`
	Player2ID           *int      `json:"player2Id,omitempty"`
	DeterminesPositions []int     `json:"determinesPositions,omitempty"`
	IsLevelFinal        bool      `json:"isLevelFinal"`
	DeterminesTop3      bool      `json:"determinesTop3"`
	IsBye               bool      `json:"isByeMatch"`
	CommunityID         *int      `json:"communityId,omitempty"`
	CountyID            *int      `json:"countyId,omitempty"`
	RegionID            *int      `json:"regionId,omitempty"`
}

type Winner struct {
	PlayerID    int  `json:"playerId"`
	Position    int  `json:"position"`
	CommunityID *int `json:"communityId,omitempty"`
}

type Position struct {
	PlayerID int          `json:"playerId"`
	Position int          `json:"position"`
	Level    models.Level `json:"level,omitempty"`
}

// Response is the engine's envelope for every POST endpoint.
type Response struct {
	Success            bool                   `json:"success"`
	TournamentID       int                    `json:"tournamentId"`
	RoundNumber        RoundCode              `json:"roundNumber,omitempty"`
	Matches            []MatchDescriptor      `json:"matches"`
	Winners            []Winner               `json:"winners,omitempty"`
	Positions          []Position             `json:"positions,omitempty"`
	NextRound          *string                `json:"nextRound,omitempty"`
	TournamentComplete bool                   `json:"tournamentComplete,omitempty"`
	Error              string                 `json:"error,omitempty"`
	ErrorCode          string                 `json:"errorCode,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

// Result is what every client call resolves to. No error crosses the client boundary.
type Result struct {
	Success   bool      `json:"success"`
	Response  *Response `json:"response,omitempty"`
	ErrorCode string    `json:"error_code,omitempty"`
	Message   string    `json:"message,omitempty"`
	Attempts  int       `json:"attempts"`
	Transport bool      `json:"transport"`
}

func (r *Result) Matches() []MatchDescriptor {
	if r == nil || r.Response == nil {
		return nil
	}
	return r.Response.Matches
}

type HealthResult struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message"`
}
