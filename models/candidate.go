package models

import "time"

// Candidate это участник, который может попасть в пару в текущем раунде.
type Candidate struct {
	ID           int       `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	Name         string    `json:"name" db:"name"`
	CommunityID  *int      `json:"community_id,omitempty" db:"community_id"`
	CountyID     *int      `json:"county_id,omitempty" db:"county_id"`
	RegionID     *int      `json:"region_id,omitempty" db:"region_id"`
	Points       int       `json:"points" db:"points"`
	IsEligible   bool      `json:"is_eligible" db:"is_eligible"`
	HasPaid      bool      `json:"has_paid" db:"has_paid"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// CanBePaired reports whether the candidate may appear in a generated match.
func (c Candidate) CanBePaired() bool {
	return c.IsEligible && c.HasPaid
}

func (c Candidate) SameCommunity(other Candidate) bool {
	return c.CommunityID != nil && other.CommunityID != nil && *c.CommunityID == *other.CommunityID
}
