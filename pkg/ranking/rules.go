package ranking

import (
	"fmt"

	"github.com/intelligence-arena/arena/pkg/models"
)

// Promotion, demotion and succession thresholds. All rate and streak
// checks read the division-scoped record, which resets on every division
// change.
const (
	novicePromotionMatches = 5
	noviceWinRate          = 0.60
	noviceStreak           = 3

	expertPromotionMatches = 10
	expertWinRate          = 0.65
	expertMinElo           = 1250

	demotionMatches      = 10
	masterDemotionRate   = 0.35
	expertDemotionRate   = 0.30
	expertDemotionStreak = -5

	challengerWinRate = 0.75
	challengerStreak  = 5

	autoSuccessionLosses = 5
	autoSuccessionStreak = -3
)

// EligibleChallenger reports whether a Master may challenge the King.
func EligibleChallenger(a *models.Agent) bool {
	if a.Division != models.DivisionMaster || !a.Active {
		return false
	}
	return a.DivisionStats.WinRate() >= challengerWinRate ||
		a.DivisionStats.CurrentStreak >= challengerStreak
}

// promotionTarget returns the division a winner advances to, or "" when no
// promotion rule fires. Master to King never happens here; the crown moves
// only through king-challenge succession.
func promotionTarget(a *models.Agent) models.Division {
	s := &a.DivisionStats
	switch a.Division {
	case models.DivisionNovice:
		if s.Matches >= novicePromotionMatches &&
			(s.WinRate() >= noviceWinRate || s.CurrentStreak >= noviceStreak) {
			return models.DivisionExpert
		}
	case models.DivisionExpert:
		if s.Matches >= expertPromotionMatches &&
			s.WinRate() >= expertWinRate &&
			a.EloRating >= expertMinElo {
			return models.DivisionMaster
		}
	}
	return ""
}

// demotionTarget returns the division a loser falls to, or "" when no
// demotion rule fires. The King never demotes on a regular loss.
func demotionTarget(a *models.Agent) models.Division {
	s := &a.DivisionStats
	switch a.Division {
	case models.DivisionMaster:
		if s.Matches >= demotionMatches && s.WinRate() < masterDemotionRate {
			return models.DivisionExpert
		}
	case models.DivisionExpert:
		if (s.Matches >= demotionMatches && s.WinRate() < expertDemotionRate) ||
			s.CurrentStreak <= expertDemotionStreak {
			return models.DivisionNovice
		}
	}
	return ""
}

// successionDue reports whether a sitting King must be replaced by the
// automatic succession rule. The streak check reads the record as it
// stood going into the defense: a retained defense resets the streak to
// zero or better before finalization, so an accumulated collapse would
// otherwise never cost the crown.
func successionDue(king *models.Agent, priorStreak int) bool {
	return king.KingChallengeLosses >= autoSuccessionLosses ||
		priorStreak <= autoSuccessionStreak
}

func movementReason(to models.Division, a *models.Agent) string {
	return fmt.Sprintf("reached %s with %.0f%% win rate and %.0f ELO",
		to, a.DivisionStats.WinRate()*100, a.EloRating)
}
