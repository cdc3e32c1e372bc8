package proposal

// #region imports
import "math"

// #endregion

// #region elo

// DefaultKFactor determines how much ratings move after each match.
const DefaultKFactor = 32.0

// ExpectedScore returns the probability that a rating-ra player beats
// a rating-rb player under the Elo model.
func ExpectedScore(ra, rb float64) float64 {
	return 1 / (1 + math.Pow(10, (rb-ra)/400))
}

// EloDelta returns the amount the winner gains and the loser loses,
// keeping the update zero-sum.
func EloDelta(winner, loser, k float64) float64 {
	return k * (1 - ExpectedScore(winner, loser))
}

// #endregion
