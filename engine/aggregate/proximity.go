package aggregate

// Likelihood is the proximity channel's confidence that a facility is
// actually connected to the structure it was found near.
type Likelihood string

const (
	// Facility profile tiers.
	LikelihoodLikely   Likelihood = "likely"
	LikelihoodPossible Likelihood = "possible"

	// Coarse profile tiers, used when proximity is the only signal.
	LikelihoodYes      Likelihood = "Yes"
	LikelihoodMaybe    Likelihood = "Maybe"
	LikelihoodUnlikely Likelihood = "Unlikely"
)

// Profile selects one of the two historical likelihood scales. The scales
// disagree on purpose: within a full trace, proximity is a supplementary
// signal and anything past 3 km is merely possible; in survey mode it is
// the only signal and the tiers stretch to 10/25 km.
type Profile int

const (
	// ProfileFacility: likely under 3 km, possible beyond.
	ProfileFacility Profile = iota
	// ProfileCoarse: Yes under 10 km, Maybe under 25 km, else Unlikely.
	ProfileCoarse
)

// Classification radii in kilometres.
const (
	facilityLikelyKm = 3.0
	coarseYesKm      = 10.0
	coarseMaybeKm    = 25.0
)

// Classify maps a centroid distance to a likelihood tier.
func (p Profile) Classify(distanceKm float64) Likelihood {
	switch p {
	case ProfileCoarse:
		switch {
		case distanceKm < coarseYesKm:
			return LikelihoodYes
		case distanceKm < coarseMaybeKm:
			return LikelihoodMaybe
		default:
			return LikelihoodUnlikely
		}
	default:
		if distanceKm < facilityLikelyKm {
			return LikelihoodLikely
		}
		return LikelihoodPossible
	}
}
