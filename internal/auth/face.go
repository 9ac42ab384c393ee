package auth

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

var ErrNoFaceMatch = errors.New("no matching user found")

// DefaultFaceThreshold is the largest descriptor distance accepted as a match.
const DefaultFaceThreshold = 0.6

type Profile struct {
	UserID     uuid.UUID
	Descriptor []float64
}

// FaceMatcher resolves a descriptor to one of the candidate profiles.
type FaceMatcher interface {
	Match(descriptor []float64, candidates []Profile) (uuid.UUID, bool)
}

// EuclideanMatcher picks the nearest candidate strictly below Threshold.
// Candidates earlier in the slice win ties.
type EuclideanMatcher struct {
	Threshold float64
}

func (m EuclideanMatcher) Match(descriptor []float64, candidates []Profile) (uuid.UUID, bool) {
	best := uuid.Nil
	bestDist := m.Threshold
	found := false
	for _, c := range candidates {
		if len(c.Descriptor) != len(descriptor) {
			continue
		}
		d := euclidean(descriptor, c.Descriptor)
		if d < bestDist {
			best, bestDist, found = c.UserID, d, true
		}
	}
	return best, found
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

type ProfileSource interface {
	FaceProfiles(ctx context.Context) ([]Profile, error)
}

// FaceAuthenticator issues gate tokens to users recognised by face.
type FaceAuthenticator struct {
	profiles ProfileSource
	matcher  FaceMatcher
	issuer   *TokenIssuer
	ttl      time.Duration
}

func NewFaceAuthenticator(profiles ProfileSource, matcher FaceMatcher, issuer *TokenIssuer, ttl time.Duration) *FaceAuthenticator {
	return &FaceAuthenticator{profiles: profiles, matcher: matcher, issuer: issuer, ttl: ttl}
}

func (a *FaceAuthenticator) Login(ctx context.Context, descriptor []float64) (Token, error) {
	candidates, err := a.profiles.FaceProfiles(ctx)
	if err != nil {
		return Token{}, err
	}
	uid, ok := a.matcher.Match(descriptor, candidates)
	if !ok {
		return Token{}, ErrNoFaceMatch
	}
	return a.issuer.Issue(uid, []string{ScopeParkingHistory}, a.ttl)
}
