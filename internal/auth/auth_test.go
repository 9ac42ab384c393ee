package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedIssuer(at time.Time) *TokenIssuer {
	ti := NewTokenIssuer("test-secret", "parking")
	ti.now = func() time.Time { return at }
	return ti
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	ti := fixedIssuer(now)
	uid := uuid.New()

	tok, err := ti.Issue(uid, []string{ScopeGeneral, ScopeAdmin}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, 3600, tok.ExpiresIn)

	p, err := ti.Parse(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, uid, p.UserID)
	assert.True(t, p.Has(ScopeAdmin))
	assert.False(t, p.Has(ScopeParkingHistory))
}

func TestTokenIssuer_Rejects(t *testing.T) {
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	ti := fixedIssuer(now)
	tok, err := ti.Issue(uuid.New(), []string{ScopeGeneral}, time.Minute)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later := fixedIssuer(now.Add(2 * time.Minute))
		_, err := later.Parse(tok.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenIssuer("other-secret", "parking")
		other.now = ti.now
		_, err := other.Parse(tok.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("wrong issuer", func(t *testing.T) {
		other := NewTokenIssuer("test-secret", "elsewhere")
		other.now = ti.now
		_, err := other.Parse(tok.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := ti.Parse("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestMiddleware(t *testing.T) {
	ti := NewTokenIssuer("test-secret", "parking")
	uid := uuid.New()
	tok, err := ti.Issue(uid, []string{ScopeParkingHistory}, time.Hour)
	require.NoError(t, err)

	var seen Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(ti, logrus.New())(next)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + tok.AccessToken, http.StatusNoContent},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/history", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, c.want, rr.Code)
		})
	}
	assert.Equal(t, uid, seen.UserID)
	assert.True(t, seen.Has(ScopeParkingHistory))
}

func TestEuclideanMatcher(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	m := EuclideanMatcher{Threshold: DefaultFaceThreshold}

	candidates := []Profile{
		{UserID: a, Descriptor: []float64{0.5, 0.5}},
		{UserID: b, Descriptor: []float64{0.1, 0.1}},
		{UserID: c, Descriptor: []float64{0.1, 0.1, 0.1}},
	}

	got, ok := m.Match([]float64{0.1, 0.2}, candidates)
	require.True(t, ok)
	assert.Equal(t, b, got)

	_, ok = m.Match([]float64{5, 5}, candidates)
	assert.False(t, ok)

	// equal distance: earlier candidate wins
	twins := []Profile{{UserID: a, Descriptor: []float64{0, 0.1}}, {UserID: b, Descriptor: []float64{0.1, 0}}}
	got, ok = m.Match([]float64{0, 0}, twins)
	require.True(t, ok)
	assert.Equal(t, a, got)

	_, ok = m.Match([]float64{0.7}, []Profile{{UserID: a, Descriptor: []float64{0}}})
	assert.False(t, ok)
}

type profileFunc func(ctx context.Context) ([]Profile, error)

func (f profileFunc) FaceProfiles(ctx context.Context) ([]Profile, error) { return f(ctx) }

func TestFaceAuthenticator_Login(t *testing.T) {
	ti := NewTokenIssuer("test-secret", "parking")
	uid := uuid.New()
	src := profileFunc(func(context.Context) ([]Profile, error) {
		return []Profile{{UserID: uid, Descriptor: []float64{0.2, 0.4}}}, nil
	})
	fa := NewFaceAuthenticator(src, EuclideanMatcher{Threshold: DefaultFaceThreshold}, ti, time.Hour)

	tok, err := fa.Login(context.Background(), []float64{0.2, 0.45})
	require.NoError(t, err)
	p, err := ti.Parse(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, uid, p.UserID)
	assert.Equal(t, []string{ScopeParkingHistory}, p.Scopes)

	_, err = fa.Login(context.Background(), []float64{3, 3})
	assert.ErrorIs(t, err, ErrNoFaceMatch)

	broken := NewFaceAuthenticator(profileFunc(func(context.Context) ([]Profile, error) {
		return nil, errors.New("db down")
	}), EuclideanMatcher{Threshold: DefaultFaceThreshold}, ti, time.Hour)
	_, err = broken.Login(context.Background(), []float64{0.2, 0.4})
	assert.EqualError(t, err, "db down")
}
