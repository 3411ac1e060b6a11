package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spyVerifier struct {
	calls  []string
	claims *Claims
	err    error
}

func (s *spyVerifier) Verify(token string) (*Claims, error) {
	s.calls = append(s.calls, token)
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

func TestEvaluate(t *testing.T) {
	validClaims := &Claims{UserID: 1, User: &UserSnapshot{ID: 1, Email: "a@x.com"}}
	session := &Identity{ID: 1, ExpiresAt: time.Now().Add(time.Hour)}

	tests := []struct {
		name        string
		session     *Identity
		header      string
		verifyErr   error
		want        Outcome
		wantMessage string
		wantCalls   []string
	}{
		{
			name:    "session short-circuits even with garbage header",
			session: session,
			header:  "Foo abc",
			want:    OutcomeSession,
		},
		{
			name:        "no header",
			want:        OutcomeNoHeader,
			wantMessage: MessageMissingAuthorization,
		},
		{
			name:        "wrong scheme",
			header:      "Foo abc",
			want:        OutcomeBadScheme,
			wantMessage: MessageMissingAuthorization,
		},
		{
			name:        "scheme is case sensitive",
			header:      "bearer abc",
			want:        OutcomeBadScheme,
			wantMessage: MessageMissingAuthorization,
		},
		{
			name:        "scheme without credential",
			header:      "Bearer",
			want:        OutcomeEmptyCredential,
			wantMessage: MessageMissingAuthorization,
		},
		{
			name:        "scheme with trailing space only",
			header:      "Bearer ",
			want:        OutcomeEmptyCredential,
			wantMessage: MessageMissingAuthorization,
		},
		{
			name:        "invalid token",
			header:      "Bearer invalid_token",
			verifyErr:   ErrInvalidToken,
			want:        OutcomeTokenInvalid,
			wantMessage: MessageInvalidToken,
			wantCalls:   []string{"invalid_token"},
		},
		{
			name:      "valid token",
			header:    "Bearer good",
			want:      OutcomeAuthorized,
			wantCalls: []string{"good"},
		},
		{
			name:      "only the first space separates the credential",
			header:    "Bearer a b",
			want:      OutcomeAuthorized,
			wantCalls: []string{"a b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &spyVerifier{claims: validClaims, err: tt.verifyErr}

			decision := Evaluate(tt.session, tt.header, spy)

			assert.Equal(t, tt.want, decision.Outcome)
			assert.Equal(t, tt.wantMessage, decision.Outcome.Message())
			assert.Equal(t, tt.wantCalls, spy.calls)
			assert.Equal(t, tt.wantMessage == "", decision.Outcome.Allowed())
		})
	}
}

func TestEvaluateCarriesClaimsAndError(t *testing.T) {
	claims := &Claims{UserID: 7}
	decision := Evaluate(nil, "Bearer ok", &spyVerifier{claims: claims})
	require.Equal(t, OutcomeAuthorized, decision.Outcome)
	assert.Same(t, claims, decision.Claims)
	assert.NoError(t, decision.Err)

	cause := errors.New("signature mismatch")
	decision = Evaluate(nil, "Bearer bad", &spyVerifier{err: cause})
	require.Equal(t, OutcomeTokenInvalid, decision.Outcome)
	assert.Nil(t, decision.Claims)
	assert.ErrorIs(t, decision.Err, cause)
}

func TestEvaluateWithCodec(t *testing.T) {
	codec := NewTokenCodec(testSecret, time.Hour, "")
	token, err := codec.Issue(UserSnapshot{ID: 1, Email: "a@x.com"})
	require.NoError(t, err)

	decision := Evaluate(nil, "Bearer "+token, codec)
	require.Equal(t, OutcomeAuthorized, decision.Outcome)
	assert.Equal(t, int64(1), decision.Claims.UserID)

	expired, err := codec.IssueWithTTL(UserSnapshot{ID: 1}, -1*time.Second)
	require.NoError(t, err)
	decision = Evaluate(nil, "Bearer "+expired, codec)
	assert.Equal(t, OutcomeTokenInvalid, decision.Outcome)
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	for _, header := range []string{"", "Bearer", "Bearer ", "Basic abc", "bearer abc"} {
		_, ok := BearerToken(header)
		assert.False(t, ok, header)
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "session", OutcomeSession.String())
	assert.Equal(t, "token_invalid", OutcomeTokenInvalid.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}
