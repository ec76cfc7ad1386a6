package captcha

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokengate/internal/stats"
)

func floatPtr(f float64) *float64 { return &f }

func newStatRecorder() (*stats.Recorder, *stats.MemorySink) {
	sink := stats.NewMemorySink()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return stats.NewRecorder(true, sink, logger), sink
}

func TestNewTokenResponse_ScoreBounds(t *testing.T) {
	p := NewRecaptchaV3(0.5)

	for _, s := range []float64{0, 0.25, 0.5, 1} {
		tr, err := NewTokenResponse(p, Payload{Success: true}, floatPtr(s), "", nil)
		require.NoError(t, err, "score %v", s)
		assert.Equal(t, s, tr.Threshold())
	}

	for _, s := range []float64{-0.01, 1.01} {
		_, err := NewTokenResponse(p, Payload{Success: true}, floatPtr(s), "", nil)
		require.ErrorIs(t, err, ErrScoreOutOfRange, "score %v", s)
	}

	tr, err := NewTokenResponse(p, Payload{Success: true}, nil, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.5, tr.Threshold(), "nil threshold uses the configured default")
}

func TestTokenResponse_IsSuccessDominates(t *testing.T) {
	p := NewRecaptchaV3(0.5)

	// A failed success flag makes the response invalid regardless of a
	// perfect score and matching action.
	tr, err := NewTokenResponse(p, Payload{
		Success: false,
		Score:   floatPtr(1.0),
		Action:  "login",
	}, floatPtr(0.1), "login", nil)
	require.NoError(t, err)

	assert.False(t, tr.IsSuccess())
	assert.False(t, tr.IsValid())
}

func TestTokenResponse_FailOnScore(t *testing.T) {
	p := NewRecaptchaV3(0.5)

	t.Run("boundary score passes", func(t *testing.T) {
		tr, err := NewTokenResponse(p, Payload{Success: true, Score: floatPtr(0.9)}, floatPtr(0.9), "", nil)
		require.NoError(t, err)
		assert.False(t, tr.FailOnScore(), "strict less-than: equal score is a pass")
		assert.True(t, tr.IsValid())
	})

	t.Run("below threshold fails", func(t *testing.T) {
		rec, sink := newStatRecorder()
		tr, err := NewTokenResponse(p, Payload{Success: true, Score: floatPtr(0.1)}, floatPtr(0.9), "", rec)
		require.NoError(t, err)
		assert.True(t, tr.FailOnScore())
		assert.False(t, tr.IsValid())
		require.Len(t, sink.ByKind(stats.KindScoreBelowThreshold), 2, "FailOnScore and IsValid both observed the failure")
	})

	t.Run("missing score never fails", func(t *testing.T) {
		tr, err := NewTokenResponse(p, Payload{Success: true}, floatPtr(0.9), "", nil)
		require.NoError(t, err)
		assert.False(t, tr.FailOnScore())
	})

	t.Run("binary provider never fails on score", func(t *testing.T) {
		tr, err := NewTokenResponse(NewTurnstile(), Payload{Success: true, Score: floatPtr(0.0)}, nil, "", nil)
		require.NoError(t, err)
		assert.False(t, tr.FailOnScore())
		assert.True(t, tr.IsValid())
	})
}

func TestTokenResponse_FailOnAction(t *testing.T) {
	p := NewRecaptchaV3(0.5)

	t.Run("matching action passes", func(t *testing.T) {
		tr, err := NewTokenResponse(p, Payload{Success: true, Action: "login"}, nil, "login", nil)
		require.NoError(t, err)
		assert.False(t, tr.FailOnAction())
	})

	t.Run("mismatched action fails", func(t *testing.T) {
		rec, sink := newStatRecorder()
		tr, err := NewTokenResponse(p, Payload{Success: true, Action: "logout"}, nil, "login", rec)
		require.NoError(t, err)
		assert.True(t, tr.FailOnAction())
		assert.False(t, tr.IsValid())
		require.NotEmpty(t, sink.ByKind(stats.KindActionMismatch))
	})

	t.Run("empty requested action never fails", func(t *testing.T) {
		tr, err := NewTokenResponse(p, Payload{Success: true, Action: "anything"}, nil, "", nil)
		require.NoError(t, err)
		assert.False(t, tr.FailOnAction())
		assert.True(t, tr.IsValid())
	})

	t.Run("requested action is normalized before compare", func(t *testing.T) {
		tr, err := NewTokenResponse(p, Payload{Success: true, Action: "memberslogin"}, nil, "members login!", nil)
		require.NoError(t, err)
		assert.False(t, tr.FailOnAction())
	})
}

func TestTokenResponse_Terminal(t *testing.T) {
	p := NewRecaptchaV3(0.5)

	t.Run("timeout or duplicate", func(t *testing.T) {
		tr, err := NewTokenResponse(p, Payload{
			Success:    false,
			ErrorCodes: []string{ErrCodeTimeoutOrDuplicate},
		}, nil, "", nil)
		require.NoError(t, err)
		assert.True(t, tr.IsTimeout())
		assert.False(t, tr.IsBadRequest())
	})

	t.Run("bad request", func(t *testing.T) {
		tr, err := NewTokenResponse(p, Payload{
			Success:    false,
			ErrorCodes: []string{ErrCodeBadRequest, ErrCodeInvalidInputSecret},
		}, nil, "", nil)
		require.NoError(t, err)
		assert.True(t, tr.IsBadRequest())
		assert.False(t, tr.IsTimeout())
	})

	t.Run("error codes never nil", func(t *testing.T) {
		tr, err := NewTokenResponse(p, Payload{Success: true}, nil, "", nil)
		require.NoError(t, err)
		assert.NotNil(t, tr.ErrorCodes())
		assert.Empty(t, tr.ErrorCodes())
	})
}

func TestTokenResponse_StatOnVerifyFailed(t *testing.T) {
	p := NewRecaptchaV3(0.5)
	rec, sink := newStatRecorder()

	tr, err := NewTokenResponse(p, Payload{Success: false}, nil, "", rec)
	require.NoError(t, err)
	assert.False(t, tr.IsSuccess())
	require.Len(t, sink.ByKind(stats.KindVerifyFailed), 1)
}
