package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewVerdictValidate(t *testing.T) {
	cases := []struct {
		name    string
		verdict ReviewVerdict
		wantErr error
	}{
		{"clean pass", ReviewVerdict{Pass: true}, nil},
		{"pass with violations", ReviewVerdict{Pass: true, Violations: []Violation{ViolationMissingCTA}}, ErrPassWithViolations},
		{"fail with violation", ReviewVerdict{Violations: []Violation{ViolationLengthTooShort}}, nil},
		{"fail with reason only", ReviewVerdict{Feedback: "reads like an ad"}, nil},
		{"fail without reason", ReviewVerdict{Feedback: "  "}, ErrFailWithoutReason},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.verdict.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestNextDraftIsNewVersion(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	v0 := NewDraft("hello world", at)
	require.Equal(t, 0, v0.Version)
	require.Nil(t, v0.Feedback)
	assert.Equal(t, 11, v0.Chars)
	assert.Equal(t, 2, v0.Words)

	verdict := ReviewVerdict{Violations: []Violation{ViolationLengthTooShort}, Feedback: "expand"}
	v1 := NextDraft(v0, "hello wide world", verdict, at)
	assert.Equal(t, 1, v1.Version)
	require.NotNil(t, v1.Feedback)

	// the stored feedback is a copy
	verdict.Violations[0] = ViolationMissingCTA
	assert.Equal(t, ViolationLengthTooShort, v1.Feedback.Violations[0])
	assert.Equal(t, "hello world", v0.Text)
}

func TestDraftCountsRunes(t *testing.T) {
	d := NewDraft("héllo 🚀", time.Time{})
	assert.Equal(t, 7, d.Chars)
	assert.Equal(t, 2, d.Words)
}

func TestPreferencesValidate(t *testing.T) {
	ok := DefaultPreferences("u1")
	require.NoError(t, ok.Validate())

	bad := ok
	bad.Length = LengthBounds{Min: 1600, Max: 1300}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidPreferences)

	bad = ok
	bad.WritingStyle = "poetic"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidPreferences)

	bad = ok
	bad.Structure = StructureCustom
	assert.ErrorIs(t, bad.Validate(), ErrInvalidPreferences)
	bad.CustomInstructions = "three bullet points then a question"
	assert.NoError(t, bad.Validate())
}

func TestStructureRequiresCTA(t *testing.T) {
	assert.True(t, StructureListBased.RequiresCTA())
	assert.True(t, StructureStorytelling.RequiresCTA())
	assert.False(t, StructureNone.RequiresCTA())
	assert.False(t, StructureNarrative.RequiresCTA())
}

func TestStoredPostFinal(t *testing.T) {
	p := StoredPost{
		Versions:     []Draft{{Version: 0, Text: "a"}, {Version: 1, Text: "b"}},
		FinalVersion: 1,
	}
	d, ok := p.Final()
	require.True(t, ok)
	assert.Equal(t, "b", d.Text)

	p.FinalVersion = 4
	_, ok = p.Final()
	assert.False(t, ok)
}
