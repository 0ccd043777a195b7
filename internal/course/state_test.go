package course

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadState_Fraction(t *testing.T) {
	tests := []struct {
		name  string
		state DownloadState
		want  float64
	}{
		{"downloaded", Downloaded(), 1},
		{"loading unknown", Loading(), 0},
		{"loading half", LoadingAt(0.5), 0.5},
		{"error", Failed(), 0},
		{"above one clamps", LoadingAt(7.5), 1},
		{"negative clamps", LoadingAt(-0.5), 0},
		{"NaN counts as zero", LoadingAt(math.NaN()), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.state.Fraction(), 1e-9)
		})
	}
}

func TestDownloadState_Equal(t *testing.T) {
	assert.True(t, Loading().Equal(DownloadState{}))
	assert.True(t, LoadingAt(0.4).Equal(LoadingAt(0.4)))
	assert.False(t, LoadingAt(0.4).Equal(LoadingAt(0.5)))
	assert.False(t, LoadingAt(0.4).Equal(Loading()))
	assert.False(t, Downloaded().Equal(Failed()))
	assert.Equal(t, "loading(0.4)", LoadingAt(0.4).String())
	assert.Equal(t, "loading(nil)", Loading().String())
	assert.Equal(t, "error", Failed().String())
}

func TestDownloadState_JSON(t *testing.T) {
	for _, s := range []DownloadState{
		Loading(), LoadingAt(0.75), Downloaded(), Failed(),
	} {
		data, err := json.Marshal(s)
		require.NoError(t, err)
		var back DownloadState
		require.NoError(t, json.Unmarshal(data, &back))
		assert.True(t, s.Equal(back), "%s round trip gave %s", s, back)
	}

	var bad DownloadState
	err := json.Unmarshal([]byte(`{"status":"paused"}`), &bad)
	assert.Error(t, err)
}

func TestDownloadState_Validate(t *testing.T) {
	tests := []struct {
		name    string
		state   DownloadState
		wantErr error
	}{
		{"loading unknown", Loading(), nil},
		{"loading bounds", LoadingAt(0), nil},
		{"loading one", LoadingAt(1), nil},
		{"downloaded", Downloaded(), nil},
		{"above one", LoadingAt(1.01), ErrInvalidProgress},
		{"negative", LoadingAt(-0.1), ErrInvalidProgress},
		{"NaN", LoadingAt(math.NaN()), ErrInvalidProgress},
		{"unknown status", DownloadState{Status: Status(7)}, ErrUnknownStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDownloadState_UnmarshalRejectsBadProgress(t *testing.T) {
	for _, raw := range []string{
		`{"status":"loading","progress":7.5}`,
		`{"status":"loading","progress":-0.25}`,
	} {
		s := Downloaded()
		err := json.Unmarshal([]byte(raw), &s)
		assert.ErrorIs(t, err, ErrInvalidProgress, raw)
		assert.True(t, s.IsDownloaded(), "state changed on error: %s", raw)
	}

	var s DownloadState
	require.NoError(t, json.Unmarshal(
		[]byte(`{"status":"error","progress":7.5}`), &s))
	assert.True(t, s.IsError())
	assert.Nil(t, s.Progress)
}

func TestSelectionState_Text(t *testing.T) {
	var s SelectionState
	require.NoError(t, s.UnmarshalText([]byte("partiallySelected")))
	assert.Equal(t, PartiallySelected, s)
	assert.Error(t, s.UnmarshalText([]byte("maybe")))
	assert.Equal(t, "deselected", SelectionState(0).String())
}

func TestSelection_Validate(t *testing.T) {
	assert.NoError(t, CourseSelection("courses/1").Validate())
	assert.NoError(t, TabSelection("courses/1", "courses/1/tabs/files").Validate())
	assert.NoError(t, FileSelection("courses/1", "courses/1/files/2").Validate())

	assert.Error(t, CourseSelection("").Validate())
	assert.Error(t, TabSelection("courses/1", "").Validate())
	assert.Error(t, Selection{Kind: KindCourse, EntryID: "c", ItemID: "x"}.Validate())

	err := Selection{Kind: 7, EntryID: "courses/1"}.Validate()
	assert.True(t, errors.Is(err, ErrUnknownSelection))
}

func TestSelection_Key(t *testing.T) {
	assert.Equal(t, "courses/1", CourseSelection("courses/1").Key())
	assert.Equal(t, "courses/1/files/2",
		FileSelection("courses/1", "courses/1/files/2").Key())
	assert.Equal(t, "tab(courses/1, courses/1/tabs/files)",
		TabSelection("courses/1", "courses/1/tabs/files").String())
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, "courses/7", EntryID("7"))
	assert.Equal(t, "courses/7/tabs/files", TabID("7", TabFiles))
	assert.Equal(t, "courses/7/files/9", FileID("7", "9"))
	assert.Equal(t, "7", CourseIDOf("courses/7/files/9"))
	assert.Equal(t, "courses/7", EntryIDOf("courses/7/tabs/pages"))
	assert.Equal(t, "", CourseIDOf("users/7"))
	assert.Equal(t, "", EntryIDOf(""))

	k, err := ParseSelectionKind("tab")
	require.NoError(t, err)
	assert.Equal(t, KindTab, k)
	_, err = ParseSelectionKind("module")
	assert.ErrorIs(t, err, ErrUnknownSelection)
}
