package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stage struct {
	Stage string
	URL   string
}

func TestRenderLinks(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	out, err := e.Render("links.tmpl", map[string]any{
		"Parameters": map[string]string{"ProductID": "iPhone14,2", "GUID": "g", "Serial": "s"},
		"Stages": []stage{
			{Stage: "stage1", URL: "http://h/firststp/a/fixedfile"},
			{Stage: "stage2", URL: "http://h/2ndd/b/belliloveu.png"},
		},
		"Descriptor": map[string]any{"Path": "/srv/Maker/iPhone14-2/x.plist", "Size": 42},
	})
	require.NoError(t, err)
	assert.Equal(t, "product iPhone14,2 guid g serial s\n"+
		"stage1   http://h/firststp/a/fixedfile\n"+
		"stage2   http://h/2ndd/b/belliloveu.png\n"+
		"descriptor /srv/Maker/iPhone14-2/x.plist (42 bytes)\n", out)
}

func TestRenderSweep(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	tests := []struct {
		in   SweepSummary
		want string
	}{
		{SweepSummary{Removed: 3}, "Cleanup completed. Removed 3 directories.\n"},
		{SweepSummary{Removed: 1, Errors: 2}, "Cleanup completed. Removed 1 directories. 2 could not be removed.\n"},
		{SweepSummary{Skipped: true}, "Cleanup completed. Removed 0 directories. Skipped: another sweep was running.\n"},
	}
	for _, tc := range tests {
		out, err := e.Render("sweep.tmpl", tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, out)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	_, err = e.Render("nope.tmpl", nil)
	require.Error(t, err)

	var nilEngine *Engine
	_, err = nilEngine.Render("sweep.tmpl", nil)
	require.Error(t, err)
}
