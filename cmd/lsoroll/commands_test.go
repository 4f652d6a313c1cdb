package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laifehacker/lso-roll-calculator/internal/model"
)

// Sunday 2026-10-18, 10:00 in Amsterdam
const sundayAt = "2026-10-18T10:00:00+02:00"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LSO_TIMEZONE", "Europe/Amsterdam")
	t.Setenv("CONFIG_FILE", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAdviseCmd(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		contains []string
	}{
		{
			name:     "weekday roll",
			args:     []string{"advise", "100", "92", "--at", sundayAt},
			contains: []string{"ITM (5-10%)", "1 wk to Fri 2026-10-30", "Roll 1 week"},
		},
		{
			name:     "weekday hold",
			args:     []string{"advise", "100", "95", "--at", sundayAt},
			contains: []string{"ITM_SAFE (0-5%)", "Roll:       none"},
		},
		{
			name:     "friday flag",
			args:     []string{"advise", "100", "96", "--friday", "--at", sundayAt},
			contains: []string{"ITM (ITM)", "friday", "shortest term"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestAdviseCmd_JSON(t *testing.T) {
	out, err := run(t, "advise", "100", "78.5", "--json", "--at", sundayAt)
	require.NoError(t, err)

	var rec model.Recommendation
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, model.StatusITM, rec.Status)
	assert.Equal(t, "20%+", rec.Tier)
	assert.Equal(t, 4, rec.WeeksToRoll)
	assert.Equal(t, "21.5", rec.Percentage.String())
}

func TestAdviseCmd_Errors(t *testing.T) {
	_, err := run(t, "advise", "100", "abc")
	assert.Error(t, err)

	_, err = run(t, "advise", "100")
	assert.Error(t, err)

	_, err = run(t, "advise", "100", "95", "--friday", "--weekday")
	assert.Error(t, err)

	_, err = run(t, "advise", "100", "95", "--at", "yesterday")
	assert.Error(t, err)
}

func TestCompareCmd(t *testing.T) {
	out, err := run(t, "compare", "100", "--w1", "1.00", "--w2", "1.80", "--w3", "3.30", "--at", sundayAt)
	require.NoError(t, err)
	assert.Contains(t, out, "+3 wk")
	assert.Contains(t, out, "1.10")
	assert.Contains(t, out, "best")

	out, err = run(t, "compare", "100", "--w1", "1", "--wn", "8", "--weeks", "6", "--json", "--at", sundayAt)
	require.NoError(t, err)
	var cmp model.Comparison
	require.NoError(t, json.Unmarshal([]byte(out), &cmp))
	require.NotNil(t, cmp.Best)
	assert.Equal(t, "+6 wk", cmp.Best.Label)

	_, err = run(t, "compare", "zero")
	assert.Error(t, err)
}

func TestFridaysCmd(t *testing.T) {
	out, err := run(t, "fridays", "--target", "2", "--at", sundayAt)
	require.NoError(t, err)
	assert.Contains(t, out, "  This Fri  Fri 2026-10-23")
	assert.Contains(t, out, "* +2 wk     Fri 2026-11-06")
}

func TestSunCmd(t *testing.T) {
	out, err := run(t, "sun", "--date", "2026-06-21")
	require.NoError(t, err)
	assert.Contains(t, out, "Sunrise: 05:18 CEST")
	assert.Contains(t, out, "Sunset:  22:06 CEST")

	_, err = run(t, "sun", "--date", "June 21")
	assert.Error(t, err)
}

func TestThemeCmd(t *testing.T) {
	out, err := run(t, "theme", "--json", "--at", "2026-06-21T12:00:00Z")
	require.NoError(t, err)

	var got struct {
		Mode model.ThemeMode `json:"mode"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, model.ThemeDay, got.Mode)
}
