package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func TestBuildInfo_String(t *testing.T) {
	tests := []struct {
		name string
		info buildInfo
		want string
	}{
		{
			name: "no vcs information",
			info: buildInfo{Version: "(devel)", GoVersion: "go1.25.6"},
			want: "imgbundle (devel) (go1.25.6)",
		},
		{
			name: "release build",
			info: buildInfo{
				Version:   "v0.3.1",
				GoVersion: "go1.25.6",
				Commit:    "0123456789abcdef0123",
				BuildTime: "2026-10-01T12:00:00Z",
			},
			want: "imgbundle v0.3.1 (go1.25.6) commit 0123456789ab built 2026-10-01T12:00:00Z",
		},
		{
			name: "dirty tree",
			info: buildInfo{Version: "(devel)", GoVersion: "go1.25.6", Commit: "abc123", Modified: true},
			want: "imgbundle (devel) (go1.25.6) commit abc123-dirty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.String())
		})
	}
}

func TestVersionCommand(t *testing.T) {
	run := func(t *testing.T, args ...string) string {
		t.Helper()
		var out bytes.Buffer
		app := &cli.Command{Name: "imgbundle", Writer: &out, Commands: []*cli.Command{versionCommand}}
		require.NoError(t, app.Run(t.Context(), append([]string{"imgbundle", "version"}, args...)))
		return out.String()
	}

	assert.True(t, strings.HasPrefix(run(t), "imgbundle "))

	var bi buildInfo
	require.NoError(t, json.Unmarshal([]byte(run(t, "--json")), &bi))
	assert.NotEmpty(t, bi.Version)
	assert.True(t, strings.HasPrefix(bi.GoVersion, "go"))
}
