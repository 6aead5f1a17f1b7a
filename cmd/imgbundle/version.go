package main

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/urfave/cli/v3"
)

type buildInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

func readBuildInfo() buildInfo {
	bi := buildInfo{Version: "(devel)", GoVersion: runtime.Version()}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return bi
	}
	if info.Main.Version != "" {
		bi.Version = info.Main.Version
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			bi.Commit = setting.Value
		case "vcs.time":
			bi.BuildTime = setting.Value
		case "vcs.modified":
			bi.Modified = setting.Value == "true"
		}
	}
	return bi
}

// String renders one line, with the commit shortened to 12 characters.
func (b buildInfo) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "imgbundle %s (%s)", b.Version, b.GoVersion)
	if b.Commit != "" {
		commit := b.Commit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		fmt.Fprintf(&sb, " commit %s", commit)
		if b.Modified {
			sb.WriteString("-dirty")
		}
	}
	if b.BuildTime != "" {
		fmt.Fprintf(&sb, " built %s", b.BuildTime)
	}
	return sb.String()
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "Print version information",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print build information as JSON",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		bi := readBuildInfo()
		w := command.Root().Writer
		if command.Bool("json") {
			return json.NewEncoder(w).Encode(bi)
		}
		_, err := fmt.Fprintln(w, bi.String())
		return err
	},
}
