package list

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	protocmd "github.com/mmiszy/proto/cmd/internal/cmd"
	"github.com/mmiszy/proto/cmd/setup"
	"github.com/mmiszy/proto/cmd/setup/hooks"
	"github.com/mmiszy/proto/internal/manifest"
)

const (
	FlagOutput = "output"
	FlagRemote = "remote"

	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// Entry is one listed tool version.
type Entry struct {
	Tool      string   `json:"tool"`
	Version   string   `json:"version"`
	Installed bool     `json:"installed"`
	Default   bool     `json:"default,omitempty"`
	Aliases   []string `json:"aliases,omitempty"`
}

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [TOOL...]",
		Short: "List installed tool versions",
		Example: `  # List everything that is installed
  proto list

  # List the releases of a tool
  proto list node --remote -o json`,
		Aliases:           []string{"ls"},
		RunE:              ListTools,
		DisableAutoGenTag: true,
	}
	cmd.Flags().StringP(FlagOutput, "o", OutputTable, "output format (table, json, yaml)")
	cmd.Flags().Bool(FlagRemote, false, "list the releases available from the tool instead of the installed versions")
	return cmd
}

func ListTools(cmd *cobra.Command, args []string) error {
	session, err := hooks.Session(cmd)
	if err != nil {
		return err
	}
	output, err := cmd.Flags().GetString(FlagOutput)
	if err != nil {
		return err
	}
	remote, err := cmd.Flags().GetBool(FlagRemote)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(args))
	for _, arg := range args {
		a, err := protocmd.ParseToolArg(arg)
		if err != nil {
			return err
		}
		ids = append(ids, a.ID)
	}
	if len(ids) == 0 {
		if remote {
			return fmt.Errorf("--%s needs at least one tool", FlagRemote)
		}
		if ids, err = session.InstalledTools(); err != nil {
			return err
		}
	}

	var entries []Entry
	for _, id := range ids {
		var toolEntries []Entry
		if remote {
			toolEntries, err = remoteEntries(cmd, session, id)
		} else {
			toolEntries, err = installedEntries(session, id)
		}
		if err != nil {
			return err
		}
		entries = append(entries, toolEntries...)
	}

	return render(cmd, output, entries)
}

func installedEntries(session *setup.Session, id string) ([]Entry, error) {
	m, err := manifest.Load(session.Paths.ManifestFile(id))
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(m.InstalledVersions))
	for _, version := range m.InstalledVersions {
		entries = append(entries, newEntry(id, version, true, m))
	}
	return entries, nil
}

func remoteEntries(cmd *cobra.Command, session *setup.Session, id string) ([]Entry, error) {
	resolver, err := session.Resolver(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	releases, err := resolver.Releases(cmd.Context())
	if err != nil {
		return nil, err
	}
	m, err := resolver.Tool().Manifest()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, releases.Len())
	for _, version := range releases.Versions() {
		entries = append(entries, newEntry(id, version, m.IsInstalled(version), m))
	}
	return entries, nil
}

func newEntry(id, version string, installed bool, m *manifest.Manifest) Entry {
	e := Entry{
		Tool:      id,
		Version:   version,
		Installed: installed,
		Default:   m.DefaultVersion == version,
	}
	for _, name := range slices.Sorted(maps.Keys(m.Aliases)) {
		if m.Aliases[name] == version {
			e.Aliases = append(e.Aliases, name)
		}
	}
	return e
}

func render(cmd *cobra.Command, output string, entries []Entry) error {
	out := cmd.OutOrStdout()
	switch output {
	case OutputJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case OutputYAML:
		data, err := yaml.Marshal(entries)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	case OutputTable:
		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.AppendHeader(table.Row{"Tool", "Version", "Installed", "Default", "Aliases"})
		for _, e := range entries {
			t.AppendRow(table.Row{e.Tool, e.Version, mark(e.Installed), mark(e.Default), strings.Join(e.Aliases, ", ")})
		}
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 1, AutoMerge: true},
		})
		style := table.StyleLight
		style.Options.DrawBorder = false
		t.SetStyle(style)
		t.Render()
		return nil
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}

func mark(b bool) string {
	if b {
		return "*"
	}
	return ""
}
