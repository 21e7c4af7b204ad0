package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/frederic-klein/yacr/internal/driver"
	"github.com/frederic-klein/yacr/internal/graph"
	"github.com/frederic-klein/yacr/internal/recipe"
	"github.com/frederic-klein/yacr/internal/resolver"
	"github.com/frederic-klein/yacr/internal/toolchain"
)

func newTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(header)
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	return t
}

func renderRecipes(w io.Writer, reg *recipe.Registry) {
	t := newTable(w, table.Row{"Recipe", "Versions", "License", "Header only"})
	for _, name := range reg.Names() {
		r, _ := reg.Get(name)
		headerOnly := ""
		if r.HeaderOnly {
			headerOnly = "yes"
		}
		t.AppendRow(table.Row{name, strings.Join(r.Versions(), ", "), r.License, headerOnly})
	}
	t.Render()
}

func renderResolution(w io.Writer, res resolver.Resolution) {
	opts := newTable(w, table.Row{"Option", "Value"})
	for _, k := range res.Options.Keys() {
		opts.AppendRow(table.Row{k, res.Options[k]})
	}
	opts.Render()
	fmt.Fprintln(w)

	params := newTable(w, table.Row{"Parameter", "Value"})
	for _, n := range res.Parameters.Names() {
		params.AppendRow(table.Row{n, toolchain.FormatValue(res.Parameters[n])})
	}
	params.Render()
}

func renderGraph(w io.Writer, g *graph.Graph) {
	t := newTable(w, table.Row{"#", "Reference", "Requires", "Recipe"})
	for i, n := range g.Order {
		requires := make([]string, len(n.Requires))
		for j, r := range n.Requires {
			requires[j] = r.String()
		}
		source := "yacr"
		if n.External() {
			source = "external"
		}
		t.AppendRow(table.Row{i + 1, n.Ref.String(), strings.Join(requires, ", "), source})
	}
	t.Render()
}

func renderPackages(w io.Writer, pkgs []*driver.Package) {
	t := newTable(w, table.Row{"Reference", "Package id", "Status"})
	for _, p := range pkgs {
		status := "built"
		if p.Cached {
			status = "cached"
		}
		t.AppendRow(table.Row{p.Ref.String(), shortID(p.Info.PackageID), status})
	}
	t.Render()
}

func renderPackageInfo(w io.Writer, pkgs []*driver.Package) {
	t := newTable(w, table.Row{"Package id", "Settings", "Options", "Libs"})
	for _, p := range pkgs {
		var settingCol, optionCol []string
		for _, k := range sortedKeys(p.Info.Settings) {
			settingCol = append(settingCol, k+"="+p.Info.Settings[k])
		}
		for _, k := range p.Info.Options.Keys() {
			optionCol = append(optionCol, k+"="+p.Info.Options[k])
		}
		t.AppendRow(table.Row{p.Info.PackageID, strings.Join(settingCol, "\n"), strings.Join(optionCol, "\n"), strings.Join(p.Libs, ", ")})
	}
	t.Render()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
