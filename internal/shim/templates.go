package shim

import (
	"strings"
	"text/template"
)

var funcs = template.FuncMap{
	"sh":  shQuote,
	"cmd": cmdQuote,
	"ps":  psQuote,
}

var unixTemplate = template.Must(template.New("sh").Funcs(funcs).Parse(`#!/bin/sh
# {{.Kind}} shim for {{.Tool}} {{.Version}}
exec{{range .Command}} {{sh .}}{{end}} "$@"
`))

var cmdTemplate = template.Must(template.New("cmd").Funcs(funcs).Parse("@echo off\r\n" +
	"rem {{.Kind}} shim for {{.Tool}} {{.Version}}\r\n" +
	"{{range $i, $arg := .Command}}{{if $i}} {{end}}{{cmd $arg}}{{end}} %*\r\n" +
	"exit /b %ERRORLEVEL%\r\n"))

var ps1Template = template.Must(template.New("ps1").Funcs(funcs).Parse(`#!/usr/bin/env pwsh
# {{.Kind}} shim for {{.Tool}} {{.Version}}
&{{range .Command}} {{ps .}}{{end}} @args
exit $LASTEXITCODE
`))

func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func cmdQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
