package main

import (
	"encoding/json"
	"fmt"

	semver "github.com/Masterminds/semver/v3"

	"github.com/pyrite-lang/pyrite/internal/cache"
	"github.com/pyrite-lang/pyrite/internal/cli"
)

var cacheInfo = cli.CommandInfo{
	Name:        "cache",
	Usage:       "pyrite cache stats [--json] | gc [--dry-run] | clear [--force]",
	Description: "Inspect and maintain the translation cache",
	Flags: []cli.FlagInfo{
		{Name: "json", Usage: "print as JSON"},
		{Name: "dry-run", Usage: "gc: list eviction candidates without deleting"},
		{Name: "force", Usage: "clear: required to delete every entry"},
	},
}

var versionInfo = cli.CommandInfo{
	Name:        "version",
	Usage:       "pyrite version [--json] [--check MIN]",
	Description: "Show version information",
	Flags: []cli.FlagInfo{
		{Name: "json", Usage: "print as JSON"},
		{Name: "check", Usage: "exit 1 unless this build is at least MIN"},
	},
}

func (a *app) cmdCache(args []string) int {
	fs := a.flags(cacheInfo)
	asJSON := fs.Bool("json", false, "print JSON")
	dryRun := fs.Bool("dry-run", false, "report only")
	force := fs.Bool("force", false, "confirm clear")
	pos, code, ok := a.parse(fs, args)
	if !ok {
		return code
	}
	action, err := oneArg(pos, cacheInfo)
	if err != nil {
		return a.fail(err)
	}
	switch action {
	case "stats", "gc", "clear":
	default:
		return a.fail(usageErr("unknown cache action %q\nUsage: %s", action, cacheInfo.Usage))
	}
	if action == "clear" && !*force {
		return a.fail(usageErr("cache clear deletes every entry; pass --force"))
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return a.fail(err)
	}
	c, err := cache.Open(cfg.Cache, cache.Options{})
	if err != nil {
		return a.fail(err)
	}
	defer c.Close()

	var out interface{}
	switch action {
	case "stats":
		st, err := c.Stats()
		if err != nil {
			return a.fail(err)
		}
		out = st
		if !*asJSON {
			fmt.Fprintf(a.stdout, "cache     %s\n", c.Dir())
			fmt.Fprintf(a.stdout, "entries   %d\n", st.Entries)
			fmt.Fprintf(a.stdout, "disk      %d bytes\n", st.DiskBytes)
			fmt.Fprintf(a.stdout, "hits      %d\n", st.Hits)
			fmt.Fprintf(a.stdout, "misses    %d\n", st.Misses)
			fmt.Fprintf(a.stdout, "evictions %d\n", st.Evictions)
			fmt.Fprintf(a.stdout, "hit rate  %.1f%%\n", st.HitRate*100)
		}
	case "gc":
		rep, err := c.GC(cache.PolicyFrom(cfg.Cache, *dryRun))
		if err != nil {
			return a.fail(err)
		}
		out = rep
		if !*asJSON {
			verb := "evicted"
			if rep.DryRun {
				verb = "would evict"
			}
			fmt.Fprintf(a.stdout, "%s %d entries (%d bytes), %d orphan blobs, %d remaining\n",
				verb, len(rep.Candidates), rep.FreedBytes, rep.OrphanBlobs, rep.Remaining)
			if rep.DryRun {
				for _, k := range rep.Candidates {
					fmt.Fprintf(a.stdout, "  %s\n", k)
				}
			}
		}
	case "clear":
		if err := c.Clear(); err != nil {
			return a.fail(err)
		}
		out = map[string]bool{"cleared": true}
		if !*asJSON {
			fmt.Fprintf(a.stdout, "cleared %s\n", c.Dir())
		}
	}
	if *asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return a.fail(err)
		}
	}
	return cli.ExitOK
}

func (a *app) cmdVersion(args []string) int {
	fs := a.flags(versionInfo)
	asJSON := fs.Bool("json", false, "print JSON")
	check := fs.String("check", "", "minimum version")
	if _, code, ok := a.parse(fs, args); !ok {
		return code
	}
	if *check != "" {
		c, err := semver.NewConstraint(">= " + *check)
		if err != nil {
			return a.fail(usageErr("bad version %q: %v", *check, err))
		}
		v := semver.MustParse(cli.Version)
		if !c.Check(v) {
			fmt.Fprintf(a.stderr, "%s %s is older than %s\n", toolName, v, *check)
			return cli.ExitTranslateErrors
		}
	}
	cli.PrintVersion(a.stdout, toolName, *asJSON)
	return cli.ExitOK
}
