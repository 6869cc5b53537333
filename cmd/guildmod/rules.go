package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/bluesky-social/guildmod/automod/policy"
	"github.com/bluesky-social/guildmod/automod/rulestore"

	cli "github.com/urfave/cli/v2"
)

var rulesCmd = &cli.Command{
	Name:  "rules",
	Usage: "inspect and manage stored rules",
	Subcommands: []*cli.Command{
		rulesListCmd,
		rulesTemplatesCmd,
		rulesCreateFromTemplateCmd,
		rulesToggleCmd,
		rulesDeleteCmd,
		rulesExportCmd,
		rulesImportCmd,
	},
}

var guildFlag = &cli.StringFlag{
	Name:     "guild",
	Usage:    "guild (server) ID",
	Required: true,
}

// Loads the configured rule storage, with synchronous saves.
func loadStore(cctx *cli.Context) (*rulestore.Store, error) {
	repo, err := openRepository(cctx)
	if err != nil {
		return nil, fmt.Errorf("opening rule storage: %w", err)
	}
	store := rulestore.NewStore(slog.Default(), repo, nil)
	if err := store.Load(cctx.Context); err != nil {
		return nil, err
	}
	return store, nil
}

// Mutating store calls only log save failures; this surfaces them as an exit error.
func flush(ctx context.Context, store *rulestore.Store) error {
	if err := store.Flush(ctx); err != nil {
		return fmt.Errorf("saving rules: %w", err)
	}
	return nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

var rulesListCmd = &cli.Command{
	Name:  "list",
	Usage: "list a guild's rules, in evaluation order",
	Flags: []cli.Flag{
		guildFlag,
		&cli.BoolFlag{
			Name:  "json",
			Usage: "print full rule records as JSON",
		},
	},
	Action: func(cctx *cli.Context) error {
		store, err := loadStore(cctx)
		if err != nil {
			return err
		}
		rules := store.ListAll(cctx.String("guild"))
		if cctx.Bool("json") {
			return printJSON(rules)
		}
		for _, r := range rules {
			status := "enabled"
			if !r.Enabled {
				status = "disabled"
			} else if r.DryRun {
				status = "dry-run"
			}
			fmt.Printf("%s\t%d\t%s\t%s\t%s\ttriggers=%d\n", r.ID, r.Priority, status, r.TriggerType(), r.Name, r.Stats.Triggers)
		}
		return nil
	},
}

var rulesTemplatesCmd = &cli.Command{
	Name:  "templates",
	Usage: "list built-in rule templates",
	Action: func(cctx *cli.Context) error {
		for _, name := range policy.TemplateNames() {
			r, _ := policy.FromTemplate(name)
			fmt.Printf("%s\t%s\t%s\n", name, r.TriggerType(), r.Description)
		}
		return nil
	},
}

var rulesCreateFromTemplateCmd = &cli.Command{
	Name:      "create-from-template",
	Usage:     "create a rule in a guild from a built-in template",
	ArgsUsage: "<template>",
	Flags: []cli.Flag{
		guildFlag,
		&cli.StringFlag{
			Name:  "name",
			Usage: "override the template's rule name",
		},
		&cli.IntFlag{
			Name:  "priority",
			Usage: "override the template's priority",
		},
		&cli.BoolFlag{
			Name:  "disabled",
			Usage: "create the rule disabled",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "create the rule in dry-run mode",
		},
	},
	Action: func(cctx *cli.Context) error {
		name := cctx.Args().First()
		if name == "" {
			return fmt.Errorf("need to provide template name as an argument")
		}
		store, err := loadStore(cctx)
		if err != nil {
			return err
		}

		var patch policy.RulePatch
		if cctx.IsSet("name") {
			n := cctx.String("name")
			patch.Name = &n
		}
		if cctx.IsSet("priority") {
			p := cctx.Int("priority")
			patch.Priority = &p
		}
		if cctx.Bool("disabled") {
			enabled := false
			patch.Enabled = &enabled
		}
		if cctx.Bool("dry-run") {
			dry := true
			patch.DryRun = &dry
		}

		r, err := store.InstantiateFromTemplate(cctx.Context, name, cctx.String("guild"), &patch)
		if err != nil {
			return err
		}
		if err := flush(cctx.Context, store); err != nil {
			return err
		}
		fmt.Println(r.ID)
		return nil
	},
}

var rulesToggleCmd = &cli.Command{
	Name:      "toggle",
	Usage:     "enable or disable a rule",
	ArgsUsage: "<rule-id> <true|false>",
	Action: func(cctx *cli.Context) error {
		id := cctx.Args().Get(0)
		enabled, err := strconv.ParseBool(cctx.Args().Get(1))
		if id == "" || err != nil {
			return fmt.Errorf("need to provide rule ID and enabled (true or false) as arguments")
		}
		store, err := loadStore(cctx)
		if err != nil {
			return err
		}
		r, err := store.Toggle(cctx.Context, id, enabled)
		if err != nil {
			return err
		}
		if err := flush(cctx.Context, store); err != nil {
			return err
		}
		fmt.Printf("%s\tenabled=%t\n", r.ID, r.Enabled)
		return nil
	},
}

var rulesDeleteCmd = &cli.Command{
	Name:      "delete",
	Usage:     "delete a rule",
	ArgsUsage: "<rule-id>",
	Action: func(cctx *cli.Context) error {
		id := cctx.Args().First()
		if id == "" {
			return fmt.Errorf("need to provide rule ID as an argument")
		}
		store, err := loadStore(cctx)
		if err != nil {
			return err
		}
		if !store.Delete(cctx.Context, id) {
			return rulestore.ErrNotFound
		}
		return flush(cctx.Context, store)
	},
}

var rulesExportCmd = &cli.Command{
	Name:  "export",
	Usage: "export a guild's rules, keyword lists and config as a JSON bundle",
	Flags: []cli.Flag{
		guildFlag,
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "file to write (default stdout)",
		},
	},
	Action: func(cctx *cli.Context) error {
		store, err := loadStore(cctx)
		if err != nil {
			return err
		}
		b, err := store.ExportAll(cctx.Context, cctx.String("guild"))
		if err != nil {
			return err
		}
		out := cctx.String("output")
		if out == "" {
			return printJSON(b)
		}
		raw, err := json.MarshalIndent(b, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(out, raw, 0644)
	},
}

var rulesImportCmd = &cli.Command{
	Name:      "import",
	Usage:     "import a JSON rule bundle in to a guild",
	ArgsUsage: "<bundle-file>",
	Flags: []cli.Flag{
		guildFlag,
		&cli.BoolFlag{
			Name:  "overwrite",
			Usage: "replace the guild's existing rules, keyword lists and config",
		},
	},
	Action: func(cctx *cli.Context) error {
		path := cctx.Args().First()
		if path == "" {
			return fmt.Errorf("need to provide bundle file path as an argument")
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		b, err := rulestore.ParseBundle(raw)
		if err != nil {
			return err
		}
		store, err := loadStore(cctx)
		if err != nil {
			return err
		}
		res := store.ImportAll(cctx.Context, b, cctx.String("guild"), cctx.Bool("overwrite"))
		if err := flush(cctx.Context, store); err != nil {
			return err
		}
		return printJSON(res)
	},
}
