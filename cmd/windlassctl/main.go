// ABOUTME: Admin CLI for the windlass configuration store
// ABOUTME: Manages profiles, plugins, proxy groups, proxies, resources and subscriptions

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/windlass-proxy/windlass/internal/codec"
	"github.com/windlass-proxy/windlass/internal/config"
	"github.com/windlass-proxy/windlass/internal/fetch"
	"github.com/windlass-proxy/windlass/internal/store"
	"github.com/windlass-proxy/windlass/internal/subsync"
	"github.com/windlass-proxy/windlass/internal/verify"
)

const banner = `
          _           _ _
__      _(_)_ __   __| | | __ _ ___ ___
\ \ /\ / / | '_ \ / _' | |/ _' / __/ __|
 \ V  V /| | | | | (_| | | (_| \__ \__ \
  \_/\_/ |_|_| |_|\__,_|_|\__,_|___/___/
`

func main() {
	// A .env file is optional; missing is fine
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	app, err := newApp()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	defer app.close()

	switch cmd {
	case "profiles":
		err = app.cmdProfiles(args)
	case "plugins":
		err = app.cmdPlugins(args)
	case "groups":
		err = app.cmdGroups(args)
	case "proxies":
		err = app.cmdProxies(args)
	case "resources":
		err = app.cmdResources(args)
	case "subscriptions":
		err = app.cmdSubscriptions(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: windlassctl <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  profiles list                        List all profiles")
	fmt.Println("  profiles create <name> [locale]      Create a profile")
	fmt.Println("  profiles rename <id> <name>          Rename a profile")
	fmt.Println("  profiles delete <id>                 Delete a profile and its plugins")
	fmt.Println("  profiles touch <id>                  Mark a profile as just used")
	fmt.Println("  plugins list <profile-id>            List a profile's plugins")
	fmt.Println("  plugins create <profile-id> <name> <type> <version> <param.json>")
	fmt.Println("                                       Create a plugin from a JSON parameter file")
	fmt.Println("  plugins set-entry <profile-id> <id>  Make a plugin the profile's entry point")
	fmt.Println("  plugins unset-entry <profile-id> <id>  Clear a plugin's entry-point flag")
	fmt.Println("  plugins delete <id>                  Delete a plugin")
	fmt.Println("  groups list                          List proxy groups")
	fmt.Println("  groups create <name>                 Create a manual proxy group")
	fmt.Println("  groups rename <id> <name>            Rename a proxy group")
	fmt.Println("  groups delete <id>                   Delete a group and its proxies")
	fmt.Println("  proxies list <group-id>              List a group's proxies in order")
	fmt.Println("  proxies add <group-id> <file.toml>   Add a proxy from a TOML descriptor file")
	fmt.Println("  proxies delete <id>                  Delete a proxy")
	fmt.Println("  proxies rotate <group-id> <start-order> <end-order> <moves>")
	fmt.Println("                                       Rotate the proxies in an order window")
	fmt.Println("  resources list                       List cached remote resources")
	fmt.Println("  resources create-url <key> <type> <local-file> <url>")
	fmt.Println("  resources create-github <key> <type> <local-file> <user> <repo> <asset>")
	fmt.Println("  resources delete <id>                Delete a resource")
	fmt.Println("  subscriptions create <name> <format> <url>")
	fmt.Println("                                       Create a subscription-backed group")
	fmt.Println("  subscriptions show <group-id>        Show subscription usage and expiry")
	fmt.Println("  subscriptions refresh <group-id>     Fetch and apply the remote proxy list")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  WINDLASS_CONFIG   Path to a YAML config file")
	fmt.Println("  WINDLASS_DB       Database path (default: ./windlass.db, overrides config)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  windlassctl profiles create home en-US")
	fmt.Println("  windlassctl subscriptions create airport clash https://example.com/sub.yaml")
	fmt.Println("  windlassctl subscriptions refresh 1")
	fmt.Println()
}

type app struct {
	store   store.Store
	fetcher *fetch.Client
}

func newApp() (*app, error) {
	dbPath := "./windlass.db"
	timeout := config.DefaultFetchTimeout
	githubAPIBase := ""

	if path := os.Getenv("WINDLASS_CONFIG"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		dbPath = cfg.Database.Path
		timeout = cfg.Fetch.Timeout
		githubAPIBase = cfg.Fetch.GitHubAPIBase
	}
	if path := os.Getenv("WINDLASS_DB"); path != "" {
		dbPath = path
	}

	st, err := store.NewSQLiteStore(dbPath,
		store.WithPluginVerifier(verify.Default()),
		store.WithBatchDecoder(codec.BatchCodec{}),
	)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", dbPath, err)
	}

	fetcher := fetch.NewClient(timeout)
	if githubAPIBase != "" {
		fetcher.GitHubAPIBase = githubAPIBase
	}

	return &app{store: st, fetcher: fetcher}, nil
}

func (a *app) close() {
	_ = a.store.Close()
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func (a *app) cmdProfiles(args []string) error {
	ctx := context.Background()
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "list":
		profiles, err := a.store.GetAllProfiles(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tLOCALE\tLAST USED")
		for _, p := range profiles {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.ID, p.Name, p.Locale, formatTime(p.LastUsedAt))
		}
		return w.Flush()

	case "create":
		if len(args) < 1 {
			return fmt.Errorf("usage: profiles create <name> [locale]")
		}
		locale := "en-US"
		if len(args) > 1 {
			locale = args[1]
		}
		id, err := a.store.CreateProfile(ctx, args[0], locale)
		if err != nil {
			return err
		}
		color.Green("Created profile %d\n", id)
		return nil

	case "rename":
		if len(args) != 2 {
			return fmt.Errorf("usage: profiles rename <id> <name>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		profile, err := a.store.GetProfile(ctx, id)
		if err != nil {
			return err
		}
		return a.store.UpdateProfile(ctx, id, args[1], profile.Locale)

	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("usage: profiles delete <id>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return a.store.DeleteProfile(ctx, id)

	case "touch":
		if len(args) != 1 {
			return fmt.Errorf("usage: profiles touch <id>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return a.store.TouchProfileLastUsed(ctx, id)

	default:
		return fmt.Errorf("unknown profiles subcommand %q", sub)
	}
}

func (a *app) cmdPlugins(args []string) error {
	ctx := context.Background()
	if len(args) < 1 {
		return fmt.Errorf("usage: plugins <list|create|set-entry|unset-entry|delete> …")
	}
	sub := args[0]
	args = args[1:]

	switch sub {
	case "list":
		if len(args) != 1 {
			return fmt.Errorf("usage: plugins list <profile-id>")
		}
		profileID, err := parseID(args[0])
		if err != nil {
			return err
		}
		plugins, err := a.store.GetPluginsByProfile(ctx, profileID)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tVERSION\tENTRY")
		for _, p := range plugins {
			entry := ""
			if p.IsEntry {
				entry = "*"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", p.ID, p.Name, p.Plugin, p.PluginVersion, entry)
		}
		return w.Flush()

	case "create":
		if len(args) != 5 {
			return fmt.Errorf("usage: plugins create <profile-id> <name> <type> <version> <param.json>")
		}
		profileID, err := parseID(args[0])
		if err != nil {
			return err
		}
		version, err := strconv.ParseUint(args[3], 10, 16)
		if err != nil {
			return fmt.Errorf("invalid version %q", args[3])
		}
		param, err := os.ReadFile(args[4])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[4], err)
		}
		id, err := a.store.CreatePlugin(ctx, profileID, args[1], "", args[2], uint16(version), param)
		if err != nil {
			return err
		}
		color.Green("Created plugin %d\n", id)
		return nil

	case "set-entry":
		if len(args) != 2 {
			return fmt.Errorf("usage: plugins set-entry <profile-id> <plugin-id>")
		}
		profileID, err := parseID(args[0])
		if err != nil {
			return err
		}
		pluginID, err := parseID(args[1])
		if err != nil {
			return err
		}
		return a.store.SetEntryPlugin(ctx, profileID, pluginID)

	case "unset-entry":
		if len(args) != 2 {
			return fmt.Errorf("usage: plugins unset-entry <profile-id> <plugin-id>")
		}
		profileID, err := parseID(args[0])
		if err != nil {
			return err
		}
		pluginID, err := parseID(args[1])
		if err != nil {
			return err
		}
		return a.store.UnsetEntryPlugin(ctx, profileID, pluginID)

	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("usage: plugins delete <id>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return a.store.DeletePlugin(ctx, id)

	default:
		return fmt.Errorf("unknown plugins subcommand %q", sub)
	}
}

func (a *app) cmdGroups(args []string) error {
	ctx := context.Background()
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "list":
		groups, err := a.store.GetAllProxyGroups(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tKIND\tCREATED")
		for _, g := range groups {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", g.ID, g.Name, g.Kind, formatTime(g.CreatedAt))
		}
		return w.Flush()

	case "create":
		if len(args) != 1 {
			return fmt.Errorf("usage: groups create <name>")
		}
		id, err := a.store.CreateProxyGroup(ctx, args[0], store.ProxyGroupManual)
		if err != nil {
			return err
		}
		color.Green("Created group %d\n", id)
		return nil

	case "rename":
		if len(args) != 2 {
			return fmt.Errorf("usage: groups rename <id> <name>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return a.store.RenameProxyGroup(ctx, id, args[1])

	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("usage: groups delete <id>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return a.store.DeleteProxyGroup(ctx, id)

	default:
		return fmt.Errorf("unknown groups subcommand %q", sub)
	}
}

func (a *app) cmdProxies(args []string) error {
	ctx := context.Background()
	if len(args) < 1 {
		return fmt.Errorf("usage: proxies <list|add|delete|rotate> …")
	}
	sub := args[0]
	args = args[1:]

	switch sub {
	case "list":
		if len(args) != 1 {
			return fmt.Errorf("usage: proxies list <group-id>")
		}
		groupID, err := parseID(args[0])
		if err != nil {
			return err
		}
		proxies, err := a.store.GetProxiesByGroup(ctx, groupID)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tORDER\tNAME\tVERSION\tUPDATED")
		for _, p := range proxies {
			fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%s\n", p.ID, p.Order, p.Name, p.ProxyVersion, formatTime(p.UpdatedAt))
		}
		return w.Flush()

	case "add":
		if len(args) != 2 {
			return fmt.Errorf("usage: proxies add <group-id> <file.toml>")
		}
		groupID, err := parseID(args[0])
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[1], err)
		}
		record, err := codec.ParseProxyFile(data)
		if err != nil {
			return err
		}
		id, err := a.store.CreateProxy(ctx, groupID, record.Name, record.Proxy, record.ProxyVersion)
		if err != nil {
			return err
		}
		color.Green("Added proxy %d (%s)\n", id, record.Name)
		return nil

	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("usage: proxies delete <id>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return a.store.DeleteProxy(ctx, id)

	case "rotate":
		if len(args) != 4 {
			return fmt.Errorf("usage: proxies rotate <group-id> <start-order> <end-order> <moves>")
		}
		nums := make([]int64, 4)
		for i, s := range args {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid number %q", s)
			}
			nums[i] = n
		}
		return a.store.ReorderProxies(ctx, nums[0], nums[1], nums[2], nums[3])

	default:
		return fmt.Errorf("unknown proxies subcommand %q", sub)
	}
}

func (a *app) cmdResources(args []string) error {
	ctx := context.Background()
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "list":
		resources, err := a.store.GetAllResources(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKEY\tTYPE\tORIGIN\tLOCAL FILE")
		for _, r := range resources {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Key, r.Type, r.RemoteType, r.LocalFile)
		}
		return w.Flush()

	case "create-url":
		if len(args) != 4 {
			return fmt.Errorf("usage: resources create-url <key> <type> <local-file> <url>")
		}
		id, err := a.store.CreateResourceWithURL(ctx, args[0], args[1], args[2], args[3])
		if err != nil {
			return err
		}
		color.Green("Created resource %d\n", id)
		return nil

	case "create-github":
		if len(args) != 6 {
			return fmt.Errorf("usage: resources create-github <key> <type> <local-file> <user> <repo> <asset>")
		}
		id, err := a.store.CreateResourceWithGitHubRelease(ctx, args[0], args[1], args[2], args[3], args[4], args[5])
		if err != nil {
			return err
		}
		color.Green("Created resource %d\n", id)
		return nil

	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("usage: resources delete <id>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return a.store.DeleteResource(ctx, id)

	default:
		return fmt.Errorf("unknown resources subcommand %q", sub)
	}
}

func (a *app) cmdSubscriptions(args []string) error {
	ctx := context.Background()
	if len(args) < 1 {
		return fmt.Errorf("usage: subscriptions <create|show|refresh> …")
	}
	sub := args[0]
	args = args[1:]

	switch sub {
	case "create":
		if len(args) != 3 {
			return fmt.Errorf("usage: subscriptions create <name> <format> <url>")
		}
		format := args[1]
		if format != subsync.FormatProxyList && format != subsync.FormatClash {
			return fmt.Errorf("format must be %q or %q", subsync.FormatProxyList, subsync.FormatClash)
		}
		id, err := a.store.CreateSubscriptionGroup(ctx, args[0], format, args[2])
		if err != nil {
			return err
		}
		color.Green("Created subscription group %d\n", id)
		return nil

	case "show":
		if len(args) != 1 {
			return fmt.Errorf("usage: subscriptions show <group-id>")
		}
		groupID, err := parseID(args[0])
		if err != nil {
			return err
		}
		info, err := a.store.QuerySubscription(ctx, groupID)
		if err != nil {
			return err
		}

		cyan := color.New(color.FgCyan)
		fmt.Println()
		cyan.Println("  Subscription")
		cyan.Println("  ------------")
		fmt.Printf("  Group ID:     %d\n", info.GroupID)
		fmt.Printf("  Format:       %s\n", info.Format)
		fmt.Printf("  URL:          %s\n", info.URL)
		fmt.Printf("  Upload:       %s\n", formatBytes(info.UploadBytesUsed))
		fmt.Printf("  Download:     %s\n", formatBytes(info.DownloadBytesUsed))
		fmt.Printf("  Total:        %s\n", formatBytes(info.BytesTotal))
		if info.ExpiresAt != nil {
			fmt.Printf("  Expires:      %s\n", formatTime(*info.ExpiresAt))
		} else {
			fmt.Printf("  Expires:      -\n")
		}
		if info.RetrievedAt != nil {
			fmt.Printf("  Retrieved:    %s\n", formatTime(*info.RetrievedAt))
		} else {
			fmt.Printf("  Retrieved:    never\n")
		}
		fmt.Println()
		return nil

	case "refresh":
		if len(args) != 1 {
			return fmt.Errorf("usage: subscriptions refresh <group-id>")
		}
		groupID, err := parseID(args[0])
		if err != nil {
			return err
		}
		res, err := subsync.New(a.store, a.fetcher).Refresh(ctx, groupID)
		if err != nil {
			return err
		}
		if res.NotModified {
			color.Yellow("Subscription unchanged\n")
		} else {
			color.Green("Refreshed: %d proxies\n", res.ProxyCount)
		}
		return nil

	default:
		return fmt.Errorf("unknown subscriptions subcommand %q", sub)
	}
}

func formatBytes(n *uint64) string {
	if n == nil {
		return "-"
	}
	v := float64(*n)
	units := []string{"B", "KiB", "MiB", "GiB", "TiB"}
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d %s", *n, units[i])
	}
	return fmt.Sprintf("%.1f %s", v, units[i])
}
