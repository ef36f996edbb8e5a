package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/git-pkgs/taxonomy"
	"github.com/git-pkgs/taxonomy/inspect"
)

var errUsage = errors.New("usage")

type app struct {
	reg     *taxonomy.Registry
	insp    *inspect.Inspector
	cfg     *taxonomy.Config
	logger  *zap.Logger
	out     io.Writer
	changed bool
}

func newApp(ctx context.Context, cfg *taxonomy.Config, logger *zap.Logger, out io.Writer) (*app, error) {
	a := &app{cfg: cfg, logger: logger, out: out}
	reg, insp, err := taxonomy.Open(ctx, cfg, logger, taxonomy.WithOnChange(func(map[string]string) {
		a.changed = true
	}))
	if err != nil {
		return nil, err
	}
	a.reg, a.insp = reg, insp
	return a, nil
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "list", "ls":
		return a.list()
	case "show":
		i, err := indexArg(args)
		if err != nil {
			return err
		}
		return a.show(i)
	case "add":
		if len(args) == 0 {
			return fmt.Errorf("%w: add <source>...", errUsage)
		}
		return a.add(ctx, args)
	case "remove", "rm":
		if len(args) != 2 {
			return fmt.Errorf("%w: remove <name> <version>", errUsage)
		}
		return a.remove(args[0], args[1])
	case "enable", "disable":
		i, err := indexArg(args)
		if err != nil {
			return err
		}
		return a.reg.SetEnabled(i, cmd == "enable")
	case "up":
		i, err := indexArg(args)
		if err != nil {
			return err
		}
		return a.reg.MoveUp(i)
	case "down":
		i, err := indexArg(args)
		if err != nil {
			return err
		}
		return a.reg.MoveDown(i)
	case "reload":
		i, err := indexArg(args)
		if err != nil {
			return err
		}
		return a.reload(ctx, i)
	case "scan":
		return a.scan(ctx)
	case "remappings":
		return a.remappings()
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func indexArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: expected one package index", errUsage)
	}
	i, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid index %q", errUsage, args[0])
	}
	return i, nil
}

func (a *app) list() error {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tSTATUS\tNAME\tVERSION\tDATE\tUPDATE")
	for _, row := range a.reg.Rows() {
		update := ""
		if row.UpdateAvailable {
			update = "available"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			row.Index, row.Status, row.Name, row.Version, row.FileDate, update)
	}
	return w.Flush()
}

func (a *app) show(index int) error {
	if err := a.reg.Select(index); err != nil {
		return err
	}
	row := a.reg.Rows()[a.reg.Selected()]
	_, _ = fmt.Fprintf(a.out, "Name:        %s\n", row.Name)
	_, _ = fmt.Fprintf(a.out, "Version:     %s\n", row.Version)
	_, _ = fmt.Fprintf(a.out, "Status:      %s\n", row.Status)
	_, _ = fmt.Fprintf(a.out, "Description: %s\n", row.Description)
	_, _ = fmt.Fprintf(a.out, "URL:         %s\n", row.URL)
	_, _ = fmt.Fprintf(a.out, "File date:   %s\n", row.FileDate)
	_, _ = fmt.Fprintf(a.out, "PURL:        %s\n", a.reg.List()[row.Index].PURL())
	_, _ = fmt.Fprintln(a.out, "Prefixes:")
	for _, p := range row.Prefixes {
		_, _ = fmt.Fprintf(a.out, "  %s\n", p)
	}
	return nil
}

func (a *app) add(ctx context.Context, sources []string) error {
	var errs []error
	for _, src := range sources {
		info, err := a.reg.AddSource(ctx, src)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_, _ = fmt.Fprintf(a.out, "added %s %s (%d remappings)\n", info.Name, info.Version, len(info.Remappings))
	}
	return errors.Join(errs...)
}

func (a *app) remove(name, version string) error {
	if a.reg.FindByNameVersion(name, version) < 0 {
		return fmt.Errorf("no package %s %s", name, version)
	}
	a.reg.Remove(name, version)
	return nil
}

func (a *app) reload(ctx context.Context, index int) error {
	info, err := a.reg.Reload(ctx, index)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "reloaded %s %s (%s)\n", info.Name, info.Version, info.FileDate)
	return nil
}

func (a *app) scan(ctx context.Context) error {
	scanner := taxonomy.NewScanner(a.insp,
		taxonomy.WithScanConcurrency(a.cfg.Scan.Concurrency),
		taxonomy.WithScanLogger(a.logger))
	result, ok := <-scanner.Start(ctx, a.reg.List())
	if !ok {
		return ctx.Err()
	}
	a.reg.ApplyScan(result.Stale)
	_, _ = fmt.Fprintf(a.out, "checked %d, skipped %d, %d with updates\n",
		result.Checked, result.Skipped, len(result.Stale))
	if len(result.Stale) > 0 {
		_, _ = fmt.Fprintf(a.out, "updates: %s\n", strings.Join(result.Stale.Sorted(), ", "))
	}
	return nil
}

func (a *app) remappings() error {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, m := range a.reg.SortedRemappings() {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", m.Prefix, m.Target)
	}
	return w.Flush()
}
