// counter-admin inspects and resyncs sequence counters. Resync can lower a
// counter and is refused without -confirm.
package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"clinic-workers/internal/common/config"
	"clinic-workers/internal/common/database"
	"clinic-workers/internal/common/logger"
	"clinic-workers/internal/sequence"
)

var errNotConfirmed = stderrors.New("resync changes the counter; re-run with -confirm")

// Admin is what the subcommands need from the allocator.
type Admin interface {
	Peek(ctx context.Context, scope string) (int64, error)
	Inspect(ctx context.Context, scope string) (interface{}, error)
	Resync(ctx context.Context, scope string) (interface{}, error)
}

type allocatorAdmin struct{ a *sequence.Allocator }

func (w allocatorAdmin) Peek(ctx context.Context, scope string) (int64, error) {
	return w.a.Peek(ctx, scope)
}

func (w allocatorAdmin) Inspect(ctx context.Context, scope string) (interface{}, error) {
	return w.a.Inspect(ctx, scope)
}

func (w allocatorAdmin) Resync(ctx context.Context, scope string) (interface{}, error) {
	return w.a.Resync(ctx, scope)
}

func main() {
	if len(os.Args) < 2 || os.Args[1] == "help" {
		help(os.Stdout)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewStructured(cfg.Logging.Level, "console")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	store, closeStore, err := openStore(ctx, cfg, pg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sequence store: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()

	alloc := sequence.NewAllocator(store, sequence.NewPostgresMaxObserver(pg.DB, nil), log)
	if err := run(ctx, os.Args[1:], allocatorAdmin{alloc}, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg *config.Config, pg *database.PostgresClient) (sequence.Store, func(), error) {
	switch cfg.Sequence.Backend {
	case config.BackendRedis:
		rc, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return nil, nil, err
		}
		return sequence.NewRedisStore(rc.Client), func() { _ = rc.Close() }, nil
	case config.BackendMongo:
		mc, err := database.NewMongo(ctx, cfg.Database.Mongo)
		if err != nil {
			return nil, nil, err
		}
		return sequence.NewMongoStore(mc.Database), func() { _ = mc.Close(context.Background()) }, nil
	case config.BackendMemory:
		return nil, nil, fmt.Errorf("the memory backend has no state to administer")
	default:
		return sequence.NewPostgresStore(pg.DB), func() {}, nil
	}
}

func run(ctx context.Context, args []string, admin Admin, out io.Writer) error {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(out)
	kind := fs.String("kind", "", "code kind (patient, tplan, clinicEvent, inquiry)")
	owner := fs.String("owner", "", "owner code for owned kinds, e.g. P-0004")
	rawScope := fs.String("scope", "", "raw counter scope, overrides -kind/-owner")
	confirm := fs.Bool("confirm", false, "apply the resync")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	scope := *rawScope
	if scope == "" {
		_, s, err := sequence.ScopeFor(*kind, *owner)
		if err != nil {
			return err
		}
		scope = s
	}

	switch args[0] {
	case "peek":
		n, err := admin.Peek(ctx, scope)
		if err != nil {
			return err
		}
		return writeJSON(out, map[string]interface{}{"scope": scope, "value": n})
	case "inspect":
		res, err := admin.Inspect(ctx, scope)
		if err != nil {
			return err
		}
		return writeJSON(out, res)
	case "resync":
		if !*confirm {
			res, err := admin.Inspect(ctx, scope)
			if err != nil {
				return err
			}
			if err := writeJSON(out, res); err != nil {
				return err
			}
			return errNotConfirmed
		}
		res, err := admin.Resync(ctx, scope)
		if err != nil {
			return err
		}
		return writeJSON(out, res)
	default:
		help(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func help(out io.Writer) {
	fmt.Fprint(out, `
Usage: counter-admin <command> [flags]

Commands:
  peek     Show the stored counter value
  inspect  Compare the stored value with the highest code in domain data
  resync   Set the counter to the highest code in domain data (needs -confirm)

Examples:
  counter-admin inspect -kind tplan -owner P-0004
  counter-admin resync -kind tplan -owner P-0004 -confirm
  counter-admin peek -kind patient
`)
}
