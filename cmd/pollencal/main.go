package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/banshee-data/pollencal/internal/config"
	"github.com/banshee-data/pollencal/internal/db"
	"github.com/banshee-data/pollencal/internal/fsutil"
	"github.com/banshee-data/pollencal/internal/pipeline"
	"github.com/banshee-data/pollencal/internal/version"
)

const defaultDB = "pollencal.db"

const usage = `Usage: pollencal <command> [flags]

Commands:
  template   write translation-table templates for the configured datasets
  import     load the configured datasets and maps into the database
  assemble   build the sampler input bundle
  migrate    manage the database schema (up, down, status)
  runs       list recorded assembly runs
  version    print build information
`

func main() {
	log.SetFlags(log.LstdFlags)
	if err := config.LoadEnv(".env"); err != nil {
		log.Fatalf("failed to load environment: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, fsutil.OSFileSystem{}); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("pollencal: %v", err)
	}
}

func run(ctx context.Context, args []string, out io.Writer, fsys fsutil.FileSystem) error {
	if len(args) < 1 {
		fmt.Fprint(out, usage)
		return flag.ErrHelp
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "template":
		return runTemplate(ctx, args, out, fsys)
	case "import":
		return runImport(ctx, args, out, fsys)
	case "assemble":
		return runAssemble(ctx, args, out, fsys)
	case "migrate":
		fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
		dbPath := fs.String("db", envOr(config.EnvDatabase, defaultDB), "SQLite database path")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return db.RunMigrateCommand(fs.Args(), *dbPath, out)
	case "runs":
		return runRuns(ctx, args, out)
	case "version":
		fmt.Fprintln(out, version.String())
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	}
	fmt.Fprint(out, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loadConfig reads the -config file and applies environment overrides.
func loadConfig(path string) (*config.CalibrationConfig, error) {
	if path == "" {
		return nil, fmt.Errorf("-config is required")
	}
	cfg, err := config.LoadCalibrationConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func databasePath(flagValue string, cfg *config.CalibrationConfig) string {
	if flagValue != "" {
		return flagValue
	}
	if p := cfg.ResolvePath(cfg.DatabasePath); p != "" {
		return p
	}
	return ""
}

func runTemplate(ctx context.Context, args []string, out io.Writer, fsys fsutil.FileSystem) error {
	fs := flag.NewFlagSet("template", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "calibration config (JSON)")
	dir := fs.String("out", "templates", "directory for template CSVs")
	prevPollen := fs.String("prev-pollen", "", "earlier pollen map used to prefill the template")
	prevVeg := fs.String("prev-vegetation", "", "earlier vegetation map used to prefill the template")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	pollen, veg, err := pipeline.LoadTables(fsys, cfg)
	if err != nil {
		return err
	}
	set := pipeline.TemplateSet{Pollen: pollen, Vegetation: veg}
	if *prevPollen != "" {
		if set.PrevPollen, err = pipeline.ReadMapFile(fsys, *prevPollen, cfg.GetPollenMapName()); err != nil {
			return err
		}
	}
	if *prevVeg != "" {
		if set.PrevVegetation, err = pipeline.ReadMapFile(fsys, *prevVeg, cfg.GetVegetationMapName()); err != nil {
			return err
		}
	}
	pp, vp, err := pipeline.WriteTemplates(fsys, *dir, set)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "templates written to %s (%d pollen and %d vegetation labels need a target)\n", *dir, pp, vp)
	return nil
}

func runImport(ctx context.Context, args []string, out io.Writer, fsys fsutil.FileSystem) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "calibration config (JSON)")
	dbFlag := fs.String("db", "", "SQLite database path (default from config or "+config.EnvDatabase+")")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	dbPath := databasePath(*dbFlag, cfg)
	if dbPath == "" {
		dbPath = defaultDB
	}
	src, err := pipeline.LoadSources(fsys, cfg)
	if err != nil {
		return err
	}
	store, err := db.NewDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()
	if err := pipeline.Import(ctx, store, src); err != nil {
		return err
	}
	fmt.Fprintf(out, "imported %d samples, %d vegetation records and maps %q, %q into %s\n",
		len(src.Pollen.Samples), len(src.Vegetation.Locations), src.PollenMap.Name, src.VegetationMap.Name, dbPath)
	return nil
}

func runAssemble(ctx context.Context, args []string, out io.Writer, fsys fsutil.FileSystem) error {
	fs := flag.NewFlagSet("assemble", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "calibration config (JSON)")
	outPath := fs.String("out", "", "model input path (default from config or "+config.EnvOutput+")")
	dbFlag := fs.String("db", "", "SQLite database path; runs are recorded here")
	fromDB := fs.Bool("from-db", false, "read inputs from the database instead of files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	dest := *outPath
	if dest == "" {
		dest = cfg.ResolvePath(cfg.OutputPath)
	}
	if dest == "" {
		dest = "model_input.json"
	}

	var store *db.DB
	if dbPath := databasePath(*dbFlag, cfg); dbPath != "" {
		if store, err = db.NewDB(dbPath); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer store.Close()
	} else if *fromDB {
		return fmt.Errorf("-from-db needs -db or database_path")
	}

	var src *pipeline.Sources
	if *fromDB {
		src, err = pipeline.LoadSourcesFromDB(ctx, store, cfg)
	} else {
		src, err = pipeline.LoadSources(fsys, cfg)
	}
	if err != nil {
		return err
	}

	res, err := pipeline.Run(ctx, cfg, src)
	if err != nil {
		return err
	}
	paths, err := pipeline.WriteOutputs(fsys, dest, res)
	if err != nil {
		return err
	}

	if store != nil {
		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		mi := res.Input
		if _, err := store.RecordRun(ctx, db.AssemblyRun{
			RunID:      res.RunID,
			ConfigJSON: string(cfgJSON),
			K:          mi.K,
			NCores:     mi.NCores,
			NCells:     mi.NCells,
			NPot:       mi.NPot,
			OutputPath: paths.Input,
		}); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "run %s: K=%d N_cores=%d N_cells=%d N_pot=%d -> %s\n",
		res.RunID, res.Input.K, res.Input.NCores, res.Input.NCells, res.Input.NPot, paths.Input)
	return nil
}

func runRuns(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	dbPath := fs.String("db", envOr(config.EnvDatabase, defaultDB), "SQLite database path")
	limit := fs.Int("limit", 20, "maximum runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCREATED\tK\tN_CORES\tN_CELLS\tN_POT\tOUTPUT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.RunID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.K, r.NCores, r.NCells, r.NPot, r.OutputPath)
	}
	return tw.Flush()
}
