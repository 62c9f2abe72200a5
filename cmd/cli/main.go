package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/jts-services/portal/internal/auth"
	"github.com/jts-services/portal/internal/cache"
	"github.com/jts-services/portal/internal/config"
	"github.com/jts-services/portal/internal/drive"
	"github.com/jts-services/portal/internal/foldertree"
	"github.com/jts-services/portal/internal/infra/postgres"
	"github.com/jts-services/portal/internal/ledger"
	"github.com/jts-services/portal/internal/logger"
	"github.com/jts-services/portal/internal/statement"
	"github.com/jts-services/portal/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("cli", "info")
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}
	log := logger.New("cli", cfg.LogLevel)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "tree":
		runTree(cfg, log)
	case "statement":
		runStatement(cfg, log)
	case "upload":
		runUpload(cfg, log)
	case "token":
		runToken(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("JTS Services portal CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  tree       Print an owner's folder tree (or one built from a JSON file)")
	fmt.Println("  statement  Print a customer's statement or live ledger")
	fmt.Println("  upload     Upload a local file into an owner's drive")
	fmt.Println("  token      Mint a development access token")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runTree(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("tree", flag.ExitOnError)
	owner := fs.String("owner", "", "Owner (user) ID whose folders to print")
	file := fs.String("file", "", "JSON file of folder records to build offline instead of reading the database")
	asJSON := fs.Bool("json", false, "Print the nested tree as JSON")
	fs.Parse(os.Args[2:])

	var records []foldertree.Record
	switch {
	case *file != "":
		f, err := os.Open(*file)
		if err != nil {
			log.Fatal().Err(err).Str("file", *file).Msg("Failed to open records file")
		}
		records, err = readRecords(f)
		f.Close()
		if err != nil {
			log.Fatal().Err(err).Str("file", *file).Msg("Failed to read records file")
		}
	case *owner != "":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db := connect(ctx, cfg, log)
		defer db.Close()

		var err error
		records, err = postgres.NewFolderRepository(db).ListFolders(ctx, *owner)
		if err != nil {
			log.Fatal().Err(err).Str("owner_id", *owner).Msg("Failed to list folders")
		}
	default:
		log.Fatal().Msg("Usage: cli tree -owner ID | -file records.json")
	}

	roots := foldertree.Build(records)
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(roots); err != nil {
			log.Fatal().Err(err).Msg("Failed to encode tree")
		}
		return
	}
	if err := foldertree.Render(os.Stdout, roots); err != nil {
		log.Fatal().Err(err).Msg("Failed to print tree")
	}
	fmt.Printf("\n%d folders\n", foldertree.Count(roots))
}

// readRecords decodes a JSON array of folder records.
func readRecords(r io.Reader) ([]foldertree.Record, error) {
	var records []foldertree.Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding folder records: %w", err)
	}
	return records, nil
}

func runStatement(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("statement", flag.ExitOnError)
	owner := fs.String("owner", "", "Owner (user) ID")
	customer := fs.String("customer", "", "Customer ID")
	from := fs.String("from", "", "First day of the period (YYYY-MM-DD, optional)")
	to := fs.String("to", "", "Last day of the period (YYYY-MM-DD, optional)")
	live := fs.Bool("live", false, "Print the live transaction table instead of the statement")
	fs.Parse(os.Args[2:])

	if *owner == "" || *customer == "" {
		log.Fatal().Msg("Usage: cli statement -owner ID -customer ID [-from DATE] [-to DATE] [-live]")
	}

	period, err := parsePeriod(*from, *to, time.Local)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid period")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	db := connect(ctx, cfg, log)
	defer db.Close()

	svc := ledger.NewService(postgres.NewCustomerRepository(db), log)

	if *live {
		l, err := svc.Live(ctx, *owner, *customer)
		if err != nil {
			log.Fatal().Err(err).Str("customer_id", *customer).Msg("Failed to load transactions")
		}
		fmt.Printf("%s - current balance %s\n\n", l.Customer.Name, l.Customer.CurrentBalance.StringFixed(2))
		if err := printLines(os.Stdout, l.Lines); err != nil {
			log.Fatal().Err(err).Msg("Failed to print transactions")
		}
		return
	}

	st, err := svc.Statement(ctx, *owner, *customer, period)
	if err != nil {
		log.Fatal().Err(err).Str("customer_id", *customer).Msg("Failed to build statement")
	}
	if err := printStatement(os.Stdout, st); err != nil {
		log.Fatal().Err(err).Msg("Failed to print statement")
	}
}

// parsePeriod reads optional YYYY-MM-DD bounds. The end date covers the whole
// of that day in loc.
func parsePeriod(from, to string, loc *time.Location) (ledger.Period, error) {
	var p ledger.Period
	if from != "" {
		d, err := civil.ParseDate(from)
		if err != nil {
			return p, fmt.Errorf("invalid from date %q: %w", from, err)
		}
		p.From = d.In(loc)
	}
	if to != "" {
		d, err := civil.ParseDate(to)
		if err != nil {
			return p, fmt.Errorf("invalid to date %q: %w", to, err)
		}
		p.To = d.AddDays(1).In(loc).Add(-time.Microsecond)
	}
	return p, p.Validate()
}

func printStatement(w io.Writer, st *ledger.PrintableStatement) error {
	fmt.Fprintf(w, "Statement for %s\n", st.Customer.Name)
	if st.From != nil || st.To != nil {
		fmt.Fprintf(w, "Period: %s to %s\n", dateOrOpen(st.From), dateOrOpen(st.To))
	}
	fmt.Fprintf(w, "Opening balance: %s\n\n", st.Opening.StringFixed(2))

	if err := printLines(w, st.Lines); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nTotal debit:     %s\n", st.TotalDebit.StringFixed(2))
	fmt.Fprintf(w, "Total credit:    %s\n", st.TotalCredit.StringFixed(2))
	_, err := fmt.Fprintf(w, "Closing balance: %s\n", st.Closing.StringFixed(2))
	return err
}

func printLines(w io.Writer, lines []statement.Line) error {
	if len(lines) == 0 {
		_, err := fmt.Fprintln(w, "(no transactions)")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Date\tType\tDetails\tDebit\tCredit\tBalance\t")
	for _, l := range lines {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			l.Date.Format("2006-01-02"),
			l.Type,
			l.Details,
			amount(l.Debit.IsZero(), l.Debit.StringFixed(2)),
			amount(l.Credit.IsZero(), l.Credit.StringFixed(2)),
			l.Balance.StringFixed(2),
		)
	}
	return tw.Flush()
}

func amount(zero bool, s string) string {
	if zero {
		return "-"
	}
	return s
}

func dateOrOpen(t *time.Time) string {
	if t == nil {
		return "..."
	}
	return t.Format("2006-01-02")
}

func runUpload(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	owner := fs.String("owner", "", "Owner (user) ID")
	folder := fs.String("folder", "", "Destination folder ID (defaults to the drive root)")
	filePath := fs.String("file", "", "Path to the local file")
	bucket := fs.String("bucket", cfg.GCSBucket, "GCS bucket (or set GCS_BUCKET env)")
	fs.Parse(os.Args[2:])

	if *owner == "" || *filePath == "" || *bucket == "" {
		log.Fatal().Msg("Usage: cli upload -owner ID -file PATH [-folder ID] [-bucket NAME]")
	}

	f, err := os.Open(*filePath)
	if err != nil {
		log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to open file")
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	db := connect(ctx, cfg, log)
	defer db.Close()

	store, err := storage.NewGCSStore(ctx, *bucket, cfg.GCSCredentialsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer store.Close()

	svc := drive.NewService(
		postgres.NewFolderRepository(db),
		postgres.NewFileRepository(db),
		store,
		cache.Noop{},
		log,
	)

	var folderID *string
	if *folder != "" {
		folderID = folder
	}

	name := filepath.Base(*filePath)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	log.Info().
		Str("owner_id", *owner).
		Str("file", *filePath).
		Str("bucket", *bucket).
		Msg("Uploading file")

	file, err := svc.Upload(ctx, *owner, folderID, name, contentType, f)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s as file %s (%d bytes) to gs://%s/%s\n", name, file.ID, file.SizeBytes, *bucket, file.ObjectName)
}

func runToken(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	owner := fs.String("owner", "", "Owner (user) ID to put in the subject claim")
	email := fs.String("email", "", "Email claim (optional)")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	fs.Parse(os.Args[2:])

	if *owner == "" {
		log.Fatal().Msg("Usage: cli token -owner ID [-email ADDR] [-ttl 1h]")
	}
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required to sign tokens")
	}

	token, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience).Sign(*owner, *email, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}
	fmt.Println(token)
}

func connect(ctx context.Context, cfg *config.Config, log zerolog.Logger) *postgres.DB {
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}
	db, err := postgres.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	return db
}
