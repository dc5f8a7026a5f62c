package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	flags "github.com/jessevdk/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/docclass/app/model"
	"github.com/umputun/docclass/app/plugin"
	"github.com/umputun/docclass/app/samples"
	"github.com/umputun/docclass/app/server"
	"github.com/umputun/docclass/app/storage"
	"github.com/umputun/docclass/app/storage/engine"
	"github.com/umputun/docclass/lib/classifier"
)

type options struct {
	InstanceID string `long:"instance-id" env:"INSTANCE_ID" default:"docclass" description:"instance id, isolates models sharing the same database"`

	Server struct {
		Listen   string        `long:"listen" env:"LISTEN" default:":8080" description:"listen address"`
		AuthHash string        `long:"auth" env:"AUTH" description:"basic auth password for user docclass, disabled if empty"`
		CacheTTL time.Duration `long:"cache-ttl" env:"CACHE_TTL" default:"5m" description:"ttl for categorization result cache"`
	} `group:"server" namespace:"server" env-namespace:"SERVER"`

	DB struct {
		Type string `long:"type" env:"TYPE" default:"sqlite" choice:"sqlite" choice:"postgres" description:"database type"`
		File string `long:"file" env:"FILE" default:"docclass.db" description:"sqlite database file"`
		Conn string `long:"conn" env:"CONN" description:"postgres connection string"`
	} `group:"db" namespace:"db" env-namespace:"DB"`

	Model struct {
		MinTokenSize  int      `long:"min-token-size" env:"MIN_TOKEN_SIZE" default:"0" description:"drop tokens shorter than this"`
		IgnoredTokens []string `long:"ignored-token" env:"IGNORED_TOKENS" env-delim:"," description:"tokens excluded from training"`
		IgnorePattern string   `long:"ignore-pattern" env:"IGNORE_PATTERN" description:"regex for tokens excluded from training"`
		Tokenizer     string   `long:"tokenizer" env:"TOKENIZER" description:"lua tokenizer script, builtin tokenizer if empty"`
		NoEmoji       bool     `long:"no-emoji" env:"NO_EMOJI" description:"strip emojis before tokenizing"`
	} `group:"model" namespace:"model" env-namespace:"MODEL"`

	Files struct {
		SamplesDir string `long:"samples" env:"SAMPLES" description:"directory with preset sample files, one per category"`
		Watch      bool   `long:"watch" env:"WATCH" description:"rebuild the model when sample files change"`
	} `group:"files" namespace:"files" env-namespace:"FILES"`

	Logger struct {
		Enabled    bool   `long:"enabled" env:"ENABLED" description:"enable rotated audit log of learned documents"`
		FileName   string `long:"file" env:"FILE" default:"docclass.log" description:"location of audit log"`
		MaxSize    string `long:"max-size" env:"MAX_SIZE" default:"100M" description:"maximum size before it gets rotated"`
		MaxBackups int    `long:"max-backups" env:"MAX_BACKUPS" default:"10" description:"maximum number of old log files to retain"`
	} `group:"logger" namespace:"logger" env-namespace:"LOGGER"`

	Dbg bool `long:"dbg" env:"DEBUG" description:"debug mode"`
}

var revision = "local"

func main() {
	fmt.Printf("docclass %s\n", revision)
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	p.SubcommandsOptional = true
	if _, err := p.Parse(); err != nil {
		if err.(*flags.Error).Type != flags.ErrHelp {
			log.Printf("[ERROR] cli error: %v", err)
		}
		os.Exit(2)
	}

	setupLog(opts.Dbg, opts.Server.AuthHash, opts.DB.Conn)
	log.Printf("[DEBUG] options: %+v", opts)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		// catch signal and invoke graceful termination
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Printf("[WARN] interrupt signal")
		cancel()
	}()

	if err := execute(ctx, opts); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, opts options) error {
	db, err := makeDB(ctx, opts)
	if err != nil {
		return fmt.Errorf("can't make db: %w", err)
	}
	defer db.Close()

	journal, err := storage.NewJournal(ctx, db)
	if err != nil {
		return fmt.Errorf("can't make journal store: %w", err)
	}
	snapshots, err := storage.NewSnapshots(ctx, db)
	if err != nil {
		return fmt.Errorf("can't make snapshots store: %w", err)
	}

	clsOpts, closer, err := makeClassifierOptions(opts)
	if err != nil {
		return fmt.Errorf("can't make classifier options: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	var presets model.Presets
	if opts.Files.SamplesDir != "" {
		loader := &samples.Loader{Dir: opts.Files.SamplesDir}
		presets = loader.Load
	}

	mdl, err := model.New(clsOpts, journal, snapshots, presets)
	if err != nil {
		return fmt.Errorf("can't make model: %w", err)
	}
	if err := mdl.Startup(ctx); err != nil {
		return fmt.Errorf("can't load model state: %w", err)
	}
	stats := mdl.Stats()
	log.Printf("[INFO] model ready, %d documents in %d categories, vocabulary %d",
		stats.TotalDocuments, len(stats.Categories), stats.VocabularySize)

	if opts.Files.SamplesDir != "" && opts.Files.Watch {
		go func() {
			err := samples.Watch(ctx, opts.Files.SamplesDir, func() error {
				log.Printf("[INFO] sample files changed, rebuilding model")
				return mdl.Rebuild(ctx)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[WARN] samples watcher terminated: %v", err)
			}
		}()
	}

	auditWr, err := makeAuditLogWriter(opts)
	if err != nil {
		return fmt.Errorf("can't make audit log: %w", err)
	}
	defer auditWr.Close()

	srv := server.New(server.Config{
		Version:    revision,
		ListenAddr: opts.Server.Listen,
		Model:      &auditedModel{Model: mdl, wr: auditWr},
		AuthPasswd: opts.Server.AuthHash,
		CacheTTL:   opts.Server.CacheTTL,
		Dbg:        opts.Dbg,
	})
	return srv.Run(ctx)
}

// makeDB creates a database connection for the requested engine type.
func makeDB(ctx context.Context, opts options) (*engine.SQL, error) {
	switch opts.DB.Type {
	case "sqlite":
		return engine.NewSqlite(opts.DB.File, opts.InstanceID)
	case "postgres":
		if opts.DB.Conn == "" {
			return nil, errors.New("postgres connection string is required")
		}
		return engine.NewPostgres(ctx, opts.DB.Conn, opts.InstanceID)
	}
	return nil, fmt.Errorf("unsupported db type %q", opts.DB.Type)
}

// makeClassifierOptions builds classifier options from cli flags, loading the lua
// tokenizer plugin if requested. The returned closer is nil without a plugin.
func makeClassifierOptions(opts options) (classifier.Options, io.Closer, error) {
	res := classifier.Options{
		MinTokenSize:  opts.Model.MinTokenSize,
		IgnoredTokens: opts.Model.IgnoredTokens,
		IgnorePattern: opts.Model.IgnorePattern,
		Verbose:       opts.Dbg,
	}

	var closer io.Closer
	tokenizer := classifier.DefaultTokenizer
	if opts.Model.Tokenizer != "" {
		plg, err := plugin.NewTokenizer(opts.Model.Tokenizer)
		if err != nil {
			return classifier.Options{}, nil, fmt.Errorf("can't load tokenizer plugin: %w", err)
		}
		log.Printf("[INFO] using lua tokenizer from %s", opts.Model.Tokenizer)
		tokenizer, closer = plg.Tokenize, plg
	}
	if opts.Model.NoEmoji {
		tokenizer = classifier.WithoutEmoji(tokenizer)
	}
	res.Tokenizer = tokenizer
	return res, closer, nil
}

// auditedModel wraps the model and writes a json line for every learned document.
type auditedModel struct {
	*model.Model
	wr io.Writer
}

func (a *auditedModel) Learn(ctx context.Context, text, category string) error {
	if err := a.Model.Learn(ctx, text, category); err != nil {
		return err
	}
	rec := struct {
		TimeStamp string `json:"ts"`
		Category  string `json:"category"`
		Text      string `json:"text"`
	}{
		TimeStamp: time.Now().In(time.Local).Format(time.RFC3339),
		Category:  category,
		Text:      strings.ReplaceAll(text, "\n", " "),
	}
	line, err := json.Marshal(&rec)
	if err != nil {
		log.Printf("[WARN] can't marshal audit record: %v", err)
		return nil
	}
	if _, err := a.wr.Write(append(line, '\n')); err != nil {
		log.Printf("[WARN] can't write audit record: %v", err)
	}
	return nil
}

// makeAuditLogWriter creates the audit log writer, a no-op if logging disabled.
// it parses options and makes lumberjack logger with rotation
func makeAuditLogWriter(opts options) (auditLog io.WriteCloser, err error) {
	if !opts.Logger.Enabled {
		return nopWriteCloser{io.Discard}, nil
	}

	sizeParse := func(inp string) (uint64, error) {
		if inp == "" {
			return 0, errors.New("empty value")
		}
		for i, sfx := range []string{"k", "m", "g", "t"} {
			if strings.HasSuffix(inp, strings.ToUpper(sfx)) || strings.HasSuffix(inp, strings.ToLower(sfx)) {
				val, err := strconv.Atoi(inp[:len(inp)-1])
				if err != nil {
					return 0, fmt.Errorf("can't parse %s: %w", inp, err)
				}
				return uint64(float64(val) * math.Pow(float64(1024), float64(i+1))), nil
			}
		}
		return strconv.ParseUint(inp, 10, 64)
	}

	maxSize, perr := sizeParse(opts.Logger.MaxSize)
	if perr != nil {
		return nil, fmt.Errorf("can't parse logger MaxSize: %w", perr)
	}

	maxSize /= 1048576

	log.Printf("[INFO] audit log enabled for %s, max size %dM", opts.Logger.FileName, maxSize)
	return &lumberjack.Logger{
		Filename:   opts.Logger.FileName,
		MaxSize:    int(maxSize), // in MB
		MaxBackups: opts.Logger.MaxBackups,
		Compress:   true,
		LocalTime:  true,
	}, nil
}

type nopWriteCloser struct{ io.Writer }

func (n nopWriteCloser) Close() error { return nil }

func setupLog(dbg bool, secrets ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	secrets = append([]string{}, secrets...)
	for i := len(secrets) - 1; i >= 0; i-- {
		if secrets[i] == "" {
			secrets = append(secrets[:i], secrets[i+1:]...)
		}
	}
	if len(secrets) > 0 {
		logOpts = append(logOpts, lgr.Secret(secrets...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
