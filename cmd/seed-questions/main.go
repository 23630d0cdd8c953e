package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/database"
	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/seed"
	"golang.org/x/term"
)

func main() {
	var (
		file string
		yes  bool
	)
	flag.StringVar(&file, "file", "", "Path to the question bank JSON")
	flag.BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if file == "" {
		file = cfg.SeedFile
	}
	if file == "" {
		fmt.Println("Usage: seed-questions -file bank.json [-yes]")
		os.Exit(2)
	}

	// Validate the whole bank before touching the database.
	bank, err := seed.LoadFile(file)
	if err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Invalid question bank")
	}

	questions := 0
	fmt.Println("=== Seeding Question Bank ===")
	for _, s := range bank {
		fmt.Printf("  %-30s %d questions\n", s.Name, len(s.Questions))
		questions += len(s.Questions)
	}

	if !yes && !confirm(fmt.Sprintf("Insert %d questions into %s?", questions, redact(cfg.DatabaseURL))) {
		fmt.Println("Aborted")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	total, err := seed.IntoStore(ctx, repository.NewPostgresStore(pool), bank)
	if err != nil {
		log.Fatal().Err(err).Int64("inserted", total).Msg("Seeding failed")
	}

	log.Info().Int("subjects", len(bank)).Int64("questions", total).Msg("Question bank seeded")
}

// confirm asks on an interactive terminal; piped input is treated as consent
// only through -yes.
func confirm(prompt string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Println("stdin is not a terminal, pass -yes to confirm")
		return false
	}
	fmt.Printf("%s [y/N]: ", prompt)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// redact hides credentials of a connection URL.
func redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme+3] + "***" + dsn[at:]
}
