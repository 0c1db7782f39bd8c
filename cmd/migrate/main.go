// Command migrate applies, rolls back and reports schema migrations.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"spaq.app/internal/migrate"
	"spaq.app/internal/obs"
)

func main() {
	logger := obs.Logger()

	var (
		dsn = flag.String("dsn", os.Getenv("SPAQ_PG_DSN"), "postgres DSN (defaults to SPAQ_PG_DSN)")
		dir = flag.String("dir", "migrations", "directory with *.up.sql / *.down.sql files")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: migrate [flags] up|down|status\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *dsn == "" {
		logger.Fatal("a postgres DSN is required (-dsn or SPAQ_PG_DSN)")
	}

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		logger.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	mgr := migrate.NewManager(db, *dir)
	switch cmd {
	case "up":
		if err := mgr.Up(ctx); err != nil {
			logger.Fatalf("migrate up: %v", err)
		}
		logger.Print("migrations applied")
	case "down":
		if err := mgr.Down(ctx); err != nil {
			logger.Fatalf("migrate down: %v", err)
		}
		logger.Print("last migration rolled back")
	case "status":
		applied, err := mgr.Status(ctx)
		if err != nil {
			logger.Fatalf("migrate status: %v", err)
		}
		if len(applied) == 0 {
			fmt.Println("no migrations applied")
			return
		}
		for _, name := range applied {
			fmt.Println(name)
		}
	default:
		logger.Fatalf("unknown command %q (want up, down or status)", cmd)
	}
}
