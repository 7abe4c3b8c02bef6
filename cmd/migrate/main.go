package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/usrflo/mailtrain/internal/pkg/distlock"
)

// Applies migrations/*.sql in lexical order. With --list, prints the
// schema tables instead.
func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	dir := "migrations"
	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		} else {
			dir = a
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping: %v", err)
	}
	log.Println("Connected to database")

	if listOnly {
		rows, err := db.Query(`SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename`)
		if err != nil {
			log.Fatal(err)
		}
		defer rows.Close()
		n := 0
		for rows.Next() {
			var t string
			rows.Scan(&t)
			fmt.Println(" ", t)
			n++
		}
		fmt.Printf("Total: %d tables\n", n)
		return
	}

	// Only one process may apply migrations at a time; concurrent deploys
	// would otherwise race on partially applied files.
	ctx := context.Background()
	lock := distlock.New(db, "mailtrain:migrate")
	acquired, err := lock.TryAcquire(ctx)
	if err != nil {
		log.Fatalf("acquire migration lock: %v", err)
	}
	if !acquired {
		log.Fatal("another migration is in progress")
	}
	defer lock.Release(ctx)

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Fatalf("read migrations dir: %v", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Fatalf("read %s: %v", name, err)
		}
		log.Printf("applying %s", name)
		if _, err := db.Exec(string(data)); err != nil {
			log.Fatalf("apply %s: %v", name, err)
		}
	}
	log.Printf("applied %d migrations", len(files))
}
