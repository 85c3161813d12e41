package main

import (
	"context"
	"log"
	"os"

	"github.com/mkalra/crossarb/internal/storage/sqlite"
)

func main() {
	store, err := sqlite.Open(os.Getenv("SQLITE_PATH"))
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	if err := store.ClearTables(context.Background()); err != nil {
		log.Fatalf("clear tables: %v", err)
	}
	log.Printf("SQLite tables cleared at %s", store.Path())
}
