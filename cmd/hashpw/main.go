// Command hashpw reads a password from stdin and prints its hash. With -dsn
// and -email it registers the credential in PostgreSQL instead.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"rollcall.app/internal/auth"
	"rollcall.app/internal/store/memory"
	"rollcall.app/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	def := auth.DefaultConfig()
	var (
		algorithm = flag.String("algorithm", def.PasswordAlgorithm, "bcrypt or argon2id")
		cost      = flag.Int("cost", def.BcryptCost, "bcrypt cost")
		dsn       = flag.String("dsn", os.Getenv("ROLLCALL_DATABASE__DSN"), "PostgreSQL DSN (register mode)")
		email     = flag.String("email", "", "credential email (register mode)")
		org       = flag.String("org", "", "organization id (register mode)")
		role      = flag.String("role", string(auth.RoleMember), "admin, manager or member (register mode)")
	)
	flag.Parse()

	cfg := def
	cfg.PasswordAlgorithm = strings.ToLower(*algorithm)
	cfg.BcryptCost = *cost
	cfg.HashWorkers = 1

	password, err := readPassword()
	if err != nil {
		log.Fatalf("read password: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *email == "" {
		// Nothing is stored in hash-only mode.
		store, err := auth.NewCredentialStore(memory.NewCredentials(), cfg)
		if err != nil {
			log.Fatal(err)
		}
		hash, err := store.HashPassword(ctx, password)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(hash)
		return
	}

	if *dsn == "" {
		log.Fatal("register mode needs -dsn or ROLLCALL_DATABASE__DSN")
	}
	db, err := pg.Open(*dsn, pg.PoolConfig{MaxOpenConns: 1})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store, err := auth.NewCredentialStore(db, cfg)
	if err != nil {
		log.Fatal(err)
	}
	parsed, _ := auth.ParseRole(*role)
	rec, err := store.Register(ctx, auth.NewCredential{
		OrganizationID: *org,
		Email:          *email,
		Password:       password,
		Role:           parsed,
	})
	if err != nil {
		log.Fatalf("register: %v", err)
	}
	fmt.Printf("registered %s (%s) in %s as %s\n", rec.Email, rec.SubjectID, rec.OrganizationID, rec.Role)
}

func readPassword() (string, error) {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
