// Command adduser creates a hisab account from the command line.
//
//	adduser -name "Rafi" -email rafi@example.com -role parent
//
// The password is read from the terminal without echo, or from the first
// line of stdin when stdin is not a terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"hisab/internal/cli"
	"hisab/internal/config"
	"hisab/internal/core"
	"hisab/internal/services"
)

func main() {
	cli.LoadEnvFile()
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)
	name := fs.String("name", "", "display name (required)")
	email := fs.String("email", "", "e-mail address (required)")
	role := fs.String("role", string(core.UserRoleIndividual), "individual, parent or child")
	dbPath := fs.String("db", "", "SQLite database path (overrides SQLITE_DB_PATH)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*name) == "" || strings.TrimSpace(*email) == "" {
		fmt.Fprintln(stderr, "adduser: -name and -email are required")
		fs.Usage()
		return 2
	}
	r := core.UserRole(strings.ToLower(strings.TrimSpace(*role)))
	if !r.IsValid() {
		fmt.Fprintf(stderr, "adduser: unknown role %q\n", *role)
		return 2
	}

	password, err := readPassword(stdin, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "adduser: read password: %v\n", err)
		return 1
	}

	cfg := config.Load()
	if *dbPath != "" {
		cfg.DataBackend, cfg.SQLiteDBPath = "sqlite", *dbPath
	}
	repo, err := cli.OpenRepository(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "adduser: open %s repository: %v\n", cfg.DataBackend, err)
		return 1
	}
	defer repo.Close()

	u, err := services.NewUserService(repo).Register(context.Background(), *name, *email, password, r)
	if err != nil {
		fmt.Fprintf(stderr, "adduser: %v\n", err)
		if errors.Is(err, services.ErrEmailTaken) {
			return 3
		}
		return 1
	}
	fmt.Fprintf(stdout, "created user %d <%s> role=%s\n", u.ID, u.Email, u.Role)
	return 0
}

// readPassword prompts on an interactive terminal and otherwise takes the
// first line of stdin.
func readPassword(stdin io.Reader, prompt io.Writer) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		return string(b), err
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
