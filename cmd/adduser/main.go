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

	"go.uber.org/zap"
	"golang.org/x/term"

	"sugang/internal/config"
	"sugang/internal/db"
	"sugang/internal/model"
	"sugang/internal/repository"
	"sugang/internal/service"
)

type registrar interface {
	Register(ctx context.Context, studentID, name, password string) (*model.User, error)
}

// openRegistrar connects to the course store. Tests replace it.
var openRegistrar = func(cfg config.MySQLConfig) (registrar, func(), error) {
	log := zap.NewNop()
	gormDB, err := db.NewMySQL(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(gormDB, false, log); err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return service.NewAuthService(repository.NewUserRepository(gormDB), nil, nil), closeFn, nil
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	studentID := fs.String("id", "", "Student id used to log in")
	name := fs.String("name", "", "Display name (defaults to the id)")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	dsn := fs.String("dsn", "", "MySQL DSN (defaults to MYSQL_DSN or the config file)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *studentID == "" {
		fmt.Fprintln(stdout, "Usage: adduser -id <student_id> [-name <name>] [-password <password>] [-dsn <dsn>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: id")
	}
	if *name == "" {
		*name = *studentID
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout) // Print newline after password input
	}

	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *dsn != "" {
		cfg.MySQL.DSN = *dsn
	}

	users, closeFn, err := openRegistrar(cfg.MySQL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer closeFn()

	user, err := users.Register(context.Background(), *studentID, *name, password)
	if err != nil {
		if errors.Is(err, service.ErrUserAlreadyExists) {
			return fmt.Errorf("user %s already exists", *studentID)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(stdout, "User %s (%s) created successfully with max credit %d\n", user.ID, user.Name, user.MaxCredit)
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	// Check if stdin is a terminal
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Fallback for non-terminal (e.g. tests, pipes)
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
