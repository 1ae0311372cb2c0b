package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/aussiebroadwan/opsdesk/internal/console/app"
	"github.com/aussiebroadwan/opsdesk/internal/console/guard"

	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const usage = `usage: opsdesk <command> [flags]

commands:
  login    authenticate against the desk service
  logout   end the current session
  status   show the current session
  routes   show route access for the current session
`

func main() {
	user := pflag.StringP("user", "u", "", "identifier to log in as")
	pflag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if pflag.NArg() < 1 {
		pflag.Usage()
		os.Exit(2)
	}

	cfg := app.LoadConfig()
	console, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize console: %v", err)
	}
	defer console.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := console.Bootstrap(ctx); err != nil {
		log.Fatalf("failed to restore session: %v", err)
	}

	switch cmd := pflag.Arg(0); cmd {
	case "login":
		err = runLogin(ctx, console, *user)
	case "logout":
		err = console.Logout(ctx)
	case "status":
		err = runStatus(console)
	case "routes":
		err = runRoutes(console)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("%v", err)
	}
}

func runLogin(ctx context.Context, console *app.Console, user string) error {
	if user == "" {
		return fmt.Errorf("login requires --user")
	}

	secret, err := readSecret()
	if err != nil {
		return fmt.Errorf("read secret: %w", err)
	}

	if err := console.Login(ctx, user, secret); err != nil {
		return err
	}

	s := console.Session()
	fmt.Printf("logged in as %s (%s)\n", s.Identity.DisplayName, s.Identity.RoleName)
	return nil
}

// readSecret prompts on a terminal without echo, and falls back to reading a
// line when stdin is a pipe.
func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		fmt.Fprint(os.Stderr, "secret: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runStatus(console *app.Console) error {
	s := console.Session()
	if !s.Authenticated {
		fmt.Println("not logged in")
		return nil
	}

	fmt.Printf("user:         %s <%s>\n", s.Identity.DisplayName, s.Identity.Email)
	fmt.Printf("role:         %s\n", s.Identity.RoleName)
	if s.Identity.Unscoped() {
		fmt.Printf("organisation: (all)\n")
	} else {
		fmt.Printf("organisation: %s\n", *s.Identity.OrganisationID)
	}
	if s.ExpiresAt != nil {
		fmt.Printf("expires:      %s\n", time.Unix(*s.ExpiresAt, 0).Format(time.RFC3339))
	}
	fmt.Printf("permissions:  %s\n", strings.Join(s.Permissions.Tokens(), " "))
	return nil
}

func runRoutes(console *app.Console) error {
	s := console.Session()
	now := time.Now()

	for _, route := range console.Routes() {
		fmt.Printf("%-12s %-14s %s\n", route.Name, route.Path, guard.Decide(route.Requirement, s, now))
	}
	return nil
}
