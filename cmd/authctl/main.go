package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"authgate/internal/client"
)

type command struct {
	summary string
	admin   bool
	run     func(ctx context.Context, app *app, args []string) error
}

type app struct {
	session *client.Session
	client  *client.Client
	out     io.Writer
}

var commands = map[string]command{
	"signup":              {summary: "create an account and log in", run: runSignup},
	"login":               {summary: "log in and store the session token", run: runLogin},
	"logout":              {summary: "end the current session", run: runLogout},
	"me":                  {summary: "show the current user", run: runMe},
	"update":              {summary: "change username, email or password", run: runUpdate},
	"delete-account":      {summary: "delete the current account", run: runDeleteAccount},
	"reset-password":      {summary: "send a password reset email", run: runResetPassword},
	"resend-verification": {summary: "resend the verification email", run: runResendVerification},
	"upload-avatar":       {summary: "upload a profile picture", run: runUploadAvatar},
	"remove-avatar":       {summary: "remove the profile picture", run: runRemoveAvatar},
	"users":               {summary: "list all users", admin: true, run: runUsers},
	"delete-user":         {summary: "delete another user", admin: true, run: runDeleteUser},
	"set-role":            {summary: "change another user's role", admin: true, run: runSetRole},
	"activity":            {summary: "show recent activity", admin: true, run: runActivity},
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	global := pflag.NewFlagSet("authctl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	server := global.String("server", envOr("AUTHGATE_URL", "http://localhost:8080"), "authgate server URL")
	tokenFile := global.String("token-file", defaultTokenFile(), "where the session token is kept")
	verbose := global.BoolP("verbose", "v", false, "debug logging")
	global.Usage = func() { usage(global) }

	if err := global.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	args := global.Args()
	if len(args) == 0 {
		usage(global)
		os.Exit(2)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		logger.Errorf("unknown command %q", args[0])
		usage(global)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(*server, nil)
	session := client.NewSession(c, client.FileTokenStore{Path: *tokenFile})
	if err := session.Restore(ctx); err != nil {
		logger.Fatalf("restore session: %v", err)
	}
	logger.WithField("logged_in", session.User() != nil).Debug("session restored")

	if cmd.admin && !session.IsAdmin() {
		logger.Fatal("this command requires an admin session")
	}

	a := &app{session: session, client: c, out: os.Stdout}
	if err := cmd.run(ctx, a, args[1:]); err != nil {
		logger.Fatalf("%s: %v", args[0], err)
	}
}

func usage(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "usage: authctl [flags] <command> [args]\n\nflags:\n%s\ncommands:\n", fs.FlagUsages())
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-20s %s\n", name, commands[name].summary)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".authgate-token"
	}
	return filepath.Join(dir, "authgate", "token")
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) requireLogin() error {
	if a.session.User() == nil {
		return client.ErrNotLoggedIn
	}
	return nil
}

func parseFlags(name string, args []string, define func(fs *pflag.FlagSet)) (*pflag.FlagSet, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if define != nil {
		define(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs, nil
}

func runSignup(ctx context.Context, a *app, args []string) error {
	var username, email, password string
	if _, err := parseFlags("signup", args, func(fs *pflag.FlagSet) {
		fs.StringVarP(&username, "username", "u", "", "username (min 3 characters)")
		fs.StringVarP(&email, "email", "e", "", "email address")
		fs.StringVarP(&password, "password", "p", "", "password (min 6 characters)")
	}); err != nil {
		return err
	}
	user, err := a.session.Signup(ctx, username, email, password)
	if err != nil {
		return err
	}
	return a.print(user)
}

func runLogin(ctx context.Context, a *app, args []string) error {
	var username, password string
	if _, err := parseFlags("login", args, func(fs *pflag.FlagSet) {
		fs.StringVarP(&username, "username", "u", "", "username")
		fs.StringVarP(&password, "password", "p", "", "password")
	}); err != nil {
		return err
	}
	user, err := a.session.Login(ctx, username, password)
	if err != nil {
		return err
	}
	return a.print(user)
}

func runLogout(ctx context.Context, a *app, _ []string) error {
	return a.session.Logout(ctx)
}

func runMe(_ context.Context, a *app, _ []string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	return a.print(a.session.User())
}

func runUpdate(ctx context.Context, a *app, args []string) error {
	var username, email, password string
	fs, err := parseFlags("update", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&username, "username", "", "new username")
		fs.StringVar(&email, "email", "", "new email")
		fs.StringVar(&password, "password", "", "new password")
	})
	if err != nil {
		return err
	}

	var update client.ProfileUpdate
	if fs.Changed("username") {
		update.Username = &username
	}
	if fs.Changed("email") {
		update.Email = &email
	}
	if fs.Changed("password") {
		update.Password = &password
	}
	user, err := a.session.UpdateProfile(ctx, update)
	if err != nil {
		return err
	}
	return a.print(user)
}

func runDeleteAccount(ctx context.Context, a *app, args []string) error {
	var yes bool
	if _, err := parseFlags("delete-account", args, func(fs *pflag.FlagSet) {
		fs.BoolVar(&yes, "yes", false, "confirm deletion")
	}); err != nil {
		return err
	}
	if !yes {
		return errors.New("refusing to delete the account without --yes")
	}
	return a.session.DeleteAccount(ctx)
}

func runResetPassword(ctx context.Context, a *app, args []string) error {
	email, err := emailArg("reset-password", args)
	if err != nil {
		return err
	}
	return a.client.RequestPasswordReset(ctx, email)
}

func runResendVerification(ctx context.Context, a *app, args []string) error {
	email, err := emailArg("resend-verification", args)
	if err != nil {
		return err
	}
	return a.client.ResendVerification(ctx, email)
}

func emailArg(name string, args []string) (string, error) {
	var email string
	if _, err := parseFlags(name, args, func(fs *pflag.FlagSet) {
		fs.StringVarP(&email, "email", "e", "", "account email address")
	}); err != nil {
		return "", err
	}
	if email == "" {
		return "", errors.New("--email is required")
	}
	return email, nil
}

func runUploadAvatar(ctx context.Context, a *app, args []string) error {
	fs, err := parseFlags("upload-avatar", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: upload-avatar <image file>")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	user, err := a.session.UploadProfilePicture(ctx, f.Name(), f)
	if err != nil {
		return err
	}
	return a.print(user)
}

func runRemoveAvatar(ctx context.Context, a *app, _ []string) error {
	user, err := a.session.RemoveProfilePicture(ctx)
	if err != nil {
		return err
	}
	return a.print(user)
}

func runUsers(ctx context.Context, a *app, _ []string) error {
	users, err := a.client.ListUsers(ctx, a.session.Token())
	if err != nil {
		return err
	}
	return a.print(users)
}

func runDeleteUser(ctx context.Context, a *app, args []string) error {
	fs, err := parseFlags("delete-user", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: delete-user <user id>")
	}
	return a.client.DeleteUser(ctx, a.session.Token(), fs.Arg(0))
}

func runSetRole(ctx context.Context, a *app, args []string) error {
	fs, err := parseFlags("set-role", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("usage: set-role <user id> <user|admin>")
	}
	user, err := a.client.UpdateUserRole(ctx, a.session.Token(), fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}
	return a.print(user)
}

func runActivity(ctx context.Context, a *app, args []string) error {
	var limit int
	if _, err := parseFlags("activity", args, func(fs *pflag.FlagSet) {
		fs.IntVarP(&limit, "limit", "n", 50, "number of entries")
	}); err != nil {
		return err
	}
	entries, err := a.client.ListActivity(ctx, a.session.Token(), limit)
	if err != nil {
		return err
	}
	return a.print(entries)
}
