package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eringen/microfeed"
	"github.com/eringen/microfeed/post"
	"github.com/eringen/microfeed/views"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe()
	case "token":
		err = runToken(os.Args[2:])
	case "post":
		err = runPost(os.Args[2:])
	case "version":
		fmt.Printf("microfeed %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configDir is where config.yaml is looked up.
func configDir() string {
	return microfeed.EnvOr("MICROFEED_CONFIG_DIR", ".")
}

func runServe() error {
	cfg, err := microfeed.LoadConfig(configDir())
	if err != nil {
		return err
	}
	app := microfeed.New(cfg)

	errc := make(chan error, 1)
	go func() { errc <- app.Start() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errc:
		return errors.Join(err, app.Close())
	case <-sig:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.Shutdown(ctx)
}

// runToken mints an identity token signed with the configured secret, for
// logging in or calling the API during development.
func runToken(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: microfeed token <user-id> [display-name] [ttl]")
	}
	cfg, err := microfeed.LoadConfig(configDir())
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return errors.New("jwt_secret is not set")
	}
	name := ""
	if len(args) > 1 {
		name = args[1]
	}
	ttl := 24 * time.Hour
	if len(args) > 2 {
		if ttl, err = time.ParseDuration(args[2]); err != nil {
			return fmt.Errorf("ttl: %w", err)
		}
	}
	tok, err := microfeed.IssueToken([]byte(cfg.JWTSecret), args[0], name, ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

// runPost publishes a post straight to the configured store.
func runPost(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: microfeed post <token> <text> [image-path]")
	}
	cfg, err := microfeed.LoadConfig(configDir())
	if err != nil {
		return err
	}
	viewer, err := microfeed.ParseToken([]byte(cfg.JWTSecret), args[0])
	if err != nil {
		return err
	}

	var d post.Draft
	d.SetText(args[1])
	if len(args) > 2 {
		f, err := post.OpenDiskFile(args[2])
		if err != nil {
			return err
		}
		if err := d.AttachFile(f); err != nil {
			return err
		}
	}

	ctx := context.Background()
	app := microfeed.New(cfg)
	if err := app.Setup(ctx); err != nil {
		return err
	}
	defer app.Close()
	p, err := app.CreatePost(ctx, &d, viewer)
	if err != nil {
		return err
	}
	fmt.Println(views.BuildURL(cfg.URL, "posts", p.ID))
	return nil
}

func printUsage() {
	fmt.Println(`microfeed - A micro-post feed built with Go, Echo, and templ

Usage:
  microfeed <command> [arguments]

Commands:
  serve                          Run the web server
  token <uid> [name] [ttl]       Print an identity token for uid
  post <token> <text> [image]    Publish a post from the command line
  version                        Print the microfeed version
  help                           Show this help message

Configuration is read from .env, config.yaml and the environment.
Set MICROFEED_CONFIG_DIR to look for config.yaml elsewhere.

Examples:
  microfeed token u1 Alice 72h
  microfeed post "$TOKEN" "hello #microfeed" ./cat.png`)
}
