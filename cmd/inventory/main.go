package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-inventory-client/authstate"
	"github.com/jrsteele09/go-inventory-client/fetch"
	"github.com/jrsteele09/go-inventory-client/internal/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, message(err))
		os.Exit(1)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("unexpected failure, please try again")
		}
	}()

	c := config.New()
	setupLogger(c.GetLogLevel())

	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		displayAppname(c.GetAppName())
		usage()
		return nil
	}
	if err := c.Validate(); err != nil {
		return errors.Wrap(err, "configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, c)
	if err != nil {
		return err
	}
	defer app.close()

	return dispatch(ctx, app, args)
}

func setupLogger(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

// message is what the user sees for a failed command.
func message(err error) string {
	switch {
	case errors.Is(err, authstate.ErrAdminRequired):
		return "Administrator access required."
	case fetch.RequiresSignIn(err):
		return "Not signed in. Run `inventory login` first."
	case fetch.KindOf(err) == "":
		return err.Error()
	}
	return fetch.UserMessage(err)
}
