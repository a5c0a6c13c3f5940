package cli

import (
	"context"
	"io"
	"os"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	return run(ctx, argv, os.Stdout, os.Stderr)
}

func run(ctx context.Context, argv []string, w, errW io.Writer) *Error {
	cmd := &cli.Command{
		Name:      "chatterbox",
		Usage:     "Terminal chat client for text and image generation",
		Writer:    w,
		ErrWriter: errW,
		Commands: []*cli.Command{
			chatCommand(),
			simpleCommand(),
			askCommand(),
			sessionsCommand(),
			memoryCommand(),
			modelsCommand(),
			screensaverCommand(),
			prefsCommand(),
			statsCommand(),
			resetCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
