package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// appCommand builds a non-interactive command that runs with a ready app writing to the
// root writer
func appCommand(name, usage, argsUsage string, extra []cli.Flag, run func(ctx context.Context, c *cli.Command, a *app) error) *cli.Command {
	var cfg config
	flags := append(extra, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: argsUsage,
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, a, err := setup(ctx, c, &cfg, c.Root().Writer)
			if err != nil {
				return err
			}
			defer a.Close()
			return run(ctx, c, a)
		},
	}
}

func askCommand() *cli.Command {
	return appCommand("ask", "Send one message to the current session and print the reply", "<message>", nil,
		func(ctx context.Context, c *cli.Command, a *app) error {
			text := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(text) == "" {
				return goerr.New("message is required")
			}
			reply, err := a.chat.Send(ctx, text)
			if err != nil {
				return err
			}
			if reply != nil && len(reply.Images) > 0 {
				// report image load failures before exiting
				for _, u := range reply.Images {
					a.renderer.Images().Wait(ctx, u)
				}
			}
			a.synth.Wait()
			return nil
		})
}

func sessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Manage chat sessions",
		Commands: []*cli.Command{
			appCommand("list", "List sessions, most recent first", "", nil,
				func(ctx context.Context, c *cli.Command, a *app) error {
					a.listSessions(ctx, c.Root().Writer)
					return nil
				}),
			appCommand("new", "Create a session and make it current", "[name]", nil,
				func(ctx context.Context, c *cli.Command, a *app) error {
					s := a.store.CreateSession(ctx, strings.Join(c.Args().Slice(), " "))
					if err := a.store.SetCurrentSession(ctx, s.ID); err != nil {
						return err
					}
					fmt.Fprintln(c.Root().Writer, s.ID)
					return nil
				}),
			appCommand("use", "Make a session current", "<n|id>", nil,
				func(ctx context.Context, c *cli.Command, a *app) error {
					s, err := a.sessionRef(ctx, c.Args().First())
					if err != nil {
						return err
					}
					return a.store.SetCurrentSession(ctx, s.ID)
				}),
			appCommand("show", "Print a session (current by default)", "[n|id]", nil,
				func(ctx context.Context, c *cli.Command, a *app) error {
					s := a.store.CurrentSession(ctx)
					if c.Args().Present() {
						var err error
						if s, err = a.sessionRef(ctx, c.Args().First()); err != nil {
							return err
						}
					}
					a.renderer.ShowSession(ctx, s)
					return nil
				}),
			appCommand("rename", "Rename a session", "<n|id> <name>", nil,
				func(ctx context.Context, c *cli.Command, a *app) error {
					if c.NArg() < 2 {
						return goerr.New("session and name are required")
					}
					s, err := a.sessionRef(ctx, c.Args().First())
					if err != nil {
						return err
					}
					return a.store.RenameSession(ctx, s.ID, strings.Join(c.Args().Tail(), " "))
				}),
			appCommand("delete", "Delete a session", "<n|id>", nil,
				func(ctx context.Context, c *cli.Command, a *app) error {
					s, err := a.sessionRef(ctx, c.Args().First())
					if err != nil {
						return err
					}
					a.store.DeleteSession(ctx, s.ID)
					return nil
				}),
			appCommand("clear", "Delete every session", "", nil,
				func(ctx context.Context, c *cli.Command, a *app) error {
					a.store.ClearAllSessions(ctx)
					return nil
				}),
		},
	}
}

func memoryCommand() *cli.Command {
	action := func(verb string) func(ctx context.Context, c *cli.Command, a *app) error {
		return func(ctx context.Context, c *cli.Command, a *app) error {
			return a.memoryAction(ctx, c.Root().Writer, append([]string{verb}, c.Args().Slice()...))
		}
	}
	return &cli.Command{
		Name:  "memory",
		Usage: "Manage memories sent as context with every message",
		Commands: []*cli.Command{
			appCommand("list", "List memories", "", nil, action("list")),
			appCommand("add", "Add a memory", "<text>", nil, action("add")),
			appCommand("remove", "Remove a memory", "<index>", nil, action("remove")),
			appCommand("edit", "Replace the text of a memory", "<index> <text>", nil, action("edit")),
			appCommand("clear", "Remove every memory", "", nil, action("clear")),
		},
	}
}

func modelsCommand() *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "List or select text models",
		Commands: []*cli.Command{
			appCommand("list", "List available models", "", nil,
				func(ctx context.Context, c *cli.Command, a *app) error {
					return a.listModels(ctx, c.Root().Writer)
				}),
			appCommand("use", "Set the model of the current session and the default", "<name>", nil,
				func(ctx context.Context, c *cli.Command, a *app) error {
					name := c.Args().First()
					if name == "" {
						return goerr.New("model name is required")
					}
					return a.store.SetSessionModel(ctx, a.store.CurrentSession(ctx).ID, name)
				}),
		},
	}
}

func prefsCommand() *cli.Command {
	var p model.Personalization
	personalFlags := []cli.Flag{
		&cli.StringFlag{Name: "name", Usage: "What to call you", Destination: &p.Name},
		&cli.StringFlag{Name: "interests", Usage: "Topics you care about", Destination: &p.Interests},
		&cli.StringFlag{Name: "traits", Usage: "How the AI should behave", Destination: &p.AITraits},
		&cli.StringFlag{Name: "info", Usage: "Anything else to remember", Destination: &p.AdditionalInfo},
	}

	return &cli.Command{
		Name:  "prefs",
		Usage: "Show or change preferences",
		Commands: []*cli.Command{
			appCommand("show", "Print preferences", "", nil,
				func(ctx context.Context, c *cli.Command, a *app) error {
					a.showPrefs(ctx, c.Root().Writer)
					return nil
				}),
			appCommand("set", "Set theme, model, voice, speed, pitch or autospeak", "<key> <value>", nil,
				func(ctx context.Context, c *cli.Command, a *app) error {
					if c.NArg() < 2 {
						return goerr.New("key and value are required")
					}
					return a.setPref(ctx, c.Args().First(), strings.Join(c.Args().Tail(), " "))
				}),
			appCommand("personalize", "Tell the AI about yourself", "", personalFlags,
				func(ctx context.Context, c *cli.Command, a *app) error {
					a.personalize(ctx, p)
					return nil
				}),
		},
	}
}

func statsCommand() *cli.Command {
	return appCommand("stats", "Show the visitor count", "", nil,
		func(ctx context.Context, c *cli.Command, a *app) error {
			return a.showStats(ctx, c.Root().Writer)
		})
}

func resetCommand() *cli.Command {
	var yes bool
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "yes",
			Aliases:     []string{"y"},
			Usage:       "Confirm deleting all sessions, memories and preferences",
			Destination: &yes,
		},
	}
	return appCommand("reset", "Delete all user data", "", flags,
		func(ctx context.Context, c *cli.Command, a *app) error {
			if !yes {
				return goerr.New("this deletes all chats, memories and settings; pass --yes to confirm")
			}
			a.store.DeleteAllUserData(ctx)
			a.notifier.Notify(ctx, "All user data deleted")
			return nil
		})
}
