package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/mcdev12/focusroom/go/internal/config"
	"github.com/mcdev12/focusroom/go/internal/models"
	"github.com/mcdev12/focusroom/go/internal/realtime"
	"github.com/mcdev12/focusroom/go/internal/room"
	"github.com/mcdev12/focusroom/go/internal/session"
	"github.com/mcdev12/focusroom/go/internal/timer"
)

const cleanupTimeout = 10 * time.Second

type app struct {
	configPath string
	envFiles   []string

	cfg      *config.Config
	injector do.Injector
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "focusroom",
		Short:         "Focus timer with shared rooms",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(a.configPath, a.envFiles)
			if err != nil {
				return err
			}
			setupLogger(cfg)
			a.cfg = cfg
			a.injector = setupDI(cfg)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.injector != nil {
				a.injector.Shutdown()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "dotenv files to load (default .env)")

	root.AddCommand(
		a.soloCmd(),
		a.joinCmd(),
		a.createCmd(),
		a.roomsCmd(),
	)
	return root
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (a *app) soloCmd() *cobra.Command {
	var (
		minutes     int
		sessionType string
		tag         string
	)

	cmd := &cobra.Command{
		Use:   "solo",
		Short: "Run a solo focus or break session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			startStatusServer(ctx, a.cfg, a.injector)

			coordinator := do.MustInvoke[*session.Coordinator](a.injector)
			engine := do.MustInvokeNamed[*timer.Engine](a.injector, soloEngine)

			t := models.SessionType(sessionType)
			if err := coordinator.SetSessionType(t); err != nil {
				return err
			}
			minutes = soloMinutes(t, minutes)

			done := make(chan struct{})
			var completed atomic.Bool
			unsubscribe := engine.Subscribe(func(s timer.Snapshot) {
				switch s.State {
				case timer.StateCompleted.String():
					completed.Store(true)
				case timer.StateIdle.String():
					if completed.Load() {
						select {
						case <-done:
						default:
							close(done)
						}
					}
				}
			})
			defer unsubscribe()

			opts := session.StartOptions{}
			if tag != "" {
				opts.TagID = &tag
			}
			s, err := coordinator.Start(ctx, minutes, opts)
			if err != nil {
				return err
			}
			engine.Attach()
			defer engine.Detach()

			fmt.Fprintf(cmd.OutOrStdout(), "%s session %s started: %d minutes\n", t, s.ID, minutes)

			select {
			case <-done:
				fmt.Fprintln(cmd.OutOrStdout(), "session complete")
				if stats := coordinator.Stats(); stats != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "streak %d, total %.1fh, level %d\n",
						stats.CurrentStreak, stats.TotalFocusHours, stats.Level)
				}
				return nil
			case <-ctx.Done():
				cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
				defer cancel()
				log.Info().Msg("interrupted, stopping session")
				return coordinator.Stop(cleanupCtx)
			}
		},
	}

	cmd.Flags().IntVar(&minutes, "minutes", 0, "session length in minutes (default by type, snapped to the dial)")
	cmd.Flags().StringVar(&sessionType, "type", string(models.SessionTypeFocus), "focus or break")
	cmd.Flags().StringVar(&tag, "tag", "", "tag id to attach to the session")
	return cmd
}

// soloMinutes picks the type's default length, or snaps a requested one to
// the type's dial.
func soloMinutes(t models.SessionType, minutes int) int {
	if minutes == 0 {
		return t.DefaultMinutes()
	}
	if t == models.SessionTypeBreak {
		return timer.BreakDial.Snap(minutes)
	}
	return timer.FocusDial.Snap(minutes)
}

func (a *app) joinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join CODE",
		Short: "Join a room and follow its shared timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			startStatusServer(ctx, a.cfg, a.injector)

			controller := do.MustInvoke[*room.Controller](a.injector)
			engine := do.MustInvokeNamed[*timer.Engine](a.injector, roomEngine)
			conn := do.MustInvoke[*realtime.ConnectionManager](a.injector)

			unsubscribe := controller.Subscribe(func(s room.Snapshot) {
				if s.Room == nil {
					return
				}
				engine.Sync(*s.Room)
				log.Info().
					Str("room", s.Room.Name).
					Str("state", string(s.Room.CurrentState)).
					Int("participants", len(s.Participants)).
					Msg("room updated")
			})
			defer unsubscribe()

			joined, err := controller.Join(ctx, args[0])
			if err != nil {
				if errors.Is(err, realtime.ErrAuthenticationFailed) || errors.Is(err, realtime.ErrAuthUnavailable) {
					return fmt.Errorf("%w: please login again", err)
				}
				return err
			}
			engine.Sync(*joined)
			engine.Attach()
			defer engine.Detach()

			fmt.Fprintf(cmd.OutOrStdout(), "joined %s (%s), %d min focus / %d min break\n",
				joined.Name, joined.RoomCode, joined.FocusDuration, joined.BreakDuration)

			<-ctx.Done()

			cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
			defer cancel()
			if err := controller.Leave(cleanupCtx); err != nil {
				log.Warn().Err(err).Msg("failed to leave room")
			}
			if lastErr := conn.LastError(); lastErr != nil {
				log.Debug().Err(lastErr).Msg("last connection error")
			}
			return nil
		},
	}
}

func (a *app) createCmd() *cobra.Command {
	var (
		name         string
		focusMinutes int
		breakMinutes int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a room",
		RunE: func(cmd *cobra.Command, args []string) error {
			controller := do.MustInvoke[*room.Controller](a.injector)
			r, err := controller.Create(cmd.Context(), name, focusMinutes, breakMinutes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s, join code %s\n", r.Name, r.RoomCode)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "room name")
	cmd.Flags().IntVar(&focusMinutes, "focus", models.DefaultFocusMinutes, "focus minutes")
	cmd.Flags().IntVar(&breakMinutes, "break", models.DefaultBreakMinutes, "break minutes")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (a *app) roomsCmd() *cobra.Command {
	var active bool

	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List your rooms, or all active rooms",
		RunE: func(cmd *cobra.Command, args []string) error {
			controller := do.MustInvoke[*room.Controller](a.injector)

			var (
				rooms []models.Room
				err   error
			)
			if active {
				rooms, err = controller.ListActive(cmd.Context())
			} else {
				rooms, err = controller.ListMine(cmd.Context())
			}
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tNAME\tSTATE\tFOCUS\tBREAK")
			for _, r := range rooms {
				fmt.Fprintf(w, "%s\t%s\t%s\t%dm\t%dm\n", r.RoomCode, r.Name, r.CurrentState, r.FocusDuration, r.BreakDuration)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&active, "active", false, "list all active rooms")
	return cmd
}
