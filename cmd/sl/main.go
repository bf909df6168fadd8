package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"spiceledger/internal/app"
	"spiceledger/internal/config"
	"spiceledger/internal/db"
	"spiceledger/internal/domain"
	"spiceledger/internal/engine"
	"spiceledger/internal/migrate"
	"spiceledger/internal/repo"
	"spiceledger/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Spiceledger CLI",
	Long: `Spiceledger tracks Dune: Imperium sessions at the table.
- Workspace: a .spiceledger directory holding the sqlite database; config lives next to it in spiceledger.yml.
- Game: one live session at a time; seats get agents and a swordmaster, turns advance with actions and passes.
- Undo: every action pushes a snapshot, 'sl game undo' pops one.
- Finalize: scores and the action log are written to the record store (Google Sheet or the local backend) and the session clears.
- Event log: an append-only audit trail, view with 'sl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SPICELEDGER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("spreadsheet-id", "", "spreadsheet id (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("spreadsheet-id", rootCmd.PersistentFlags().Lookup("spreadsheet-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(gameCmd())
	rootCmd.AddCommand(playersCmd())
	rootCmd.AddCommand(leadersCmd())
	rootCmd.AddCommand(recentCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(webhookCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default spiceledger.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func gameCmd() *cobra.Command {
	game := &cobra.Command{Use: "game", Short: "Run a session"}
	game.AddCommand(gameStartCmd())
	game.AddCommand(gameStatusCmd())
	game.AddCommand(gameActionCmd())
	game.AddCommand(gamePassCmd())
	game.AddCommand(gameUndoCmd())
	game.AddCommand(gameEndCmd())
	game.AddCommand(gameFinalizeCmd())
	game.AddCommand(gameAbandonCmd())
	return game
}

func gameStartCmd() *cobra.Command {
	var players []string
	var first string
	var noTrack bool
	cmd := &cobra.Command{
		Use:     "start",
		Short:   "Start a game",
		Example: `  sl game start --player "Paul=muaddib" --player "Nina=feyd" --first Paul`,
		RunE: func(cmd *cobra.Command, args []string) error {
			setup, err := parseSetupPlayers(players, first)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.StartGame(ctx, engine.StartOptions{Players: setup, Tracking: !noTrack})
				if err != nil {
					return err
				}
				return printState(st)
			})
		},
	}
	cmd.Flags().StringArrayVar(&players, "player", nil, "seat as Name=Leader (repeat per player)")
	cmd.Flags().StringVar(&first, "first", "", "name of the first player (defaults to the first --player)")
	cmd.Flags().BoolVar(&noTrack, "no-track", false, "skip per-action logging")
	return cmd
}

func parseSetupPlayers(specs []string, first string) ([]engine.SetupPlayer, error) {
	var setup []engine.SetupPlayer
	for _, s := range specs {
		name, leader, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("--player %q: expected Name=Leader", s)
		}
		setup = append(setup, engine.SetupPlayer{
			Name:   strings.TrimSpace(name),
			Leader: strings.TrimSpace(leader),
		})
	}
	if len(setup) == 0 {
		return nil, errors.New("at least one --player is required")
	}
	if first == "" {
		setup[0].First = true
		return setup, nil
	}
	for i := range setup {
		if strings.EqualFold(setup[i].Name, first) {
			setup[i].First = true
			return setup, nil
		}
	}
	return nil, fmt.Errorf("--first %q does not match any --player", first)
}

func gameStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show tracker state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.LoadState(ctx)
				if err != nil {
					return err
				}
				return printState(st)
			})
		},
	}
	return cmd
}

func gameActionCmd() *cobra.Command {
	var seat int
	cmd := &cobra.Command{
		Use:   "action <description>",
		Short: "Record an agent turn for a seat",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.Action(ctx, seat, strings.Join(args, " "))
				if err != nil {
					return err
				}
				return printState(st)
			})
		},
	}
	cmd.Flags().IntVar(&seat, "seat", 1, "seat id")
	return cmd
}

func gamePassCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pass",
		Short: "Pass the current turn",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.Pass(ctx)
				if err != nil {
					return err
				}
				return printState(st)
			})
		},
	}
	return cmd
}

func gameUndoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Revert the last action or pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.Undo(ctx)
				if err != nil {
					return err
				}
				return printState(st)
			})
		},
	}
	return cmd
}

func gameEndCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "end",
		Short: "Move the game to scoring",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.EndGame(ctx)
				if err != nil {
					return err
				}
				return printState(st)
			})
		},
	}
	return cmd
}

func gameFinalizeCmd() *cobra.Command {
	var scores []string
	cmd := &cobra.Command{
		Use:     "finalize",
		Short:   "Write scores and logs to the record store and clear the session",
		Example: `  sl game finalize --score 1=12 --score 2=9`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := map[int]string{}
			for _, s := range scores {
				seatStr, vp, ok := strings.Cut(s, "=")
				if !ok {
					return fmt.Errorf("--score %q: expected seat=points", s)
				}
				seat, err := strconv.Atoi(strings.TrimSpace(seatStr))
				if err != nil {
					return fmt.Errorf("--score %q: seat must be a number", s)
				}
				parsed[seat] = strings.TrimSpace(vp)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				gameID, err := e.Finalize(ctx, engine.FinalizeOptions{
					Scores:        parsed,
					SpreadsheetID: viper.GetString("spreadsheet-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"gameId": gameID, "message": "game saved"})
			})
		},
	}
	cmd.Flags().StringArrayVar(&scores, "score", nil, "victory points as seat=points (repeat per seat)")
	return cmd
}

func gameAbandonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "abandon",
		Short: "Discard the current session without saving",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Abandon(ctx); err != nil {
					return err
				}
				fmt.Println("game abandoned")
				return nil
			})
		},
	}
	return cmd
}

func playersCmd() *cobra.Command {
	players := &cobra.Command{Use: "players", Short: "Player directory"}
	players.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known players",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Players(ctx, viper.GetString("spreadsheet-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name})
				}
				tw.Render()
				return nil
			})
		},
	})
	return players
}

func leadersCmd() *cobra.Command {
	leaders := &cobra.Command{Use: "leaders", Short: "Leader directory"}
	leaders.AddCommand(leadersListCmd())
	leaders.AddCommand(leadersDraftCmd())
	return leaders
}

func leadersListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List leaders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Leaders(ctx, viper.GetString("spreadsheet-id"))
				if err != nil {
					return err
				}
				return printLeaders(items)
			})
		},
	}
	return cmd
}

func leadersDraftCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Draw a random leader pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.DraftLeaders(ctx, viper.GetString("spreadsheet-id"), size)
				if err != nil {
					return err
				}
				return printLeaders(items)
			})
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "pool size (0 uses the configured draft size)")
	return cmd
}

func printLeaders(items []domain.Leader) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "House", "Game"})
	for _, l := range items {
		tw.AppendRow(table.Row{l.ID, l.Name, l.House, l.Game})
	}
	tw.Render()
	return nil
}

func recentCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recent finished games",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				games, err := e.RecentGames(ctx, viper.GetString("spreadsheet-id"), limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(games)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Game", "Date", "Player", "Leader", "VP"})
				for _, g := range games {
					for _, line := range g.Players {
						tw.AppendRow(table.Row{g.ID, g.Date, line.PlayerRef, line.LeaderRef, line.VP})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 2, "number of games")
	return cmd
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Audit trail"}
	logc.AddCommand(logTailCmd())
	return logc
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, sessionID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, sessionID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Player", "Payload"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.Player, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id filter")
	return cmd
}

func webhookCmd() *cobra.Command {
	hook := &cobra.Command{Use: "webhook", Short: "Manage event subscribers"}
	hook.AddCommand(webhookAddCmd())
	hook.AddCommand(webhookListCmd())
	hook.AddCommand(webhookRemoveCmd())
	return hook
}

func webhookAddCmd() *cobra.Command {
	var url, secret string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(url) == "" {
				return errors.New("--url is required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				hook := domain.Webhook{
					ID:        uuid.NewString(),
					URL:       url,
					Secret:    secret,
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertWebhook(ctx, hook); err != nil {
					return err
				}
				// New subscribers start at the current tail, not from event 1.
				last, err := r.LatestEventID(ctx)
				if err != nil {
					return err
				}
				if err := r.SetWebhookCursor(ctx, hook.ID, last); err != nil {
					return err
				}
				return printJSON(hook)
			})
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "delivery URL")
	cmd.Flags().StringVar(&secret, "secret", "", "shared secret sent with each delivery")
	return cmd
}

func webhookListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List webhooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				hooks, err := r.ListWebhooks(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(hooks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "URL", "Created"})
				for _, h := range hooks {
					tw.AppendRow(table.Row{h.ID, h.URL, h.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func webhookRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.DeleteWebhook(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("removed", args[0])
				return nil
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := app.ResolveConfig(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg, app.NewStoreFactory(workspace, cfg, conn))
			secret := os.Getenv("SPICELEDGER_JWT_SECRET")
			if secret == "" {
				secret = cfg.Server.AuthSecret
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret},
			})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(cmd.Context(), e)
			if addr == "" {
				addr = cfg.Server.Addr
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Spiceledger API on %s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := app.ResolveConfig(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg, app.NewStoreFactory(workspace, cfg, conn))
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printState(st engine.State) error {
	if viper.GetBool("json") {
		return printJSON(st)
	}
	fmt.Printf("mode: %s\n", st.Mode)
	if st.Mode == engine.ModeHome {
		return nil
	}
	fmt.Printf("round %d, undo depth %d\n", st.Session.Round, st.Undo.Len())
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Seat", "Player", "Leader", "Agents", "Swordmaster", "Revealed", "Turn"})
	for i, p := range st.Session.Players {
		marker := ""
		if i == st.Session.Turn {
			marker = "<-"
		}
		tw.AppendRow(table.Row{p.ID, p.Name, p.Leader, p.Agents, p.Swordmaster, p.Revealed, marker})
	}
	tw.Render()
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
