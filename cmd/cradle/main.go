package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AliceSyndrome285/CradleAI/internal/profile"
	"github.com/AliceSyndrome285/CradleAI/server"
	"github.com/AliceSyndrome285/CradleAI/store"
	"github.com/AliceSyndrome285/CradleAI/store/db"
)

// version is set at build time.
var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "cradle",
	Short: `Character chat backend: resolves client message ids and edits, deletes or regenerates messages.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the message API over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the schema and the demo conversation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		instanceProfile, err := loadProfile()
		if err != nil {
			return err
		}
		instanceProfile.Mode = "demo"
		s, err := openStore(cmd.Context(), instanceProfile)
		if err != nil {
			return err
		}
		defer s.Close()
		fmt.Fprintln(cmd.OutOrStdout(), "demo conversation ready: 1700000000000")
		return nil
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("ai-provider", "", "LLM provider: openai, deepseek or ollama")
	rootCmd.PersistentFlags().String("ai-api-key", "", "LLM API key")
	rootCmd.PersistentFlags().String("ai-base-url", "", "LLM base URL")
	rootCmd.PersistentFlags().String("ai-model", "", "LLM model")
	rootCmd.PersistentFlags().String("user-nickname", "", "nickname of the user in regenerate prompts")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "ai-provider", "ai-api-key", "ai-base-url", "ai-model", "user-nickname"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("cradle")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, seedCmd, newHistoryCmd(), newResolveCmd(), newEditCmd(), newDeleteCmd(), newRegenerateCmd(), newSelftestCmd())
}

// loadProfile builds the profile from flags and CRADLE_* variables.
func loadProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:         viper.GetString("mode"),
		Addr:         viper.GetString("addr"),
		Port:         viper.GetInt("port"),
		Data:         viper.GetString("data"),
		Driver:       viper.GetString("driver"),
		DSN:          viper.GetString("dsn"),
		Version:      version,
		AIProvider:   viper.GetString("ai-provider"),
		AIAPIKey:     viper.GetString("ai-api-key"),
		AIBaseURL:    viper.GetString("ai-base-url"),
		AIModel:      viper.GetString("ai-model"),
		UserNickname: viper.GetString("user-nickname"),
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		return nil, err
	}
	return instanceProfile, nil
}

func openStore(ctx context.Context, instanceProfile *profile.Profile) (*store.Store, error) {
	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return nil, err
	}
	storeInstance := store.New(dbDriver, instanceProfile)
	if err := storeInstance.Migrate(ctx); err != nil {
		_ = storeInstance.Close()
		return nil, err
	}
	return storeInstance, nil
}

func serve(ctx context.Context) error {
	instanceProfile, err := loadProfile()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	storeInstance, err := openStore(ctx, instanceProfile)
	if err != nil {
		return err
	}
	s, err := server.NewServer(ctx, instanceProfile, storeInstance)
	if err != nil {
		_ = storeInstance.Close()
		return err
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		s.Shutdown(ctx)
		cancel()
	}()

	printGreetings(instanceProfile)
	if err := s.Start(ctx); err != nil {
		_ = storeInstance.Close()
		return err
	}
	<-ctx.Done()
	return nil
}

func printGreetings(p *profile.Profile) {
	slog.Info("cradle started",
		"version", p.Version,
		"mode", p.Mode,
		"driver", p.Driver,
		"data", p.Data,
		"dsn", p.DSN,
		"port", p.Port,
		"credentials", p.HasCredentials())
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "cradle: %v\n", err)
		os.Exit(1)
	}
}
