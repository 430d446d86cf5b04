package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/rumbo-ai/rumbo/internal/config"
	"github.com/rumbo-ai/rumbo/internal/store/pg"
	"github.com/rumbo-ai/rumbo/internal/store/redis"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and collaborator health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("rumbo doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Providers:")
	check("OpenAI key (RUMBO_OPENAI_API_KEY)", cfg.Providers.OpenAI.APIKey != "")
	check("Anthropic key (RUMBO_ANTHROPIC_API_KEY)", cfg.Providers.Anthropic.APIKey != "")

	fmt.Println()
	fmt.Println("  Postgres:")
	if cfg.Database.PostgresDSN == "" {
		fmt.Println("    RUMBO_POSTGRES_DSN not set")
	} else if db, err := pg.OpenDB(cfg.Database.PostgresDSN); err != nil {
		fmt.Printf("    CONNECT FAILED (%s)\n", err)
	} else {
		fmt.Println("    OK")
		db.Close()
	}

	fmt.Println()
	fmt.Println("  Redis:")
	if cfg.Redis.Addr == "" {
		fmt.Println("    not configured (cache disabled)")
	} else if rc, err := redis.New(redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}); err != nil {
		fmt.Printf("    CONNECT FAILED (%s)\n", err)
	} else {
		fmt.Println("    OK")
		rc.Close()
	}

	fmt.Println()
	fmt.Println("  Places service:")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", cfg.Places.BaseURL+"/places/search?q=ping", nil)
	if resp, err := http.DefaultClient.Do(req); err != nil {
		fmt.Printf("    UNREACHABLE (%s)\n", err)
	} else {
		resp.Body.Close()
		fmt.Printf("    OK (http %d)\n", resp.StatusCode)
	}
}

func check(name string, ok bool) {
	status := "missing"
	if ok {
		status = "OK"
	}
	fmt.Printf("    %-42s %s\n", name+":", status)
}
