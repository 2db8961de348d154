// Command cachectl inspects and maintains the AI cache.
//
//	cachectl [-config file] size|stats|keys|clear-expired|invalidate [-prefix p]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yungbote/learnmate-backend/internal/ai/config"
	"github.com/yungbote/learnmate-backend/internal/data/cachestore"
	"github.com/yungbote/learnmate-backend/internal/platform/envutil"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

func main() {
	var (
		configFile string
		prefix     string
		timeout    time.Duration
	)
	flag.StringVar(&configFile, "config", "", "AI config file (defaults to AI_CONFIG_FILE)")
	flag.StringVar(&prefix, "prefix", "", "logical key prefix for keys / invalidate")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: cachectl [flags] size|stats|keys|clear-expired|invalidate\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	_ = godotenv.Load()

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Printf("load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	rdb, err := cachestore.NewRedisClient(ctx, envutil.String("REDIS_ADDR", ""), envutil.String("REDIS_PASSWORD", ""), envutil.Int("REDIS_DB", 0))
	if err != nil {
		fmt.Printf("connect redis: %v\n", err)
		os.Exit(1)
	}
	store, err := cachestore.NewRedis(log, rdb, cfg.Cache, nil)
	if err != nil {
		_ = rdb.Close()
		fmt.Printf("init cache store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := run(ctx, store, flag.Arg(0), prefix); err != nil {
		fmt.Printf("%s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, store cachestore.Store, cmd, prefix string) error {
	switch strings.ToLower(cmd) {
	case "size":
		n, err := store.Size(ctx)
		if err != nil {
			return err
		}
		fmt.Println(n)
	case "stats":
		st, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	case "keys":
		keys, err := store.Keys(ctx, prefix)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Println(k)
		}
	case "clear-expired":
		n, err := store.ClearExpired(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("updated %d keys\n", n)
	case "invalidate":
		if prefix == "" {
			return fmt.Errorf("-prefix is required")
		}
		n, err := store.InvalidatePrefix(ctx, prefix)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d keys\n", n)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}
