// Command ratelimitctl is a thin CLI around package ratelimit: it loads a
// YAML ruleset and a Redis address, builds a Limiter, and runs a single
// requested operation against it. It is deliberately not a network
// service: no HTTP handler wraps the limiter itself, so the library never
// has to decide how to expose itself over a wire. Config loading,
// logging, and metrics all live here instead of in the library.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	ratelimit "slidewin/ratelimit"
	"slidewin/ratelimit/metrics"
	"slidewin/ratelimit/rules"
	storeredis "slidewin/ratelimit/store/redis"
)

func buildLimiter(cfg *ConfigFile) (*ratelimit.Limiter, error) {
	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	st := storeredis.New(client)

	defs := make([]rules.RuleDef, len(cfg.Rules))
	for i, r := range cfg.Rules {
		defs[i] = rules.RuleDef{Interval: r.Interval, Limit: r.Limit, Precision: r.Precision}
	}

	var prefix *string
	if cfg.Prefix != "" {
		prefix = ratelimit.Prefix(cfg.Prefix)
	}

	return ratelimit.New(ratelimit.Config{
		Store:            st,
		Rules:            defs,
		Prefix:           prefix,
		ClientPrefixMode: cfg.ClientPrefixMode,
	})
}

// runAction executes one CLI-level operation and prints its result.
func runAction(ctx context.Context, l *ratelimit.Limiter, collector *metrics.Collector, action string, weight int64, keys []string) error {
	switch action {
	case "check":
		denied, err := l.Check(ctx, keys...)
		if collector != nil {
			collector.Observe("check", denied, err)
		}
		if err != nil {
			return err
		}
		fmt.Printf("check: denied=%v\n", denied)
	case "incr":
		denied, err := l.Incr(ctx, weight, keys...)
		if collector != nil {
			collector.Observe("incr", denied, err)
		}
		if err != nil {
			return err
		}
		fmt.Printf("incr: denied=%v\n", denied)
	case "violated":
		vr, err := l.ViolatedRules(ctx, keys...)
		if err != nil {
			return err
		}
		for _, v := range vr {
			fmt.Printf("violated: interval=%ds limit=%d\n", v.Interval, v.Limit)
		}
	case "limited-keys":
		lk, err := l.LimitedKeys(ctx, keys...)
		if err != nil {
			return err
		}
		fmt.Println(strings.Join(lk, ","))
	case "keys":
		ks, err := l.Keys(ctx)
		if err != nil {
			return err
		}
		fmt.Println(strings.Join(ks, ","))
	case "whitelist":
		return l.Whitelist(ctx, keys...)
	case "unwhitelist":
		return l.Unwhitelist(ctx, keys...)
	case "blacklist":
		return l.Blacklist(ctx, keys...)
	case "unblacklist":
		return l.Unblacklist(ctx, keys...)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	return nil
}

func main() {
	cfgPath := flag.String("config", "", "path to YAML config file")
	action := flag.String("action", "check", "check|incr|violated|limited-keys|keys|whitelist|unwhitelist|blacklist|unblacklist")
	keysFlag := flag.String("keys", "", "comma-separated identifiers")
	weight := flag.Int64("weight", 1, "weight for the incr action")
	watch := flag.Bool("watch", false, "keep running, reading one action per stdin line (/metrics is served whenever metrics_listen is set)")
	flag.Parse()

	if *cfgPath == "" {
		log.Fatalf("-config is required")
	}
	cfg, err := LoadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	limiter, err := buildLimiter(cfg)
	if err != nil {
		log.Fatalf("build limiter: %v", err)
	}

	var collector *metrics.Collector
	if cfg.MetricsListen != "" {
		collector = metrics.NewCollector(prometheus.DefaultRegisterer)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("metrics listening on %s", cfg.MetricsListen)
			if err := http.ListenAndServe(cfg.MetricsListen, mux); err != nil {
				log.Printf("metrics server error: %v", err)
			}
		}()
	}

	ctx := context.Background()

	if !*watch {
		keys := splitKeys(*keysFlag)
		if err := runAction(ctx, limiter, collector, *action, *weight, keys); err != nil {
			log.Fatalf("%s: %v", *action, err)
		}
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			log.Printf("skipping malformed line: %q", scanner.Text())
			continue
		}
		w, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			w = 1
		}
		if err := runAction(ctx, limiter, collector, fields[0], w, fields[2:]); err != nil {
			log.Printf("%s: %v", fields[0], err)
		}
	}
}

func splitKeys(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
