package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"portalics/internal/browser"
	"portalics/internal/config"
	"portalics/internal/ics"
	appLog "portalics/internal/log"
	"portalics/internal/model"
	"portalics/internal/refresh"
	"portalics/internal/upstream"
	"portalics/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	dump       string
	login      bool
}

func main() {
	appLog.Info("portalics starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"base_url", conf.Portal.BaseURL,
		"weeks_before", conf.WeeksBefore,
		"weeks_after", conf.WeeksAfter,
		"refresh_minutes", conf.RefreshMinutes,
		"refresh_cron", conf.RefreshCron,
		"cookies_path", conf.Portal.CookiesPath,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.login {
		err := browser.CaptureSessionCookies(ctx, browser.LoginOptions{
			PortalURL:   conf.Portal.BaseURL,
			CookiesPath: conf.Portal.CookiesPath,
		})
		if err != nil {
			appLog.Error("interactive login failed", err)
			os.Exit(1)
		}
		return
	}

	cookies, err := upstream.LoadCookieStore(conf.Portal.CookiesPath)
	if err != nil {
		appLog.Error("failed to load cookie file", err, "path", conf.Portal.CookiesPath)
		os.Exit(1)
	}
	go func() {
		if err := cookies.Watch(ctx.Done()); err != nil {
			appLog.Error("cookie watcher stopped", err, "path", conf.Portal.CookiesPath)
		}
	}()

	loc := conf.Location()
	client := upstream.NewClient(conf.Portal, cookies)
	refresher := refresh.New(client,
		func(events []model.Event) ([]byte, error) {
			return ics.Build(events, loc)
		},
		refresh.Options{
			Location:    loc,
			WeeksBefore: conf.WeeksBefore,
			WeeksAfter:  conf.WeeksAfter,
			TTL:         conf.TTL(),
		},
	)

	if flags.once {
		if err := runOnce(ctx, refresher, flags.dump); err != nil {
			appLog.Error("one-shot refresh failed", err)
			os.Exit(1)
		}
		return
	}

	// Optional cron pre-warm. Refresh stays request-driven when unset;
	// with a schedule, readers rarely pay refresh latency themselves.
	if conf.RefreshCron != "" {
		c := cron.New()
		_, err := c.AddFunc(conf.RefreshCron, func() {
			if _, err := refresher.Calendar(ctx); err != nil {
				appLog.Error("scheduled refresh failed", err)
			}
		})
		if err != nil {
			appLog.Error("invalid refresh cron expression", err, "cron", conf.RefreshCron)
			os.Exit(1)
		}
		c.Start()
		defer c.Stop()
		appLog.Info("cache pre-warm scheduled", "cron", conf.RefreshCron)
	}

	srv := web.NewServer(conf, refresher)
	if err := srv.Run(ctx); err != nil {
		appLog.Error("HTTP server stopped", err)
		os.Exit(1)
	}

	appLog.Info("portalics exiting")
}

// runOnce performs a single refresh and writes the resulting ICS either to
// stdout or, when dump is set, to a file.
func runOnce(ctx context.Context, refresher *refresh.Refresher, dump string) error {
	body, err := refresher.Calendar(ctx)
	if err != nil {
		return err
	}

	st := refresher.Status()
	appLog.Info("one-shot refresh complete", "events", st.EventCount, "bytes", len(body))

	if dump != "" {
		return os.WriteFile(dump, body, 0o644)
	}
	_, err = fmt.Fprint(os.Stdout, string(body))
	return err
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/portalics/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one refresh cycle, print the ICS and exit")
	flag.StringVar(&cfg.dump, "dump", "", "With -once, write the ICS to this file instead of stdout")
	flag.BoolVar(&cfg.login, "login", false, "Open a browser to log in to the portal and capture session cookies")

	flag.Parse()

	return cfg
}
