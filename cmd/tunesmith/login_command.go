package main

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tunesmith/internal/browser"
	"tunesmith/internal/config"
	"tunesmith/internal/distribution"
	"tunesmith/internal/notifications"
	"tunesmith/internal/retry"
	"tunesmith/internal/services"
)

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var slot int

	cmd := &cobra.Command{
		Use:       "login <generator|distributor>",
		Short:     "Open a visible browser to sign in and keep the session in the profile",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{browser.SiteGenerator, browser.SiteDistributor},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.baseLogger(cmd)
			if err != nil {
				return err
			}
			site := args[0]
			var profile, target string
			switch site {
			case browser.SiteGenerator:
				if slot < 1 {
					return fmt.Errorf("--slot must be 1 or more")
				}
				profile, target = generatorProfile(slot-1), cfg.Generator.HomeURL
			case browser.SiteDistributor:
				profile, target = browser.SiteDistributor, cfg.Distributor.MyMusicURL
			default:
				return fmt.Errorf("unknown site %q (want %s or %s)", site, browser.SiteGenerator, browser.SiteDistributor)
			}

			unlock, err := ctx.acquireRunLock()
			if err != nil {
				return err
			}
			defer unlock()

			runCtx := runContext(cmd)
			reg, err := ctx.registry(runCtx, logger)
			if err != nil {
				return err
			}
			session, err := openBrowser(runCtx, sessionOptions(cfg, site, profile, false, reg, logger))
			if err != nil {
				return err
			}
			defer session.Close()

			if site == browser.SiteDistributor {
				pipeline := distribution.New(session, retry.FromConfig(cfg.Retry, logger), distribution.SettingsFromConfig(cfg),
					distribution.WithLogger(logger),
					distribution.WithChallengeHandler(challengeHandler(runCtx, cmd.ErrOrStderr(), notifications.NewService(cfg), logger)),
				)
				if err := pipeline.EnsureLogin(runCtx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in to %s; profile %s\n", site, cfg.ProfileDir(profile))
				return nil
			}

			if err := session.Navigate(runCtx, target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Sign in to %s in the browser window, then press Enter here\n", site)
			if err := waitForEnter(runCtx, cmd, config.Seconds(cfg.Timeouts.LoginWait)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session saved in %s\n", cfg.ProfileDir(profile))
			return nil
		},
	}
	cmd.Flags().IntVar(&slot, "slot", 1, "Generator worker profile to sign in (1 to workflow.workers)")
	return cmd
}

func waitForEnter(ctx context.Context, cmd *cobra.Command, limit time.Duration) error {
	pressed := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		pressed <- err
	}()
	timer := time.NewTimer(limit)
	defer timer.Stop()
	select {
	case <-pressed:
		return nil
	case <-timer.C:
		return services.Wrap(services.ErrSessionExpired, "login", "wait", fmt.Sprintf("no confirmation within %s", limit), nil)
	case <-ctx.Done():
		return ctx.Err()
	}
}
