package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/coopco/lunchbot/internal/browser"
	"github.com/coopco/lunchbot/internal/cadence"
	"github.com/coopco/lunchbot/internal/config"
	"github.com/coopco/lunchbot/internal/resolver"
	"github.com/coopco/lunchbot/internal/submitter"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [url]",
		Short: "Check whether ordering is open today",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			entry := cfg.Resolver.EntryURL
			if len(args) == 1 {
				entry = args[0]
			}
			res := newResolver(cfg).CheckAvailability(cmd.Context(), entry)
			printAvailability(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func printAvailability(w io.Writer, res resolver.AvailabilityResult) {
	state := "closed"
	if res.IsOpen {
		state = "open"
	}
	fmt.Fprintf(w, "Ordering: %s\n", state)
	if res.FormURL != "" {
		fmt.Fprintf(w, "Form: %s\n", res.FormURL)
	}
	if res.Detail != "" {
		fmt.Fprintf(w, "Detail: %s\n", res.Detail)
	}
}

// resolveForm returns formURL, or finds today's form from the entry page.
func resolveForm(ctx context.Context, r *resolver.Resolver, cfg *config.Config, formURL string) (string, error) {
	if formURL != "" {
		return formURL, nil
	}
	res := r.CheckAvailability(ctx, cfg.Resolver.EntryURL)
	if !res.IsOpen {
		return "", fmt.Errorf("ordering is closed: %s", res.Detail)
	}
	return res.FormURL, nil
}

func newMenuCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "menu [form-url]",
		Short: "Print today's menu options",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			r := newResolver(cfg)
			var formURL string
			if len(args) == 1 {
				formURL = args[0]
			}
			formURL, err = resolveForm(cmd.Context(), r, cfg, formURL)
			if err != nil {
				return err
			}
			offerings, err := r.ExtractOfferings(cmd.Context(), formURL)
			if err != nil {
				return err
			}
			printOfferings(cmd.OutOrStdout(), offerings)
			return nil
		},
	}
}

func printOfferings(w io.Writer, offerings []resolver.Offering) {
	for i, o := range offerings {
		price := o.Price
		if price == "" {
			price = "N/A"
		}
		fmt.Fprintf(w, "%d. %s - $%s\n", i+1, o.Label, price)
		if o.ImageRef != "" {
			fmt.Fprintf(w, "   image: %s\n", o.ImageRef)
		}
	}
}

func newSubmitCmd(opts *rootOptions) *cobra.Command {
	var (
		menu     int
		quantity string
		formURL  string
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one order through the form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if menu < 1 || menu > len(cfg.Resolver.Labels) {
				return fmt.Errorf("--menu must be between 1 and %d", len(cfg.Resolver.Labels))
			}
			if quantity == "" {
				quantity = cfg.Submitter.Quantity
			}
			if formURL == "" {
				formURL = cfg.Dev.DefaultFormURL
			}
			formURL, err = resolveForm(cmd.Context(), newResolver(cfg), cfg, formURL)
			if err != nil {
				return err
			}

			var b submitter.Browser = browser.New(cfg.BrowserConfig())
			var adjust []func(*submitter.Config)
			if dryRun {
				b = &planBrowser{w: cmd.OutOrStdout(), quantity: quantity}
				adjust = append(adjust, dryRunConfig)
			}
			order := submitter.Order{FormURL: formURL, OfferingIndex: menu - 1, Quantity: quantity}
			if err := newSubmitter(cfg, b, adjust...).Submit(cmd.Context(), order); err != nil {
				var ae *submitter.AutomationError
				if errors.As(err, &ae) && len(ae.Options) > 0 {
					return fmt.Errorf("%w (options seen: %v)", err, ae.Options)
				}
				return err
			}
			if dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), "Dry run complete; nothing was submitted.")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Order submitted: %s x%s\n", cfg.Resolver.Labels[menu-1], quantity)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&menu, "menu", 1, "menu option to order, starting at 1")
	cmd.Flags().StringVar(&quantity, "quantity", "", "quantity to select (default from config)")
	cmd.Flags().StringVar(&formURL, "form", "", "form URL (default: found from the entry page)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the browser steps instead of running them")
	return cmd
}

func newNextCmd(opts *rootOptions) *cobra.Command {
	var (
		from  string
		count int
	)
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Print upcoming reminder times",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			loc, _ := cfg.Location()
			rule, _ := cfg.Rule()
			hour, minute, _ := cfg.Clock()

			start := time.Now().In(loc)
			if from != "" {
				start, err = time.ParseInLocation("2006-01-02", from, loc)
				if err != nil {
					return fmt.Errorf("invalid --from %q, expected YYYY-MM-DD: %w", from, err)
				}
				// Include a reminder on the --from day itself.
				start = start.Add(-time.Nanosecond)
			}
			sched := cadence.ReminderSchedule{Rule: rule, Hour: hour, Minute: minute, Location: loc}
			printUpcoming(cmd.OutOrStdout(), sched, start, count)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start date, YYYY-MM-DD (default now)")
	cmd.Flags().IntVar(&count, "count", 5, "number of reminders to print")
	return cmd
}

func printUpcoming(w io.Writer, sched cadence.ReminderSchedule, start time.Time, count int) {
	t := start
	for i := 0; i < count; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			return
		}
		week := "normal week"
		if sched.Rule.IsSpecial(t) {
			week = sched.Rule.SpecialWeekName()
		}
		fmt.Fprintf(w, "%s  (%s)\n", t.Format("Mon 2006-01-02 15:04 MST"), week)
	}
}
