package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/retain/internal/domain"
	"github.com/conorfennell/retain/internal/review"
)

func newReviewCmd() *cobra.Command {
	var lesson, reviewCtx string

	cmd := &cobra.Command{
		Use:   "review CARD GRADE",
		Short: "Record a review of a card",
		Long: `Record a review of a card and print its new schedule.

GRADE is again, hard, good, easy, a rating from 1 to 4, or the two-button
outcomes fail and pass.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			grade, err := domain.ParseGrade(args[1])
			if err != nil {
				return err
			}
			return runApp(cmd, func(a *app) error {
				out, err := a.reviews.RecordReview(cmd.Context(), review.Request{
					CardID:   args[0],
					LessonID: lesson,
					Grade:    grade,
					Context:  domain.ReviewContext(reviewCtx),
				})
				if err != nil {
					return err
				}
				if wantJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), out)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Reviewed %s as %s\n", out.State.CardID, out.Event.Grade)
				printState(w, out.State)
				fmt.Fprintf(w, "Next in:     %s\n", formatInterval(out.Interval))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&lesson, "lesson", "", "lesson the review belongs to (required)")
	cmd.Flags().StringVar(&reviewCtx, "context", "", "where the review happened: inline or quiz")
	cmd.MarkFlagRequired("lesson")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show CARD",
		Short: "Show a card's memory state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, func(a *app) error {
				status, err := a.reviews.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if wantJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), status)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Card:        %s\n", status.State.CardID)
				printState(w, status.State)
				fmt.Fprintf(w, "Recall:      %.1f%%\n", status.Retrievability*100)
				return nil
			})
		},
	}
}

func newPreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview CARD",
		Short: "Show what each grade would do to a card now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, func(a *app) error {
				preview, err := a.reviews.Preview(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if wantJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), preview)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "GRADE\tSTATE\tINTERVAL\tSTABILITY\tDIFFICULTY")
				for _, g := range domain.Grades {
					res := preview[g]
					fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%.2f\n",
						g, res.State.State, formatInterval(res.Interval), res.State.Stability, res.State.Difficulty)
				}
				return tw.Flush()
			})
		},
	}
}

func newDueCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "due",
		Short: "List cards that are due for review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, func(a *app) error {
				states, err := a.reviews.Due(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if wantJSON(cmd) {
					if states == nil {
						states = []domain.MemoryState{}
					}
					return printJSON(cmd.OutOrStdout(), states)
				}
				if len(states) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No cards due.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CARD\tSTATE\tDUE\tLAPSES")
				for _, s := range states {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", s.CardID, s.State, s.Due.Format(time.RFC3339), s.Lapses)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of cards to list")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history CARD",
		Short: "List a card's reviews, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, func(a *app) error {
				events, err := a.reviews.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if wantJSON(cmd) {
					if events == nil {
						events = []domain.ReviewEvent{}
					}
					return printJSON(cmd.OutOrStdout(), events)
				}
				if len(events) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No reviews.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "REVIEWED\tGRADE\tSTATE\tELAPSED\tSCHEDULED\tLESSON")
				for _, e := range events {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
						e.ReviewedAt.Format(time.RFC3339), e.Grade, e.State, e.ElapsedDays, e.ScheduledDays, e.LessonID)
				}
				return tw.Flush()
			})
		},
	}
}

func printState(w io.Writer, s domain.MemoryState) {
	fmt.Fprintf(w, "State:       %s\n", s.State)
	fmt.Fprintf(w, "Stability:   %.2f days\n", s.Stability)
	fmt.Fprintf(w, "Difficulty:  %.2f\n", s.Difficulty)
	fmt.Fprintf(w, "Reps:        %d (lapses %d)\n", s.Reps, s.Lapses)
	fmt.Fprintf(w, "Due:         %s\n", s.Due.Format(time.RFC3339))
}

// formatInterval prints sub-day intervals in minutes or hours and the rest
// in days.
func formatInterval(d time.Duration) string {
	switch {
	case d < time.Hour:
		return strconv.Itoa(int(d/time.Minute)) + "m"
	case d < 24*time.Hour:
		return strconv.FormatFloat(d.Hours(), 'f', -1, 64) + "h"
	default:
		return strconv.Itoa(int(d/(24*time.Hour))) + "d"
	}
}
