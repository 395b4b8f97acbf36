package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sakif/campus-client/internal/model"
	"github.com/sakif/campus-client/internal/vote"
)

func (a *app) questionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "questions",
		Aliases: []string{"q"},
		Short:   "Browse, ask, edit and vote on questions",
	}
	cmd.AddCommand(
		a.questionsListCmd(),
		a.questionsShowCmd(),
		a.questionsAskCmd(),
		a.questionsEditCmd(),
		a.questionsDeleteCmd(),
		a.questionsVoteCmd(),
	)
	return cmd
}

func (a *app) questionsListCmd() *cobra.Command {
	var f model.ListFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List questions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view := a.client.Views.NewQuestionList()
			defer view.Close()

			qs, err := view.List(a.ctx(cmd), f)
			if err != nil {
				return fmt.Errorf("listing questions: %s", userMessage(err))
			}
			out := cmd.OutOrStdout()
			if len(qs) == 0 {
				fmt.Fprintln(out, "No questions found")
				return nil
			}
			for _, q := range qs {
				printQuestionLine(out, q)
			}
			printPage(out, view.Page())
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.Search, "search", "s", "", "only questions containing this text")
	cmd.Flags().IntVarP(&f.Page, "page", "p", 0, "zero-based page number")
	cmd.Flags().IntVar(&f.Size, "size", 0, "page size (default from config)")
	cmd.Flags().StringVar(&f.Sort, "sort", "", "latest, oldest or votes")
	return cmd
}

func (a *app) questionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a question with its answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := a.ctx(cmd)

			detail := a.client.Views.NewQuestionDetail()
			defer detail.Close()
			q, err := detail.Load(ctx, id)
			if err != nil {
				return fmt.Errorf("loading question: %s", userMessage(err))
			}

			answers := a.client.Views.NewAnswerList()
			defer answers.Close()
			as, err := answers.Load(ctx, id)
			if err != nil {
				return fmt.Errorf("loading answers: %s", userMessage(err))
			}

			out := cmd.OutOrStdout()
			printQuestion(out, q)
			fmt.Fprintln(out)
			for _, ans := range as {
				printAnswer(out, ans)
			}
			return nil
		},
	}
}

func (a *app) questionsAskCmd() *cobra.Command {
	var nq model.NewQuestion
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Ask a new question",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)
			if err := a.client.Session.RequireAuth(ctx, "/ask"); err != nil {
				return err
			}
			p := newPrompter(cmd)
			var err error
			if nq.Title, err = p.IfEmpty(nq.Title, "Title"); err != nil {
				return err
			}
			if nq.Body, err = p.IfEmpty(nq.Body, "Body"); err != nil {
				return err
			}

			view := a.client.Views.NewQuestionList()
			defer view.Close()
			q, err := view.Create(ctx, nq)
			if err != nil {
				return fmt.Errorf("asking question: %s", userMessage(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Posted question #%d\n", q.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&nq.Title, "title", "t", "", "question title")
	cmd.Flags().StringVarP(&nq.Body, "body", "b", "", "question body")
	return cmd
}

func (a *app) questionsEditCmd() *cobra.Command {
	var title, body string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit your question's title or body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var patch model.QuestionPatch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("body") {
				patch.Body = &body
			}
			if patch.Empty() {
				return errors.New("nothing to change: pass --title and/or --body")
			}

			ctx := a.ctx(cmd)
			detail := a.client.Views.NewQuestionDetail()
			defer detail.Close()
			if _, err := detail.Load(ctx, id); err != nil {
				return fmt.Errorf("loading question: %s", userMessage(err))
			}
			q, err := detail.Edit(ctx, patch)
			if err != nil {
				return fmt.Errorf("editing question: %s", userMessage(err))
			}
			printQuestion(cmd.OutOrStdout(), q)
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	cmd.Flags().StringVarP(&body, "body", "b", "", "new body")
	return cmd
}

func (a *app) questionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete your question and its answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			view := a.client.Views.NewQuestionList()
			defer view.Close()
			if err := view.Delete(a.ctx(cmd), id); err != nil {
				return fmt.Errorf("deleting question: %s", userMessage(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted question #%d\n", id)
			return nil
		},
	}
}

func (a *app) questionsVoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vote <id> up|down",
		Short: "Vote on a question",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			dir, err := model.ParseDirection(args[1])
			if err != nil {
				return err
			}

			ctx := a.ctx(cmd)
			detail := a.client.Views.NewQuestionDetail()
			defer detail.Close()
			if _, err := detail.Load(ctx, id); err != nil {
				return fmt.Errorf("loading question: %s", userMessage(err))
			}
			res, err := detail.Vote(ctx, dir)
			return reportVote(cmd, res, err)
		},
	}
}

func reportVote(cmd *cobra.Command, res vote.Result, err error) error {
	if err != nil {
		return fmt.Errorf("vote not counted: %s", userMessage(err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Votes: %+d\n", res.Total)
	return nil
}
