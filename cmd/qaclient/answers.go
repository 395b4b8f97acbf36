package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sakif/campus-client/internal/cache"
	"github.com/sakif/campus-client/internal/model"
)

func (a *app) answersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "answers",
		Aliases: []string{"a"},
		Short:   "Post, edit, delete and vote on answers",
	}
	cmd.AddCommand(
		a.answersPostCmd(),
		a.answersEditCmd(),
		a.answersDeleteCmd(),
		a.answersVoteCmd(),
	)
	return cmd
}

// loadAnswers opens the answer view of a question. The caller closes it.
func (a *app) loadAnswers(cmd *cobra.Command, questionArg string) (*cache.AnswerList, error) {
	qid, err := parseID(questionArg)
	if err != nil {
		return nil, err
	}
	view := a.client.Views.NewAnswerList()
	if _, err := view.Load(a.ctx(cmd), qid); err != nil {
		view.Close()
		return nil, fmt.Errorf("loading answers: %s", userMessage(err))
	}
	return view, nil
}

func (a *app) answersPostCmd() *cobra.Command {
	var body string
	cmd := &cobra.Command{
		Use:   "post <question-id>",
		Short: "Answer a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := a.loadAnswers(cmd, args[0])
			if err != nil {
				return err
			}
			defer view.Close()

			if body, err = newPrompter(cmd).IfEmpty(body, "Answer"); err != nil {
				return err
			}
			ans, err := view.Create(a.ctx(cmd), body)
			if err != nil {
				return fmt.Errorf("posting answer: %s", userMessage(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Posted answer #%d\n", ans.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&body, "body", "b", "", "answer text")
	return cmd
}

func (a *app) answersEditCmd() *cobra.Command {
	var body string
	cmd := &cobra.Command{
		Use:   "edit <question-id> <answer-id>",
		Short: "Edit your answer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			aid, err := parseID(args[1])
			if err != nil {
				return err
			}
			view, err := a.loadAnswers(cmd, args[0])
			if err != nil {
				return err
			}
			defer view.Close()

			if body, err = newPrompter(cmd).IfEmpty(body, "Answer"); err != nil {
				return err
			}
			ans, err := view.Edit(a.ctx(cmd), aid, body)
			if err != nil {
				return fmt.Errorf("editing answer: %s", userMessage(err))
			}
			printAnswer(cmd.OutOrStdout(), ans)
			return nil
		},
	}
	cmd.Flags().StringVarP(&body, "body", "b", "", "new answer text")
	return cmd
}

func (a *app) answersDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <question-id> <answer-id>",
		Short: "Delete your answer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			aid, err := parseID(args[1])
			if err != nil {
				return err
			}
			view, err := a.loadAnswers(cmd, args[0])
			if err != nil {
				return err
			}
			defer view.Close()

			if err := view.Delete(a.ctx(cmd), aid); err != nil {
				return fmt.Errorf("deleting answer: %s", userMessage(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted answer #%d\n", aid)
			return nil
		},
	}
}

func (a *app) answersVoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vote <question-id> <answer-id> up|down",
		Short: "Vote on an answer",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			aid, err := parseID(args[1])
			if err != nil {
				return err
			}
			dir, err := model.ParseDirection(args[2])
			if err != nil {
				return err
			}
			view, err := a.loadAnswers(cmd, args[0])
			if err != nil {
				return err
			}
			defer view.Close()

			res, err := view.Vote(a.ctx(cmd), aid, dir)
			return reportVote(cmd, res, err)
		},
	}
}
