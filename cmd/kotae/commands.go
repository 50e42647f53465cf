package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var (
		documentID string
		interview  bool
		output     string
	)
	cmd := &cobra.Command{
		Use:   "chat [flags] <message...>",
		Short: "Ask a question",
		Long: `Ask a question. The message is all arguments joined by spaces, so quoting is optional.

Examples:
  kotae chat what languages do you use
  kotae chat --interview "How did the interview go?"
  kotae chat --document 64ec88ca00b268e5 --output json "Summarize this project"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			message := joinArgs(args)
			if message == "" {
				return errors.New("message cannot be empty")
			}
			resp, err := newAPIClient(serverURL).Chat(cmd.Context(), models.ChatRequest{
				Message:       message,
				DocumentID:    documentID,
				InterviewMode: interview,
			})
			if err != nil {
				return err
			}
			return cli.WriteAnswer(cmd.OutOrStdout(), resp, format)
		},
	}
	cmd.Flags().StringVar(&documentID, "document", "", "restrict retrieval to one document ID")
	cmd.Flags().BoolVar(&interview, "interview", false, "retrieve only from the interview document")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func newUploadCmd() *cobra.Command {
	var (
		interview bool
		output    string
	)
	cmd := &cobra.Command{
		Use:   "upload [flags] <file|glob>...",
		Short: "Upload documents to the server",
		Long: `Upload documents. Arguments may be files or doublestar globs such as "notes/**/*.md".

Only one document can be the interview document; uploading a new one with --interview
replaces the flag on the previous one.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			files, err := expandUploadArgs(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return errors.New("no files matched")
			}
			if interview && len(files) > 1 {
				return errors.New("--interview takes exactly one file")
			}

			client := newAPIClient(serverURL)
			var bar *progressbar.ProgressBar
			if format == cli.OutputText && len(files) > 1 {
				bar = progressbar.NewOptions(len(files),
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowCount(),
					progressbar.OptionSetDescription("Uploading"),
					progressbar.OptionClearOnFinish(),
				)
			}

			var results []uploadOutcome
			failed := 0
			for _, path := range files {
				res, err := uploadFile(cmd, client, path, interview)
				results = append(results, uploadOutcome{path: path, result: res, err: err})
				if err != nil {
					failed++
				}
				if bar != nil {
					_ = bar.Add(1)
				}
			}
			if bar != nil {
				_ = bar.Finish()
			}

			out := cmd.OutOrStdout()
			for _, r := range results {
				if r.err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", r.path, r.err)
					continue
				}
				if err := cli.WriteUploadResult(out, r.path, r.result, format); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", failed, len(files))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&interview, "interview", false, "mark the document as the interview document")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

type uploadOutcome struct {
	path   string
	result *models.UploadResult
	err    error
}

func uploadFile(cmd *cobra.Command, client *apiClient, path string, interview bool) (*models.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return client.Upload(cmd.Context(), filepath.Base(path), f, interview)
}

// expandUploadArgs expands glob arguments and de-duplicates the resulting paths, keeping order.
// Arguments without glob characters must name existing regular files.
func expandUploadArgs(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[{") {
			info, err := os.Stat(arg)
			if err != nil {
				return nil, err
			}
			if info.IsDir() {
				return nil, fmt.Errorf("%s is a directory (use a glob such as %s)", arg, filepath.Join(arg, "**", "*"))
			}
			add(arg)
			continue
		}
		matches, err := doublestar.FilepathGlob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", arg, err)
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
				add(m)
			}
		}
	}
	return files, nil
}

func newDocumentsCmd() *cobra.Command {
	var (
		page   int
		limit  int
		output string
	)
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List uploaded documents, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			res, err := newAPIClient(serverURL).Documents(cmd.Context(), page, limit)
			if err != nil {
				return err
			}
			return cli.WriteDocuments(cmd.OutOrStdout(), res, format)
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number (1-based)")
	cmd.Flags().IntVar(&limit, "limit", 10, "documents per page (max 100)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document and its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newAPIClient(serverURL).Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (ID: %s)\n", res.Message, args[0])
			return nil
		},
	}
}

func newClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every document and vector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear all data without --yes")
			}
			res, err := newAPIClient(serverURL).DeleteAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion of all data")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show document, chunk and vector counts and key settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			status, err := newAPIClient(serverURL).Status(cmd.Context())
			if err != nil {
				return err
			}
			return cli.WriteStatus(cmd.OutOrStdout(), status, format)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

// joinArgs joins positional args with spaces so multi-word messages work with or without quotes.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
