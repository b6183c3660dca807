package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportOutput string

var conversationCmd = &cobra.Command{
	Use:     "conversation",
	Aliases: []string{"conv"},
	Short:   "Inspect stored conversations",
	Long: `Conversations are created with 'hllm query --conversation new' and persist in
the cache directory until their TTL lapses without activity.`,
}

var conversationShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := a.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}()

		messages, err := a.conversations.History(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, m := range messages {
			fmt.Fprintf(out, "[%s] %s\n%s\n\n", m.Timestamp.Format("2006-01-02 15:04:05"), m.Role, m.Content)
		}
		return nil
	},
}

var conversationExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a conversation as a plain-text transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := a.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}()

		transcript, err := a.conversations.Export(args[0])
		if err != nil {
			return err
		}
		if exportOutput == "" {
			_, err = fmt.Fprint(cmd.OutOrStdout(), transcript)
			return err
		}
		if err := os.WriteFile(exportOutput, []byte(transcript), 0644); err != nil {
			return fmt.Errorf("write transcript: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Transcript written to %s\n", exportOutput)
		return nil
	},
}

var conversationDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := a.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}()

		if err := a.conversations.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted conversation %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(conversationCmd)
	conversationCmd.AddCommand(conversationShowCmd)
	conversationCmd.AddCommand(conversationExportCmd)
	conversationCmd.AddCommand(conversationDeleteCmd)
	conversationExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write transcript to file")
}
