package main

import (
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/formextractionflow/internal/repository"
	"github.com/Lllllllleong/formextractionflow/internal/services"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the extraction tables if they do not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := services.OpenContentRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		if err := repository.Migrate(cmd.Context(), db); err != nil {
			return err
		}
		cmd.Println("Schema is up to date.")
		return nil
	},
}

var recordsAttachmentID string

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Print the field records stored for an attachment",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, repo, err := services.OpenContentRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		records, err := repo.ListFieldRecords(cmd.Context(), recordsAttachmentID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), records)
	},
}

func init() {
	recordsCmd.Flags().StringVarP(&recordsAttachmentID, "attachment-id", "a", "", "process_attachment_id to read (required)")
	_ = recordsCmd.MarkFlagRequired("attachment-id")
}
