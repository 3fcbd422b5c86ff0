package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/bryanchriswhite/refviewer/internal/session"
	"github.com/spf13/cobra"
)

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "Manage reference folders",
	Long:  `Add, remove and list the folders images are collected from.`,
}

var foldersAddCmd = &cobra.Command{
	Use:   "add PATH...",
	Short: "Add reference folders",
	Example: `  # Add a folder
  refviewer folders add ~/refs/hands

  # Add several folders
  refviewer folders add ~/refs/hands ~/refs/feet`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFoldersAdd,
}

var foldersRemoveCmd = &cobra.Command{
	Use:     "remove PATH...",
	Aliases: []string{"rm"},
	Short:   "Remove reference folders",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runFoldersRemove,
}

var foldersListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List reference folders",
	RunE:    runFoldersList,
}

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List the images of the session",
	Long:  `List every image in viewing order. The current image is marked with *.`,
	RunE:  runImages,
}

var (
	foldersFormat string
	imagesFormat  string
)

func init() {
	rootCmd.AddCommand(foldersCmd)
	foldersCmd.AddCommand(foldersAddCmd)
	foldersCmd.AddCommand(foldersRemoveCmd)
	foldersCmd.AddCommand(foldersListCmd)
	rootCmd.AddCommand(imagesCmd)

	foldersListCmd.Flags().StringVarP(&foldersFormat, "format", "f", "text", "output format (text or json)")
	imagesCmd.Flags().StringVarP(&imagesFormat, "format", "f", "text", "output format (text or json)")
}

func runFoldersAdd(cmd *cobra.Command, args []string) error {
	cmds := make([]session.Command, 0, len(args))
	for _, path := range args {
		cmds = append(cmds, session.AddFolder{Path: path})
	}
	ctrl, err := apply(cmds...)
	if err != nil {
		return err
	}
	st := ctrl.Status()
	fmt.Fprintf(cmd.OutOrStdout(), "%d folders, %d images\n", len(st.Folders), st.ImageCount)
	return nil
}

func runFoldersRemove(cmd *cobra.Command, args []string) error {
	cmds := make([]session.Command, 0, len(args))
	for _, path := range args {
		cmds = append(cmds, session.RemoveFolder{Path: path})
	}
	ctrl, err := apply(cmds...)
	if err != nil {
		return err
	}
	st := ctrl.Status()
	fmt.Fprintf(cmd.OutOrStdout(), "%d folders, %d images\n", len(st.Folders), st.ImageCount)
	return nil
}

func runFoldersList(cmd *cobra.Command, args []string) error {
	ctrl, err := openSession()
	if err != nil {
		return err
	}
	folders := ctrl.Status().Folders

	if foldersFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), folders)
	}
	if len(folders) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No folders. Add one with: refviewer folders add PATH")
		return nil
	}
	for _, folder := range folders {
		fmt.Fprintln(cmd.OutOrStdout(), folder)
	}
	return nil
}

func runImages(cmd *cobra.Command, args []string) error {
	ctrl, err := openSession()
	if err != nil {
		return err
	}
	images := ctrl.Images()
	index := ctrl.Status().Index

	if imagesFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
			"images": images,
			"index":  index,
		})
	}
	for i, path := range images {
		marker := " "
		if i == index {
			marker = "*"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, path)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
