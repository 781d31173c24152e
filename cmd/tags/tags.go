// Package tags contains the tag browsing commands.
package tags

import (
	"fmt"

	"finagg/cmd/root"

	"github.com/spf13/cobra"
)

// Cmd is the parent command for tag operations.
var Cmd = &cobra.Command{
	Use:   "tags",
	Short: "Browse tags",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tags",
	RunE:  listFunc,
}

func init() {
	Cmd.AddCommand(listCmd)
}

func listFunc(cmd *cobra.Command, args []string) error {
	env, err := root.NewEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	tagList, err := env.Store.ListTags(cmd.Context())
	if err != nil {
		return err
	}

	if len(tagList) == 0 {
		fmt.Println("No tags defined.")
		return nil
	}
	for _, t := range tagList {
		fmt.Println(t.Name)
	}
	return nil
}
