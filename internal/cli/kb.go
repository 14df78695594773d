package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lewisedginton/memory_engine/internal/knowledgebase"
)

func init() {
	kb := &cobra.Command{
		Use:   "kb",
		Short: "Manage knowledge base entries and categories",
	}

	create := &cobra.Command{
		Use:   "create [content]",
		Short: "Create an entry (content from args or stdin)",
		RunE:  runKBCreate,
	}
	create.Flags().StringP("title", "t", "", "Entry title (required)")
	create.Flags().String("tags", "", "Comma-separated keys")
	create.Flags().String("category", "", "Category id")
	create.Flags().Bool("force", false, "Always include the entry")
	create.Flags().Bool("hidden", false, "Hide the entry from listings that exclude hidden entries")
	_ = create.MarkFlagRequired("title")

	get := &cobra.Command{
		Use:   "get [id or title]",
		Short: "Show one entry",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runKBGet,
	}

	edit := &cobra.Command{
		Use:   "edit [id or title]",
		Short: "Change an entry",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runKBEdit,
	}
	edit.Flags().String("title", "", "New title")
	edit.Flags().String("content", "", "Replace the content")
	edit.Flags().String("append", "", "Append to the content")
	edit.Flags().String("tags", "", "Replace the keys (comma-separated)")

	del := &cobra.Command{
		Use:   "rm [id or title]",
		Short: "Delete an entry",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runKBDelete,
	}

	search := &cobra.Command{
		Use:   "search [query]",
		Short: "Search titles, content and keys",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runKBSearch,
	}
	search.Flags().IntP("limit", "l", knowledgebase.DefaultSearchLimit, "Max results")

	categories := &cobra.Command{
		Use:   "categories",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE:  runKBCategories,
	}

	categoryCreate := &cobra.Command{
		Use:   "category-create [name]",
		Short: "Create a category",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runKBCategoryCreate,
	}
	categoryCreate.Flags().Int("order", 0, "Order index")

	category := &cobra.Command{
		Use:   "category [id]",
		Short: "List the entries of a category",
		Args:  cobra.ExactArgs(1),
		RunE:  runKBCategory,
	}
	category.Flags().Bool("hide-private", false, "Mask private entries")

	kb.AddCommand(create, get, edit, del, search, categories, categoryCreate, category)
	RootCmd.AddCommand(kb)
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func entryText(e *knowledgebase.Entry) string {
	return fmt.Sprintf("[%s] %s\n%s", e.ID, e.DisplayName, e.TextContent)
}

func runKBCreate(cmd *cobra.Command, args []string) error {
	title, _ := cmd.Flags().GetString("title")
	tags, _ := cmd.Flags().GetString("tags")
	category, _ := cmd.Flags().GetString("category")
	force, _ := cmd.Flags().GetBool("force")
	hidden, _ := cmd.Flags().GetBool("hidden")

	content, err := readContent(cmd, args)
	if err != nil {
		return err
	}

	s, closeFn, err := openServer(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	e, err := s.KnowledgeBase().Create(cmd.Context(), knowledgebase.CreateRequest{
		Title:           title,
		Content:         content,
		Tags:            splitTags(tags),
		CategoryID:      category,
		ForceActivation: force,
		Hidden:          hidden,
	})
	if err != nil {
		return err
	}
	return output(cmd.OutOrStdout(), e, "Created "+e.ID)
}

func runKBGet(cmd *cobra.Command, args []string) error {
	s, closeFn, err := openServer(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	e, err := s.KnowledgeBase().Get(cmd.Context(), joinArgs(args))
	if err != nil {
		return err
	}
	return output(cmd.OutOrStdout(), e, entryText(e))
}

func runKBEdit(cmd *cobra.Command, args []string) error {
	req := knowledgebase.EditRequest{}
	req.NewTitle, _ = cmd.Flags().GetString("title")
	req.NewContent, _ = cmd.Flags().GetString("content")
	req.AppendContent, _ = cmd.Flags().GetString("append")
	if cmd.Flags().Changed("tags") {
		tags, _ := cmd.Flags().GetString("tags")
		req.NewTags = splitTags(tags)
		if req.NewTags == nil {
			req.NewTags = []string{}
		}
	}

	s, closeFn, err := openServer(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	e, err := s.KnowledgeBase().Edit(cmd.Context(), joinArgs(args), req)
	if err != nil {
		return err
	}
	return output(cmd.OutOrStdout(), e, entryText(e))
}

func runKBDelete(cmd *cobra.Command, args []string) error {
	s, closeFn, err := openServer(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	ref := joinArgs(args)
	if err := s.KnowledgeBase().Delete(cmd.Context(), ref); err != nil {
		return err
	}
	return output(cmd.OutOrStdout(), map[string]string{"deleted": ref}, "Deleted "+ref)
}

func runKBSearch(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	s, closeFn, err := openServer(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	entries, err := s.KnowledgeBase().Search(cmd.Context(), joinArgs(args), limit)
	if err != nil {
		return err
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] %s\n", e.ID, e.DisplayName)
	}
	return output(cmd.OutOrStdout(), entries, b.String())
}

func runKBCategories(cmd *cobra.Command, _ []string) error {
	s, closeFn, err := openServer(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	cats, err := s.KnowledgeBase().Categories(cmd.Context())
	if err != nil {
		return err
	}
	var b strings.Builder
	for _, c := range cats {
		fmt.Fprintf(&b, "%d. [%s] %s\n", c.OrderIndex, c.ID, c.Name)
	}
	return output(cmd.OutOrStdout(), cats, b.String())
}

func runKBCategoryCreate(cmd *cobra.Command, args []string) error {
	order, _ := cmd.Flags().GetInt("order")
	s, closeFn, err := openServer(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	c, err := s.KnowledgeBase().CreateCategory(cmd.Context(), joinArgs(args), order)
	if err != nil {
		return err
	}
	return output(cmd.OutOrStdout(), c, "Created "+c.ID)
}

func runKBCategory(cmd *cobra.Command, args []string) error {
	hidePrivate, _ := cmd.Flags().GetBool("hide-private")
	s, closeFn, err := openServer(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	entries, err := s.KnowledgeBase().CategoryEntries(cmd.Context(), args[0], hidePrivate)
	if err != nil {
		return err
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s: %s\n", e.Label, e.Text)
	}
	return output(cmd.OutOrStdout(), entries, b.String())
}
