package main

import (
	"encoding/json"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/brand-cli/internal/extract"
	"github.com/sells-group/brand-cli/internal/model"
	"github.com/sells-group/brand-cli/internal/profile"
	"github.com/sells-group/brand-cli/internal/store"
)

var profileCmd = &cobra.Command{
	Use:     "profile",
	Aliases: []string{"p"},
	Short:   "Create, inspect and edit brand profiles",
}

var profileCreateCmd = &cobra.Command{
	Use:   "create <brand-id>",
	Short: "Extract a new profile from the brand's website",
	Long: `Crawls --url, extracts a brand document and stores it as a new profile.

With --seed the document is read from a JSON file instead of being extracted,
for sites that cannot be crawled.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		name, _ := f.GetString("name")
		url, _ := f.GetString("url")
		owner, _ := f.GetString("owner")
		seedPath, _ := f.GetString("seed")

		req := profile.CreateRequest{BrandID: args[0], OwnerID: owner, Name: name, URL: url}
		if err := validator.New().Struct(req); err != nil {
			return eris.Wrap(err, "profile create: invalid arguments")
		}

		mode := "extract"
		var override extract.Extractor
		if seedPath != "" {
			doc, err := readDocument(cmd.InOrStdin(), seedPath)
			if err != nil {
				return err
			}
			mode = "store"
			override = &extract.SeedExtractor{Document: doc}
		}

		env, err := initEnv(cmd.Context(), mode, override)
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Service.CreateFromExtraction(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), outputFormat, p)
	},
}

var profileGetCmd = &cobra.Command{
	Use:   "get <brand-id>",
	Short: "Show a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "store", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Service.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), outputFormat, p)
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		owner, _ := f.GetString("owner")
		status, _ := f.GetString("status")
		limit, _ := f.GetInt("limit")
		offset, _ := f.GetInt("offset")

		env, err := initEnv(cmd.Context(), "store", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		profiles, err := env.Service.List(cmd.Context(), store.ListFilter{
			OwnerID: owner,
			Status:  model.ProfileStatus(status),
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), outputFormat, profiles)
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <brand-id>",
	Short: "Delete a profile and its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "store", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Service.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), outputFormat, map[string]string{"deleted": args[0]})
	},
}

var profileRecrawlCmd = &cobra.Command{
	Use:   "recrawl <brand-id>",
	Short: "Re-extract a profile and record what changed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, _ := cmd.Flags().GetString("actor")

		env, err := initEnv(cmd.Context(), "extract", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		p, changes, err := env.Service.ReCrawl(cmd.Context(), args[0], actor)
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), outputFormat, map[string]any{
			"profile": p,
			"changes": changes,
		})
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <brand-id> <path> <json-value>",
	Short: "Edit one field",
	Long: `Sets the field at path to a JSON value. Plain strings may be given unquoted.

Examples:
  profile set acme identity.tagline '"Built to last"' --editor u1
  profile set acme products.0 "Anvil Pro" --editor u1`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		editor, _ := cmd.Flags().GetString("editor")
		sourceURL, _ := cmd.Flags().GetString("source-url")

		env, err := initEnv(cmd.Context(), "store", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Service.UpdateField(cmd.Context(), args[0], profile.FieldUpdate{
			Path:      args[1],
			Value:     parseValue(args[2]),
			SourceURL: sourceURL,
		}, editor)
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), outputFormat, p)
	},
}

var profileApproveCmd = &cobra.Command{
	Use:   "approve <brand-id> <path>",
	Short: "Mark a field as reviewed by a person",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		editor, _ := cmd.Flags().GetString("editor")

		env, err := initEnv(cmd.Context(), "store", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Service.ApproveField(cmd.Context(), args[0], args[1], editor)
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), outputFormat, p)
	},
}

var profileVersionCmd = &cobra.Command{
	Use:   "version <brand-id> [version-id]",
	Short: "Show one version, or the whole history",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "store", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) == 1 {
			p, err := env.Service.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), outputFormat, p.Versions)
		}

		v, err := env.Service.GetVersion(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if v == nil {
			return eris.Errorf("version %s not found for brand %s", args[1], args[0])
		}
		return printOutput(cmd.OutOrStdout(), outputFormat, v)
	},
}

// reviewFile is the input of "profile accept": the changes from a re-crawl
// plus a decision per path.
type reviewFile struct {
	Changes   model.Changes               `json:"changes"`
	Decisions map[string]profile.Decision `json:"decisions"`
}

var profileAcceptCmd = &cobra.Command{
	Use:   "accept <brand-id> <review.json>",
	Short: "Apply reviewed re-crawl changes",
	Long: `Reads {"changes": {...}, "decisions": {"<path>": "accept"|"reject"}} and
records the accepted paths as a reviewed version.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		editor, _ := cmd.Flags().GetString("editor")

		data, err := os.ReadFile(args[1])
		if err != nil {
			return eris.Wrapf(err, "read review %s", args[1])
		}
		var rf reviewFile
		if err := json.Unmarshal(data, &rf); err != nil {
			return eris.Wrapf(err, "parse review %s", args[1])
		}
		review := profile.Review(rf.Changes, rf.Decisions)

		env, err := initEnv(cmd.Context(), "store", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Service.AcceptChanges(cmd.Context(), args[0], review.Accepted, editor)
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), outputFormat, map[string]any{
			"profile":  p,
			"rejected": review.Rejected,
			"pending":  review.Pending,
		})
	},
}

// parseValue decodes s as JSON, falling back to the raw string.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func init() {
	cf := profileCreateCmd.Flags()
	cf.String("name", "", "brand display name")
	cf.String("url", "", "brand website URL")
	cf.String("owner", "", "owner user ID")
	cf.String("seed", "", "JSON document to store instead of extracting")

	lf := profileListCmd.Flags()
	lf.String("owner", "", "filter by owner user ID")
	lf.String("status", "", "filter by status (complete, needs_review)")
	lf.Int("limit", 0, "maximum number of profiles (0 = store default)")
	lf.Int("offset", 0, "number of profiles to skip")

	profileRecrawlCmd.Flags().String("actor", "", "user who requested the re-crawl (default system)")

	profileSetCmd.Flags().String("editor", "", "editing user ID")
	profileSetCmd.Flags().String("source-url", "", "page the new value came from")
	_ = profileSetCmd.MarkFlagRequired("editor")

	profileApproveCmd.Flags().String("editor", "", "approving user ID")
	_ = profileApproveCmd.MarkFlagRequired("editor")

	profileAcceptCmd.Flags().String("editor", "", "reviewing user ID")
	_ = profileAcceptCmd.MarkFlagRequired("editor")

	profileCmd.AddCommand(
		profileCreateCmd,
		profileGetCmd,
		profileListCmd,
		profileDeleteCmd,
		profileRecrawlCmd,
		profileSetCmd,
		profileApproveCmd,
		profileVersionCmd,
		profileAcceptCmd,
	)
	rootCmd.AddCommand(profileCmd)
}
