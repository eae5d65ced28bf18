package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/admin/internal/cli/ui"
	"github.com/conduit-lang/admin/internal/orm/errs"
	"github.com/conduit-lang/admin/internal/orm/schema"
)

// prompter asks for the value of one field. An empty answer leaves the
// field unset.
type prompter interface {
	Prompt(f *schema.FieldMetadata) (string, error)
}

type surveyPrompter struct{}

func (surveyPrompter) Prompt(f *schema.FieldMetadata) (string, error) {
	message := fmt.Sprintf("%s (%s)", f.DisplayLabel(), f.Type)

	switch {
	case len(f.EnumValues) > 0:
		options := f.EnumValues
		if !f.Required() {
			options = append([]string{""}, options...)
		}
		prompt := &survey.Select{Message: message, Options: options, Help: f.Hints.HelpText}
		if def, ok := f.Default.(string); ok {
			prompt.Default = def
		}
		var answer string
		err := survey.AskOne(prompt, &answer)
		return answer, err

	case f.Type == schema.TypeBool:
		prompt := &survey.Confirm{Message: message, Help: f.Hints.HelpText}
		if def, ok := f.Default.(bool); ok {
			prompt.Default = def
		}
		var answer bool
		if err := survey.AskOne(prompt, &answer); err != nil {
			return "", err
		}
		return strconv.FormatBool(answer), nil

	default:
		var opts []survey.AskOpt
		if f.Required() {
			opts = append(opts, survey.WithValidator(survey.Required))
		}
		if f.MaxLength > 0 {
			opts = append(opts, survey.WithValidator(survey.MaxLength(f.MaxLength)))
		}
		var answer string
		err := survey.AskOne(&survey.Input{Message: message, Help: f.Hints.HelpText}, &answer, opts...)
		return strings.TrimSpace(answer), err
	}
}

type createOptions struct {
	set     []string
	noInput bool
}

func newCreateCommand(flags *globalFlags, p prompter) *cobra.Command {
	opts := &createOptions{}
	cmd := &cobra.Command{
		Use:   "create <entity>",
		Short: "Create a record interactively",
		Long: `Create one record of an entity. Values given with --set are used as is;
every other editable field is prompted for unless --no-input is given.
The record goes through the same validation as the admin API.`,
		Example: `  admin create Author
  admin create Book --set title=Dune --set author_id=1 --no-input`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd, flags, opts, p, args[0])
		},
	}
	cmd.Flags().StringArrayVar(&opts.set, "set", nil, "field=value pair (repeatable)")
	cmd.Flags().BoolVar(&opts.noInput, "no-input", false, "do not prompt for missing fields")
	return cmd
}

func runCreate(cmd *cobra.Command, flags *globalFlags, opts *createOptions, p prompter, entity string) error {
	app, err := loadApp(cmd.Context(), flags)
	if err != nil {
		return err
	}
	defer app.shutdown()

	meta, err := app.Registry.Get(entity)
	if err != nil {
		ui.EntityNotFound(entity, app.Registry.Names(), flags.noColor).Write(cmd.ErrOrStderr())
		return err
	}

	values, err := parseAssignments(opts.set)
	if err != nil {
		return err
	}
	if !opts.noInput {
		for _, f := range meta.Fields {
			if _, ok := values[f.Name]; ok || !f.Editable() {
				continue
			}
			answer, err := p.Prompt(f)
			if err != nil {
				return err
			}
			if answer != "" {
				values[f.Name] = answer
			}
		}
	}

	inst, err := app.Executor.Create(cmd.Context(), meta.Name, values)
	if err != nil {
		if ve, ok := errs.AsValidation(err); ok {
			printFieldErrors(cmd.ErrOrStderr(), ve, flags.noColor)
		}
		return err
	}

	out := cmd.OutOrStdout()
	ui.Success(out, fmt.Sprintf("created %s %v", meta.Name, inst.Key), flags.noColor)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(inst.Values)
}

// parseAssignments splits field=value pairs. The first '=' separates the
// field from the value.
func parseAssignments(pairs []string) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		field, value, ok := strings.Cut(pair, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid --set %q: expected field=value", pair)
		}
		values[field] = value
	}
	return values, nil
}

func printFieldErrors(w io.Writer, ve *errs.ValidationError, noColor bool) {
	red := color.New(color.FgRed)
	if noColor {
		red.DisableColor()
	}
	fields := make([]string, 0, len(ve.Fields))
	for f := range ve.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		red.Fprintf(w, "  %s %s\n", f, strings.Join(ve.Fields[f], ", "))
	}
}
