package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"hostwatch/internal/models"
	"hostwatch/internal/policy"
)

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "inspect alert policy files",
	}
	cmd.AddCommand(policyDefaultsCmd())
	cmd.AddCommand(policyValidateCmd())
	return cmd
}

func policyDefaultsCmd() *cobra.Command {
	var mounts []string
	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "print the default policy set as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(policy.Defaults(models.NormalizeMounts(mounts)))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringSliceVar(&mounts, "mount", []string{"/"}, "mount points to include disk policies for")
	return cmd
}

func policyValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "check a policy file without applying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := policy.NewFileBackend(args[0]).Load(context.Background(), policy.Defaults(nil))
			if errors.Is(err, policy.ErrNoStoredPolicy) {
				return fmt.Errorf("%s: no such policy file", args[0])
			}
			if err != nil {
				return err
			}
			if _, err := policy.Validate(set, nil); err != nil {
				for _, fe := range policy.FieldErrors(err) {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", fe.Field, fe.Message)
				}
				return fmt.Errorf("%s: invalid policy", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			return nil
		},
	}
}
