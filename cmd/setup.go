package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"starflow/internal/config"
	"starflow/internal/ui"
	"starflow/pkg/errors"
	"starflow/pkg/models"
)

var (
	setupOutput string
	setupForce  bool
)

type profileWizard interface {
	Run(base *models.Config) (*ui.WizardResult, error)
}

// newWizard is replaced in tests.
var newWizard = func() profileWizard {
	return ui.NewConfigWizard()
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write a profile interactively",
	Long: `Ask for the cluster, source and BigQuery settings and write them as an
INI profile. An existing profile pre-fills the answers. The password can be
kept in the OS keyring instead of the file.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
	setupCmd.Flags().StringVarP(&setupOutput, "output", "o", "", "profile to write (default: --config, then dwh.cfg)")
	setupCmd.Flags().BoolVarP(&setupForce, "force", "f", false, "overwrite an existing profile without asking")
}

func setupPath() string {
	switch {
	case setupOutput != "":
		return setupOutput
	case configPath != "":
		return configPath
	default:
		return config.DefaultProfiles[0]
	}
}

func runSetup(cmd *cobra.Command, args []string) error {
	path := setupPath()

	var base *models.Config
	if _, err := os.Stat(path); err == nil {
		if !setupForce {
			overwrite, err := confirm(fmt.Sprintf("Profile %s already exists. Overwrite it?", path), false)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInvalidInput, "Confirmation failed")
			}
			if !overwrite {
				ui.ShowInfo("Setup cancelled")
				return nil
			}
		}
		if base, err = config.Load(path); err != nil {
			ui.ShowWarning(fmt.Sprintf("Ignoring unreadable profile %s: %v", path, err))
			base = nil
		}
	}

	res, err := newWizard().Run(base)
	if err != nil {
		return err
	}

	if err := config.Save(path, res.Config, config.SaveOptions{UseKeyring: res.UseKeyring}); err != nil {
		return err
	}

	ui.ShowSuccess("Profile written to " + path)
	if res.UseKeyring {
		ui.ShowInfo("The password is stored in the OS keyring")
	}
	ui.ShowInfo("Next: 'starflow dwh create-tables' and 'starflow dwh etl'")
	return nil
}
