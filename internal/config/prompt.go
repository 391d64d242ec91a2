package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
)

const asciiLogo = `
██╗     ██╗███████╗███████╗████████╗██████╗  █████╗  ██████╗██╗  ██╗
██║     ██║██╔════╝██╔════╝╚══██╔══╝██╔══██╗██╔══██╗██╔════╝██║ ██╔╝
██║     ██║█████╗  █████╗     ██║   ██████╔╝███████║██║     █████╔╝
██║     ██║██╔══╝  ██╔══╝     ██║   ██╔══██╗██╔══██║██║     ██╔═██╗
███████╗██║██║     ███████╗   ██║   ██║  ██║██║  ██║╚██████╗██║  ██╗
╚══════╝╚═╝╚═╝     ╚══════╝   ╚═╝   ╚═╝  ╚═╝╚═╝  ╚═╝ ╚═════╝╚═╝  ╚═╝`

// PromptOptions holds the user's responses to the configuration prompts.
type PromptOptions struct {
	Backend string
	Mode    string
}

// WithPromptConfig returns an Option that asks for the storage settings
// when no config file exists yet. It must run before WithViperConfig so
// that the answers end up in the written file.
func WithPromptConfig(configPath string) Option {
	return func(c *Config) error {
		_, err := os.Stat(configPath)
		if err == nil || !errors.Is(err, os.ErrNotExist) {
			return err
		}

		opts, err := promptUser()
		if err != nil {
			return fmt.Errorf("user prompt failed: %w", err)
		}

		applyPromptOptions(c, opts)

		return nil
	}
}

func promptUser() (PromptOptions, error) {
	var opts PromptOptions

	pterm.Println(asciiLogo)

	_ = putils.BulletListFromString(`Follow the prompts below to configure lifetrack for the first time.
Select your preferred value, or press ENTER to accept the defaults.
Edit the config file with 'lifetrack edit-config' to change any settings.`, " ").
		Render()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should the running session be kept?").
				Options(
					huh.NewOption("Files in the data directory", BackendFile).
						Selected(true),
					huh.NewOption("A bolt database", BackendBolt),
					huh.NewOption("Memory only (nothing survives a restart)", BackendMemory),
				).
				Value(&opts.Backend),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("How should other lifetrack windows hear about changes?").
				Options(
					huh.NewOption("Pick for me", ModeAuto).Selected(true),
					huh.NewOption("Watch the storage directory", ModeFSNotify),
					huh.NewOption("Through a relay server", ModeWebsocket),
				).
				Value(&opts.Mode),
		),
	)

	err := form.Run()
	if err != nil {
		return opts, fmt.Errorf("form interaction failed: %w", err)
	}

	return opts, nil
}

func applyPromptOptions(c *Config, opts PromptOptions) {
	c.Storage.Backend = opts.Backend
	c.Broadcast.Mode = opts.Mode
}
