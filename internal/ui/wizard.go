package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"starflow/pkg/errors"
	"starflow/pkg/models"
)

// Prompter asks survey questions. Tests replace the terminal one.
type Prompter interface {
	Ask(qs []*survey.Question, response interface{}) error
	AskOne(p survey.Prompt, response interface{}) error
}

type terminalPrompter struct{}

func (terminalPrompter) Ask(qs []*survey.Question, response interface{}) error {
	return survey.Ask(qs, response)
}

func (terminalPrompter) AskOne(p survey.Prompt, response interface{}) error {
	return survey.AskOne(p, response)
}

// WizardResult is what the setup wizard collected.
type WizardResult struct {
	Config     *models.Config
	UseKeyring bool
}

// ConfigWizard builds a profile interactively
type ConfigWizard struct {
	prompter    Prompter
	currentStep int
	totalSteps  int
}

// NewConfigWizard creates a new configuration wizard
func NewConfigWizard() *ConfigWizard {
	return NewConfigWizardWith(terminalPrompter{})
}

// NewConfigWizardWith uses p for every question.
func NewConfigWizardWith(p Prompter) *ConfigWizard {
	return &ConfigWizard{
		prompter:    p,
		currentStep: 1,
		totalSteps:  5,
	}
}

// Run executes the configuration wizard. base pre-fills the answers.
func (w *ConfigWizard) Run(base *models.Config) (*WizardResult, error) {
	ShowHeader("starflow - Profile Setup")

	cfg := &models.Config{}
	if base != nil {
		*cfg = *base
	}

	steps := []func(*models.Config) error{
		w.warehouseStep,
		w.sourcesStep,
		w.bigQueryStep,
		w.lakeStep,
	}
	for _, step := range steps {
		if err := step(cfg); err != nil {
			return nil, cancelled(err)
		}
	}

	res := &WizardResult{Config: cfg}
	if err := w.review(res); err != nil {
		return nil, cancelled(err)
	}
	return res, nil
}

func cancelled(err error) error {
	if err == terminal.InterruptErr {
		return errors.New(errors.ErrCodeInvalidInput, "Setup cancelled")
	}
	return err
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func validatePort(val interface{}) error {
	s, _ := val.(string)
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("%q is not a valid port", s)
	}
	return nil
}

func (w *ConfigWizard) warehouseStep(cfg *models.Config) error {
	w.showProgress("Warehouse")

	port := ""
	if cfg.Cluster.DBPort != 0 {
		port = strconv.Itoa(cfg.Cluster.DBPort)
	}

	questions := []*survey.Question{
		{
			Name: "driver",
			Prompt: &survey.Select{
				Message: "Warehouse driver:",
				Options: []string{"redshift", "postgres", "snowflake", "duckdb"},
				Default: orDefault(cfg.Warehouse.Driver, "redshift"),
			},
		},
		{
			Name: "host",
			Prompt: &survey.Input{
				Message: "Cluster endpoint:",
				Default: cfg.Cluster.Host,
				Help:    "Redshift endpoint, Postgres host or Snowflake account. Leave empty for duckdb.",
			},
		},
		{
			Name: "dbname",
			Prompt: &survey.Input{
				Message: "Database:",
				Default: orDefault(cfg.Cluster.DBName, "dev"),
			},
		},
		{
			Name:   "user",
			Prompt: &survey.Input{Message: "User:", Default: cfg.Cluster.DBUser},
		},
		{
			Name:   "password",
			Prompt: &survey.Password{Message: "Password:", Help: "Stored in the OS keyring when you allow it"},
		},
		{
			Name:     "port",
			Prompt:   &survey.Input{Message: "Port:", Default: orDefault(port, "5439")},
			Validate: validatePort,
		},
		{
			Name:   "region",
			Prompt: &survey.Input{Message: "Region:", Default: orDefault(cfg.Cluster.Region, "us-west-2")},
		},
		{
			Name: "arn",
			Prompt: &survey.Input{
				Message: "IAM role ARN for COPY:",
				Default: cfg.IAMRole.ARN,
			},
		},
	}

	answers := struct {
		Driver   string
		Host     string
		DBName   string `survey:"dbname"`
		User     string
		Password string
		Port     string
		Region   string
		ARN      string `survey:"arn"`
	}{}

	if err := w.prompter.Ask(questions, &answers); err != nil {
		return err
	}

	cfg.Warehouse.Driver = answers.Driver
	cfg.Cluster.Driver = answers.Driver
	cfg.Cluster.Host = answers.Host
	cfg.Cluster.DBName = answers.DBName
	cfg.Cluster.DBUser = answers.User
	if answers.Password != "" {
		cfg.Cluster.DBPassword = answers.Password
	}
	if answers.Port != "" {
		cfg.Cluster.DBPort, _ = strconv.Atoi(answers.Port)
	}
	cfg.Cluster.Region = answers.Region
	cfg.IAMRole.ARN = answers.ARN

	w.currentStep++
	return nil
}

func (w *ConfigWizard) sourcesStep(cfg *models.Config) error {
	w.showProgress("Raw Data on S3")

	questions := []*survey.Question{
		{
			Name:   "logdata",
			Prompt: &survey.Input{Message: "Log data:", Default: orDefault(cfg.S3.LogData, "s3://udacity-dend/log_data")},
		},
		{
			Name:   "jsonpath",
			Prompt: &survey.Input{Message: "Log JSONPaths file:", Default: orDefault(cfg.S3.LogJSONPath, "s3://udacity-dend/log_json_path.json")},
		},
		{
			Name:   "songdata",
			Prompt: &survey.Input{Message: "Song data:", Default: orDefault(cfg.S3.SongData, "s3://udacity-dend/song_data")},
		},
	}

	answers := struct {
		LogData  string `survey:"logdata"`
		JSONPath string `survey:"jsonpath"`
		SongData string `survey:"songdata"`
	}{}

	if err := w.prompter.Ask(questions, &answers); err != nil {
		return err
	}

	cfg.S3.LogData = answers.LogData
	cfg.S3.LogJSONPath = answers.JSONPath
	cfg.S3.SongData = answers.SongData

	w.currentStep++
	return nil
}

func (w *ConfigWizard) bigQueryStep(cfg *models.Config) error {
	w.showProgress("BigQuery")

	use := cfg.GCP.Project != ""
	if err := w.prompter.AskOne(&survey.Confirm{
		Message: "Configure BigQuery for the movie pipeline?",
		Default: use,
	}, &use); err != nil {
		return err
	}
	if !use {
		w.currentStep++
		return nil
	}

	questions := []*survey.Question{
		{
			Name:     "project",
			Prompt:   &survey.Input{Message: "GCP project:", Default: cfg.GCP.Project},
			Validate: survey.Required,
		},
		{
			Name: "keypath",
			Prompt: &survey.Input{
				Message: "Service account key file:",
				Default: cfg.GCP.ServiceAccountPath,
				Help:    "JSON key of a service account with BigQuery admin rights",
			},
			Validate: survey.Required,
		},
		{
			Name:   "location",
			Prompt: &survey.Input{Message: "Dataset location:", Default: orDefault(cfg.GCP.Location, "US")},
		},
		{
			Name:   "bucket",
			Prompt: &survey.Input{Message: "Source bucket:", Default: orDefault(cfg.GCP.Bucket, "udacity-de")},
		},
	}

	answers := struct {
		Project  string
		KeyPath  string `survey:"keypath"`
		Location string
		Bucket   string
	}{}

	if err := w.prompter.Ask(questions, &answers); err != nil {
		return err
	}

	cfg.GCP.Project = answers.Project
	cfg.GCP.ServiceAccountPath = answers.KeyPath
	cfg.GCP.Location = answers.Location
	cfg.GCP.Bucket = answers.Bucket

	w.currentStep++
	return nil
}

func (w *ConfigWizard) lakeStep(cfg *models.Config) error {
	w.showProgress("Data Lake")

	questions := []*survey.Question{
		{
			Name:   "input",
			Prompt: &survey.Input{Message: "Lake input:", Default: orDefault(cfg.Lake.Input, "s3a://udacity-dend/")},
		},
		{
			Name: "output",
			Prompt: &survey.Input{
				Message: "Lake output:",
				Default: orDefault(cfg.Lake.Output, "./lake"),
				Help:    "A local directory or an s3:// URI",
			},
		},
	}

	answers := struct {
		Input  string
		Output string
	}{}

	if err := w.prompter.Ask(questions, &answers); err != nil {
		return err
	}

	cfg.Lake.Input = answers.Input
	cfg.Lake.Output = answers.Output

	w.currentStep++
	return nil
}

func (w *ConfigWizard) review(res *WizardResult) error {
	w.showProgress("Review")
	cfg := res.Config

	fmt.Fprintln(Output, "\n"+ColorInfo("Profile Summary:"))
	fmt.Fprintln(Output, strings.Repeat("─", 50))
	PrintKeyValue("Driver", cfg.Warehouse.Driver)
	PrintKeyValue("Endpoint", cfg.Cluster.Host)
	PrintKeyValue("Database", cfg.Cluster.DBName)
	PrintKeyValue("User", cfg.Cluster.DBUser)
	PrintKeyValue("IAM role", cfg.IAMRole.ARN)
	PrintKeyValue("Song data", cfg.S3.SongData)
	PrintKeyValue("Log data", cfg.S3.LogData)
	if cfg.GCP.Project != "" {
		PrintKeyValue("GCP project", cfg.GCP.Project)
		PrintKeyValue("GCP key", cfg.GCP.ServiceAccountPath)
	}
	PrintKeyValue("Lake", cfg.Lake.Input+" -> "+cfg.Lake.Output)
	fmt.Fprintln(Output, strings.Repeat("─", 50))

	if cfg.Cluster.DBPassword != "" {
		res.UseKeyring = true
		if err := w.prompter.AskOne(&survey.Confirm{
			Message: "Store the password in the OS keyring?",
			Default: true,
		}, &res.UseKeyring); err != nil {
			return err
		}
	}

	save := true
	if err := w.prompter.AskOne(&survey.Confirm{
		Message: "Save this profile?",
		Default: true,
	}, &save); err != nil {
		return err
	}
	if !save {
		return errors.New(errors.ErrCodeInvalidInput, "Setup cancelled")
	}
	return nil
}

func (w *ConfigWizard) showProgress(step string) {
	fmt.Fprintf(Output, "\n%s [Step %d/%d] %s\n\n",
		ColorProgress("►"),
		w.currentStep,
		w.totalSteps,
		ColorBold(step),
	)
}
