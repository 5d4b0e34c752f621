package cmd

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-wizard/internal/fields"
	"github.com/spigell/cv-wizard/internal/logger"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the field schema derived for a channel",
	Run: func(cmd *cobra.Command, _ []string) {
		logger, err := logger.NewWithOutput(viper.GetBool("json"), viper.GetBool("debug"), "stderr")
		if err != nil {
			log.Fatalf("creating a logger: %s", err)
		}

		config, err := getConfig()
		if err != nil {
			logger.Fatal("getting a config", zap.Error(err))
		}

		questions, err := loadQuestions(config)
		if err != nil {
			logger.Fatal("loading questions", zap.Error(err))
		}

		channel := fields.ParseChannel(config.Channel)
		schema := fields.DeriveSchema(questions, channel)

		pretty, err := json.MarshalIndent(map[string]any{
			"channel":     channel,
			"allowedKeys": schema.AllowedKeys(),
			"rules":       schema.Rules(),
			"hints":       schema.Hints(),
		}, "", "  ")
		if err != nil {
			logger.Fatal("encoding schema", zap.Error(err))
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
