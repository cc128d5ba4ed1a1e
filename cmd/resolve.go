package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adnord/ownership-cli/internal/model"
	sfpkg "github.com/adnord/ownership-cli/pkg/salesforce"
)

var (
	resolveAddress string
	resolvePostal  string
	resolveCity    string
	resolveID      string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve ownership for a single property",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		prop := model.PropertyRecord{
			ID:         resolveID,
			Address:    resolveAddress,
			PostalCode: resolvePostal,
			City:       resolveCity,
		}
		if prop.ID == "" {
			prop.ID = prop.Address
		}

		// With a CRM id, pull the property record so known owner details
		// seed the evidence set.
		if resolveID != "" && env.Salesforce != nil {
			sfProp, err := sfpkg.FindPropertyByID(ctx, env.Salesforce, resolveID)
			if err != nil {
				return err
			}
			if sfProp != nil {
				prop = propertyFromSF(*sfProp)
			}
		}

		run, err := env.Orchestrator.RunProperty(ctx, prop)
		if err != nil {
			return eris.Wrap(err, "resolve")
		}
		if run == nil {
			zap.L().Warn("property skipped")
			return nil
		}

		zap.L().Info("resolution complete",
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Status)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// propertyFromSF converts a CRM property record to the pipeline's model.
func propertyFromSF(p sfpkg.Property) model.PropertyRecord {
	return model.PropertyRecord{
		ID:           p.ID,
		Address:      p.Address,
		PostalCode:   p.PostalCode,
		City:         p.City,
		SalesforceID: p.ID,
		KnownOwner:   p.KnownOwner,
		KnownEmail:   p.KnownEmail,
	}
}

func init() {
	resolveCmd.Flags().StringVar(&resolveAddress, "address", "", "street address (required)")
	resolveCmd.Flags().StringVar(&resolvePostal, "postal", "", "postal code (required)")
	resolveCmd.Flags().StringVar(&resolveCity, "city", "", "city")
	resolveCmd.Flags().StringVar(&resolveID, "id", "", "Salesforce property record id")
	_ = resolveCmd.MarkFlagRequired("address")
	_ = resolveCmd.MarkFlagRequired("postal")
	rootCmd.AddCommand(resolveCmd)
}
