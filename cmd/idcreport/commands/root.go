package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DrSkyle/idcreport/pkg/engine"
	"github.com/DrSkyle/idcreport/pkg/version"
)

var config engine.Config

var rootCmd = &cobra.Command{
	Use:     "idcreport",
	Short:   "IAM Identity Center assignment reporting",
	Long:    `idcreport crawls an AWS IAM Identity Center instance and renders CSV and Excel reports of every permission set assignment across the organization.`,
	Version: version.Current,
	// Run: nil (Forces help output).
	Run: nil,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent Flags
	rootCmd.PersistentFlags().StringVar(&config.Region, "region", "", "AWS Region (falls back to AWS_REGION)")
	rootCmd.PersistentFlags().StringVar(&config.CrawlerRoleARN, "role-arn", "", "Crawler role to assume (falls back to CRAWLER_ARN)")
	rootCmd.PersistentFlags().StringVar(&config.ReportBucket, "bucket", "", "Report bucket (falls back to REPORT_BUCKET_NAME)")
	rootCmd.PersistentFlags().StringVar(&config.ReportPrefix, "prefix", "idc-reports", "Key prefix inside the report bucket")
	rootCmd.PersistentFlags().StringVar(&config.OutputDir, "output-dir", "", "Write artifacts to a local directory instead of S3")
	rootCmd.PersistentFlags().StringSliceVar(&config.PermissionSets, "permission-sets", nil, "Restrict the report to the named permission sets")
	rootCmd.PersistentFlags().StringVar(&config.InstanceARN, "instance-arn", "", "Identity Center instance ARN (discovered when empty)")
	rootCmd.PersistentFlags().StringVar(&config.IdentityStoreID, "identity-store-id", "", "Identity store ID (discovered when empty)")
	rootCmd.PersistentFlags().BoolVar(&config.StrictMode, "strict", false, "Exit non-zero when any lookup degraded")
	rootCmd.PersistentFlags().BoolVar(&config.JsonLogs, "json-logs", false, "Emit JSON logs only, no banner")
	rootCmd.PersistentFlags().BoolVarP(&config.Verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(ReportCmd)
}

func initConfig() {
	// .env is optional and only read for local runs.
	_ = godotenv.Load()
	viper.AutomaticEnv()

	if config.Region == "" {
		config.Region = viper.GetString("AWS_REGION")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	if config.CrawlerRoleARN == "" {
		config.CrawlerRoleARN = viper.GetString("CRAWLER_ARN")
	}
	if config.ReportBucket == "" {
		config.ReportBucket = viper.GetString("REPORT_BUCKET_NAME")
	}
}
