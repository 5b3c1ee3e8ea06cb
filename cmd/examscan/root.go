package main

import (
	"github.com/spf13/cobra"

	"github.com/examscan/examscan/version"
)

var (
	cfgFile string
	homeDir string
)

var rootCmd = &cobra.Command{
	Use:   "examscan",
	Short: "Exam paper scan processing with OCR and question extraction",
	Long: `Examscan turns scanned exam papers into structured question data.

The pipeline includes:
  - Image preprocessing (denoise, deskew, contrast, binarization)
  - Multi-engine OCR with best-result selection
  - Two-tier question region detection (structural and geometric)
  - Question and answer-option extraction with confidence scoring
  - Manual region correction with a full audit trail`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.examscan/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "examscan home directory (default: ~/.examscan)",
	)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(initCmd)
}
