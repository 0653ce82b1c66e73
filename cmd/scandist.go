package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sitepulse/sitepulse/internal/discovery/dist"
)

// newScanDistCmd creates the 'scan-dist' subcommand mapping a static build
// directory onto site routes.
func newScanDistCmd() *cobra.Command {
	var (
		distDir string
		baseURL string
		outFile string
	)
	cmd := &cobra.Command{
		Use:   "scan-dist",
		Short: "Maps a static build directory onto site URLs",
		Long: `Walks a pre-built static output directory, maps every .html file to
its public URL under the base URL, and writes the resulting route list
as a JSON array.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !filepath.IsAbs(distDir) {
				abs, err := filepath.Abs(distDir)
				if err != nil {
					return err
				}
				distDir = abs
			}
			urls, err := dist.Scan(distDir, baseURL)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(urls, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal routes: %w", err)
			}
			data = append(data, '\n')
			if err := os.WriteFile(outFile, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outFile, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d routes to %s\n", len(urls), outFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&distDir, "dist", "", "static output directory to scan")
	cmd.Flags().StringVar(&baseURL, "baseUrl", "", "absolute base URL the routes resolve against")
	cmd.Flags().StringVar(&outFile, "out", "routes.json", "output file for the route list")
	_ = cmd.MarkFlagRequired("dist")
	_ = cmd.MarkFlagRequired("baseUrl")

	return cmd
}
