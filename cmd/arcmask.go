package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/lensrecipe/internal/arcmask"
	"github.com/cwbudde/lensrecipe/internal/config"
	"github.com/cwbudde/lensrecipe/internal/imageio"
)

var (
	arcmaskSettings    string
	arcmaskPixelSize   float64
	arcmaskClearCenter float64
	arcmaskOutputDir   string
)

var arcmaskCmd = &cobra.Command{
	Use:   "arcmask <image.png>...",
	Short: "Derive arc masks from band images",
	Long: `Compute the arc mask of each band image and write it as <name>_mask.png.
White pixels stay in the likelihood; black pixels are lensed arcs.

With --settings, images are taken in band order, the pixel size comes from
the settings file and each mask is intersected with the band's baseline mask.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runArcmask,
}

func init() {
	rootCmd.AddCommand(arcmaskCmd)

	arcmaskCmd.Flags().StringVarP(&arcmaskSettings, "settings", "s", "", "Settings file providing pixel size and baseline masks")
	arcmaskCmd.Flags().Float64Var(&arcmaskPixelSize, "pixel-size", 0, "Pixel size in arcsec (overrides settings)")
	arcmaskCmd.Flags().Float64Var(&arcmaskClearCenter, "clear-center", arcmask.DefaultClearCenter, "Radius in arcsec kept clear around the center")
	arcmaskCmd.Flags().StringVarP(&arcmaskOutputDir, "output-dir", "o", ".", "Directory for the mask files")
}

func runArcmask(cmd *cobra.Command, args []string) error {
	pixelSize := arcmaskPixelSize
	var bands []arcmask.Band

	if arcmaskSettings != "" {
		settings, err := config.Load(arcmaskSettings)
		if err != nil {
			return err
		}
		joint, err := imageio.LoadJoint(settings, args)
		if err != nil {
			return err
		}
		bands = joint.Bands
		if pixelSize == 0 {
			pixelSize = settings.PixelSize
		}
	} else {
		images, err := imageio.LoadImages(args)
		if err != nil {
			return err
		}
		for i, img := range images {
			bands = append(bands, arcmask.Band{Name: fmt.Sprintf("band%d", i), Image: img})
		}
	}
	if pixelSize <= 0 {
		slog.Warn("No pixel size given, center clearing disabled")
	}

	masks, err := arcmask.Bands(cmd.Context(), bands, pixelSize, arcmaskClearCenter)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(arcmaskOutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for i, m := range masks {
		path := filepath.Join(arcmaskOutputDir, maskFileName(args[i]))
		if err := imageio.SaveMask(path, m); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[i], path)
	}
	return nil
}

// maskFileName maps "dir/F160W.png" to "F160W_mask.png".
func maskFileName(imagePath string) string {
	base := filepath.Base(imagePath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_mask.png"
}
