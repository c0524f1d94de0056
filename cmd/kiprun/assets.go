package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caffeineduck/kiprun/executor"
	"github.com/caffeineduck/kiprun/language/kip"
	"github.com/caffeineduck/kiprun/resource"
	"github.com/caffeineduck/kiprun/vfs"
	"github.com/spf13/cobra"
)

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Manage the guest image and its resources",
	Long: `Fetch, list and verify the files the Kip guest needs:

  kip-playground.wasm           compiled playground
  assets/lib/*.kip              library sources mounted at /lib
  assets/vendor/trmorph.fst     morphology data mounted at /vendor`,
}

var assetsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download assets from a base URL into a directory",
	RunE:  runAssetsFetch,
}

var assetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List assets in the asset directory",
	RunE:  runAssetsList,
}

var assetsVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that every asset loads and the image compiles",
	RunE:  runAssetsVerify,
}

func init() {
	assetsFetchCmd.Flags().Bool("force", false, "Overwrite files that already exist")
	assetsCmd.AddCommand(assetsFetchCmd, assetsListCmd, assetsVerifyCmd)
	rootCmd.AddCommand(assetsCmd)
}

func runAssetsFetch(cmd *cobra.Command, args []string) error {
	if cfg.Assets.URL == "" || cfg.Assets.Dir == "" {
		return errors.New("fetch needs both --assets-url and --assets")
	}
	force, _ := cmd.Flags().GetBool("force")

	remote, err := resource.NewHTTP(resource.HTTPConfig{BaseURL: cfg.Assets.URL})
	if err != nil {
		return err
	}
	return fetchAssets(cmd.Context(), remote, cfg.Assets.Dir, force, cmd.OutOrStdout())
}

func fetchAssets(ctx context.Context, remote resource.Loader, dir string, force bool, out io.Writer) error {
	for _, name := range kip.Resources() {
		dest := filepath.Join(dir, filepath.FromSlash(name))
		if _, err := os.Stat(dest); err == nil && !force {
			fmt.Fprintf(out, "%s %s\n", dimStyle.Render("skip"), name)
			continue
		}

		data, err := remote.Load(ctx, name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(dest), err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", dest, err)
		}
		fmt.Fprintf(out, "%s %s (%d bytes)\n", okStyle.Render("got "), name, len(data))
	}
	return nil
}

func runAssetsList(cmd *cobra.Command, args []string) error {
	if cfg.Assets.Dir == "" {
		return errors.New("list needs --assets")
	}
	return listAssets(cfg.Assets.Dir, cmd.OutOrStdout())
}

func listAssets(dir string, out io.Writer) error {
	var missing int
	for _, name := range kip.Resources() {
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			missing++
			fmt.Fprintf(out, "%-32s %s\n", name, errorStyle.Render("missing"))
			continue
		}
		fmt.Fprintf(out, "%-32s %d bytes\n", name, info.Size())
	}
	if missing > 0 {
		return fmt.Errorf("%d of %d assets missing", missing, len(kip.Resources()))
	}
	return nil
}

func runAssetsVerify(cmd *cobra.Command, args []string) error {
	loader, err := assetLoader(cfg)
	if err != nil {
		return err
	}
	return verifyAssets(cmd.Context(), kip.New(), loader, cmd.OutOrStdout())
}

// verifyAssets builds a session filesystem and compiles the image, the two
// steps that fail with a LoadError at session start.
func verifyAssets(ctx context.Context, guest executor.Guest, loader resource.Loader, out io.Writer) error {
	if _, err := vfs.Build(ctx, loader, guest.Layout(), ""); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s library and vendor resources\n", okStyle.Render("ok"))

	exec, err := executor.New(guest, loader,
		executor.WithPrecompile(),
		executor.WithLogger(logger.WithField("component", "executor")),
	)
	if err != nil {
		return err
	}
	defer exec.Close()
	fmt.Fprintf(out, "%s %s compiles\n", okStyle.Render("ok"), guest.ImagePath())
	return nil
}
