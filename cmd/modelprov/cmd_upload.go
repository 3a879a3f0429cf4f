package main

import (
	"fmt"
	"os"

	"github.com/maruel/modelprov/internal/fingerprint"
	"github.com/maruel/modelprov/internal/storage"
	"github.com/spf13/cobra"
)

func newUploadCmd(g *globalFlags) *cobra.Command {
	var flags struct {
		file   string
		author string
		desc   string
		name   string
	}
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Register a model artifact",
		Long:  "Copies the artifact into the registry, fingerprints it and appends a catalog entry.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, _, err := g.open()
			if err != nil {
				return err
			}
			f, err := os.Open(flags.file)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", fingerprint.ErrArtifactNotFound, flags.file, err)
			}
			defer func() { _ = f.Close() }()
			name := flags.name
			if name == "" {
				name = flags.file
			}
			e, err := reg.Upload(cmd.Context(), f, name, flags.author, flags.desc)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Registered %s\n", e.Filename)
			fmt.Fprintf(out, "Fingerprint: %s\n", e.Fingerprint)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&flags.file, "file", "f", "", "Path of the artifact (required)")
	f.StringVar(&flags.author, "author", storage.DefaultAuthor, "Author recorded in the catalog")
	f.StringVar(&flags.desc, "desc", storage.DefaultDescription, "Description recorded in the catalog")
	f.StringVar(&flags.name, "name", "", "Filename to store the artifact under (default: base name of --file)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
